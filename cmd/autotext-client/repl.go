package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
)

type conn interface {
	Get(prefix string) ([]string, error)
	Close() error
}

// repl reads client commands:
//
//	get <prefix> | <prefix>   print suggestions
//	connect <host> <port>     switch to another server
//	exit
type repl struct {
	dial func(addr string) (conn, error)
	out  io.Writer
	c    conn
}

func (r *repl) connect(addr string) error {
	c, err := r.dial(addr)
	if err != nil {
		return err
	}
	r.close()
	r.c = c
	return nil
}

func (r *repl) close() {
	if r.c != nil {
		r.c.Close()
		r.c = nil
	}
}

func (r *repl) run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit":
			return
		case "connect":
			if len(fields) != 3 {
				fmt.Fprintln(r.out, "usage: connect <host> <port>")
				continue
			}
			addr := net.JoinHostPort(fields[1], fields[2])
			if err := r.connect(addr); err != nil {
				fmt.Fprintf(r.out, "Failed to connect to %s: %v\n", addr, err)
				continue
			}
			fmt.Fprintf(r.out, "Connected to %s\n", addr)
		case "get":
			if len(fields) != 2 {
				fmt.Fprintln(r.out, "usage: get <prefix>")
				continue
			}
			r.suggest(fields[1])
		default:
			if len(fields) != 1 {
				fmt.Fprintf(r.out, "Unknown command %q.\n", fields[0])
				continue
			}
			r.suggest(fields[0])
		}
	}
}

func (r *repl) suggest(prefix string) {
	if r.c == nil {
		fmt.Fprintln(r.out, "Not connected.")
		return
	}
	words, err := r.c.Get(prefix)
	if err != nil {
		fmt.Fprintf(r.out, "Request failed: %v\n", err)
		return
	}
	for _, w := range words {
		fmt.Fprintf(r.out, "- %s\n", w)
	}
}
