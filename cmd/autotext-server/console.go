package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// admin is the part of the server the console drives.
type admin interface {
	Rebuild(ctx context.Context, src string) error
	MergeUpdate(ctx context.Context, src string) error
	Clear(ctx context.Context) error
	Sessions() int
}

const consoleHelp = `commands:
  -i <path|url>   rebuild the word book from a text
  -u <path|url>   merge a text into the word book
  -d              clear the word book
  sessions        show the number of connected clients
  exit            stop the server`

// runConsole executes operator commands read line by line from in until
// exit, end of input or ctx cancellation.
func runConsole(ctx context.Context, srv admin, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !execute(ctx, srv, line, out) {
			return
		}
	}
}

// execute runs one console line and reports whether the console should
// keep reading.
func execute(ctx context.Context, srv admin, line string, out io.Writer) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	arg = strings.Trim(strings.TrimSpace(arg), `"`)

	switch cmd {
	case "-i", "-u":
		if arg == "" {
			fmt.Fprintf(out, "Command %s needs a path or URL.\n", cmd)
			return true
		}
		op, verb := srv.Rebuild, "rebuilt"
		if cmd == "-u" {
			op, verb = srv.MergeUpdate, "updated"
		}
		if err := op(ctx, arg); err != nil {
			fmt.Fprintf(out, "Failed: %v\n", err)
			return true
		}
		fmt.Fprintf(out, "Word book %s from %s.\n", verb, arg)
	case "-d":
		if arg != "" {
			fmt.Fprintf(out, "Command -d takes no arguments.\n")
			return true
		}
		if err := srv.Clear(ctx); err != nil {
			fmt.Fprintf(out, "Failed: %v\n", err)
			return true
		}
		fmt.Fprintln(out, "Word book cleared.")
	case "sessions":
		fmt.Fprintf(out, "%d connected.\n", srv.Sessions())
	case "help", "?":
		fmt.Fprintln(out, consoleHelp)
	case "exit":
		return false
	default:
		fmt.Fprintf(out, "Unknown command %q. Type help for a list.\n", cmd)
	}
	return true
}
