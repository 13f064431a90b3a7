package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/japaniel/autotext/pkg/client"
)

func main() {
	addrFlag := flag.String("addr", "localhost:7273", "Server address")
	timeoutFlag := flag.Duration("timeout", 5*time.Second, "Dial and response timeout")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := client.Options{Timeout: *timeoutFlag}
	r := &repl{
		dial: func(addr string) (conn, error) {
			c, err := client.Dial(ctx, addr, opts)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		out: os.Stdout,
	}
	if err := r.connect(*addrFlag); err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addrFlag, err)
	}
	fmt.Printf("Connected to %s\n", *addrFlag)

	done := make(chan struct{})
	go func() {
		r.run(os.Stdin)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	r.close()
}
