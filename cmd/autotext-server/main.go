package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/japaniel/autotext/pkg/server"
	"github.com/japaniel/autotext/pkg/wordbook"
)

func main() {
	cfg := server.LoadConfig()

	addrFlag := flag.String("addr", cfg.Addr, "TCP address to listen on")
	dbFlag := flag.String("db", "autotext.db", "Path to SQLite word book")
	rebuildFlag := flag.String("rebuild", "", "Rebuild the word book from a file or URL before serving")
	mergeFlag := flag.String("merge", "", "Merge a file or URL into the word book before serving")
	maxFlag := flag.Int("max-sessions", cfg.MaxSessions, "Maximum number of concurrent sessions (0 = unlimited)")
	limitFlag := flag.Int("limit", cfg.SearchLimit, "Suggestions per request (0 = all)")
	noConsole := flag.Bool("no-console", false, "Do not read operator commands from stdin")
	flag.Parse()

	cfg.Addr = *addrFlag
	cfg.MaxSessions = *maxFlag
	cfg.SearchLimit = *limitFlag

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := wordbook.Open(*dbFlag)
	if err != nil {
		log.Fatalf("Failed to open word book: %v", err)
	}
	defer store.Close()
	fmt.Printf("Word book opened at %s\n", *dbFlag)

	srv := server.New(&server.Spec{Config: cfg, Store: store, Log: logger})

	if *rebuildFlag != "" {
		if err := srv.Rebuild(ctx, *rebuildFlag); err != nil {
			log.Fatalf("Failed to rebuild word book: %v", err)
		}
	}
	if *mergeFlag != "" {
		if err := srv.MergeUpdate(ctx, *mergeFlag); err != nil {
			log.Fatalf("Failed to merge into word book: %v", err)
		}
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	fmt.Printf("Listening on %s\n", srv.Addr())

	if !*noConsole {
		go func() {
			runConsole(ctx, srv, os.Stdin, os.Stdout)
			cancel()
		}()
	}

	<-ctx.Done()
	fmt.Println("Shutting down...")
	srv.Stop()
}
