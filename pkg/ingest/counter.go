package ingest

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/japaniel/autotext/pkg/words"
)

// DefaultChunkSize is the approximate number of bytes counted per job.
const DefaultChunkSize = 64 << 10

// Counter tallies word occurrences in a text by splitting it into chunks and
// counting the chunks concurrently. The result is the same as counting the
// whole text sequentially.
type Counter struct {
	Workers   int
	ChunkSize int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewCounter creates a Counter with one worker per CPU.
func NewCounter() *Counter {
	return &Counter{
		Workers:   runtime.NumCPU(),
		ChunkSize: DefaultChunkSize,
	}
}

// Count returns how many times each extracted word occurs in text.
func (c *Counter) Count(ctx context.Context, text string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chunks := SplitChunks(text, c.ChunkSize)
	if len(chunks) <= 1 {
		return words.Group(words.Extract(text)), nil
	}

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if c.PoolFactory != nil {
		wp = c.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(ctx)

	// Sized so that jobs never block on send.
	partials := make(chan map[string]int, len(chunks))
	for _, chunk := range chunks {
		err := wp.SubmitCtx(ctx, func(ctx context.Context) error {
			partials <- lo.CountValues(slices.Collect(words.Extract(chunk)))
			return nil
		})
		if err != nil {
			cancel()
			wp.Close()
			return nil, fmt.Errorf("submit chunk: %w", err)
		}
	}
	wp.Close()
	close(partials)

	total := make(map[string]int)
	received := 0
	for part := range partials {
		received++
		for w, n := range part {
			total[w] += n
		}
	}
	if received != len(chunks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("counted %d of %d chunks", received, len(chunks))
	}
	return total, nil
}

// SplitChunks cuts text into pieces of at least size bytes. Cuts are made only
// before an ASCII byte that is not a letter, so no word spans two chunks and no
// multi-byte rune is split.
func SplitChunks(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	var chunks []string
	for len(text) > size {
		cut := size
		for cut < len(text) && !isSeparator(text[cut]) {
			cut++
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isSeparator(b byte) bool {
	if b >= utf8.RuneSelf {
		return false
	}
	return !('a' <= b && b <= 'z' || 'A' <= b && b <= 'Z')
}
