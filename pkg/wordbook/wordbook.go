// Package wordbook is the persistent dictionary of word frequencies behind
// autocomplete lookups. It supports full rebuilds from a text, transactional
// merge updates, clearing, and ranked prefix search.
package wordbook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/japaniel/autotext/pkg/db"
	"github.com/japaniel/autotext/pkg/ingest"
	"github.com/japaniel/autotext/pkg/words"
)

// DefaultLimit is the number of suggestions returned to clients.
const DefaultLimit = 5

// Store owns the word book database.
type Store struct {
	db      *sql.DB
	counter *ingest.Counter
}

// Open opens (creating if needed) the SQLite word book at path and provisions
// its schema. The database runs in WAL mode so prefix searches read the last
// committed state while a merge is in flight, and every transaction takes the
// write lock up front so concurrent updates queue instead of deadlocking.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if err := db.InitDB(conn); err != nil {
		conn.Close()
		return nil, &Error{Op: "open", Err: err}
	}
	return New(conn), nil
}

// New wraps an already provisioned database.
func New(conn *sql.DB) *Store {
	return &Store{db: conn, counter: ingest.NewCounter()}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Rebuild replaces the whole word book with the filtered word groups of text.
// A text with no qualifying words leaves the store untouched. The clear and
// the insert are separate steps: if the insert fails the store stays empty.
func (s *Store) Rebuild(ctx context.Context, text string) error {
	entries, err := s.filteredEntries(ctx, "rebuild", text)
	if err != nil || len(entries) == 0 {
		return err
	}
	if _, err := db.DeleteAllWords(ctx, s.db); err != nil {
		return &Error{Op: "rebuild", Err: fmt.Errorf("clear: %w", err)}
	}
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return db.InsertWords(ctx, tx, entries)
	})
	if err != nil {
		return &Error{Op: "rebuild", Err: err}
	}
	return nil
}

// MergeUpdate adds the filtered word groups of text to the word book: stored
// words get their frequency increased, new words are inserted. The update is
// a single transaction; on failure the store is left exactly as it was.
func (s *Store) MergeUpdate(ctx context.Context, text string) error {
	entries, err := s.filteredEntries(ctx, "merge", text)
	if err != nil || len(entries) == 0 {
		return err
	}
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := db.StageWords(ctx, tx, entries); err != nil {
			return err
		}
		if _, _, err := db.MergeStagedWords(ctx, tx); err != nil {
			return err
		}
		return db.DropStagedWords(ctx, tx)
	})
	if err != nil {
		return &Error{Op: "merge", Err: err}
	}
	return nil
}

// Clear deletes every word. Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := db.DeleteAllWords(ctx, s.db); err != nil {
		return &Error{Op: "clear", Err: err}
	}
	return nil
}

// Search returns up to limit words starting with prefix, ordered by frequency
// descending then alphabetically. A limit of 0 returns every match.
func (s *Store) Search(ctx context.Context, prefix string, limit int) ([]string, error) {
	return search(ctx, s.db, prefix, limit)
}

// Frequency returns the stored frequency of word, or 0 if it is not stored.
func (s *Store) Frequency(ctx context.Context, word string) (int, error) {
	freq, _, err := db.GetWordFrequency(ctx, s.db, words.Normalize(word))
	if err != nil {
		return 0, &Error{Op: "frequency", Err: err}
	}
	return freq, nil
}

// Len returns the number of stored words.
func (s *Store) Len(ctx context.Context) (int, error) {
	n, err := db.CountWords(ctx, s.db)
	if err != nil {
		return 0, &Error{Op: "count", Err: err}
	}
	return n, nil
}

// Entries returns every stored entry ordered by word.
func (s *Store) Entries(ctx context.Context) ([]db.WordEntry, error) {
	entries, err := db.ListWords(ctx, s.db)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return entries, nil
}

func (s *Store) filteredEntries(ctx context.Context, op, text string) ([]db.WordEntry, error) {
	counts, err := s.counter.Count(ctx, text)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	groups := words.Filter(counts)
	entries := make([]db.WordEntry, 0, len(groups))
	for _, w := range slices.Sorted(maps.Keys(groups)) {
		entries = append(entries, db.WordEntry{Word: w, Frequency: groups[w]})
	}
	return entries, nil
}

var errNegativeLimit = errors.New("limit must not be negative")

func search(ctx context.Context, ex db.DBExecutor, prefix string, limit int) ([]string, error) {
	if limit < 0 {
		return nil, &Error{Op: "search", Err: errNegativeLimit}
	}
	found, err := db.SearchPrefix(ctx, ex, words.Normalize(prefix), limit)
	if err != nil {
		return nil, &Error{Op: "search", Err: err}
	}
	return found, nil
}
