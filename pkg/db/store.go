package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DBExecutor is an interface that allows functions to accept *sql.DB, *sql.Tx or *sql.Conn.
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// DeleteAllWords removes every row from the word book and returns how many were removed.
func DeleteAllWords(ctx context.Context, db DBExecutor) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM words`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertWords inserts the given entries. Words must not already exist.
func InsertWords(ctx context.Context, db DBExecutor, entries []WordEntry) error {
	return insertInto(ctx, db, "words", entries)
}

func insertInto(ctx context.Context, db DBExecutor, table string, entries []WordEntry) error {
	stmt, err := db.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (word, frequency) VALUES (?, ?)`, table))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Word, e.Frequency); err != nil {
			return fmt.Errorf("insert %q into %s: %w", e.Word, table, err)
		}
	}
	return nil
}

// StageWords loads entries into the connection-local scratch table, replacing
// anything staged before. It must run on the same connection (usually a
// *sql.Tx) as the MergeStagedWords call that consumes the rows.
func StageWords(ctx context.Context, db DBExecutor, entries []WordEntry) error {
	if _, err := db.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS staged_words (
		word TEXT NOT NULL PRIMARY KEY,
		frequency INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM temp.staged_words`); err != nil {
		return fmt.Errorf("reset staging table: %w", err)
	}
	return insertInto(ctx, db, "temp.staged_words", entries)
}

// MergeStagedWords adds staged counts to existing words and inserts the staged
// words that are not stored yet. It returns the number of updated and inserted rows.
func MergeStagedWords(ctx context.Context, db DBExecutor) (updated, inserted int64, err error) {
	res, err := db.ExecContext(ctx, `UPDATE words
		SET frequency = frequency + (SELECT s.frequency FROM temp.staged_words s WHERE s.word = words.word)
		WHERE word IN (SELECT word FROM temp.staged_words)`)
	if err != nil {
		return 0, 0, fmt.Errorf("increment staged words: %w", err)
	}
	if updated, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}

	res, err = db.ExecContext(ctx, `INSERT INTO words (word, frequency)
		SELECT s.word, s.frequency FROM temp.staged_words s
		WHERE NOT EXISTS (SELECT 1 FROM words w WHERE w.word = s.word)`)
	if err != nil {
		return 0, 0, fmt.Errorf("insert staged words: %w", err)
	}
	if inserted, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}
	return updated, inserted, nil
}

// DropStagedWords removes the scratch table.
func DropStagedWords(ctx context.Context, db DBExecutor) error {
	_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS temp.staged_words`)
	return err
}

// searchPrefixSQL matches a prefix as a range on the unique word index:
// every word starting with p sorts in [p, p+prefixUpperBound).
const searchPrefixSQL = `SELECT word FROM words
	WHERE word >= ? AND word < ?
	ORDER BY frequency DESC, word ASC
	LIMIT ?`

// prefixUpperBound is the largest code point. Appended to a prefix it sorts
// after every word that starts with the prefix.
const prefixUpperBound = "\U0010FFFF"

// SearchPrefix returns up to limit words starting with prefix, most frequent
// first and alphabetical among equal frequencies. A limit of 0 means no limit.
// prefix must already be lowercase.
func SearchPrefix(ctx context.Context, db DBExecutor, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no row cap
	}
	rows, err := db.QueryContext(ctx, searchPrefixSQL, prefix, prefix+prefixUpperBound, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWordFrequency returns the stored frequency of word. found is false when
// the word is not stored.
func GetWordFrequency(ctx context.Context, db DBExecutor, word string) (freq int, found bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT frequency FROM words WHERE word = ?`, word).Scan(&freq)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return freq, true, nil
}

// CountWords returns the number of stored words.
func CountWords(ctx context.Context, db DBExecutor) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM words`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListWords returns every stored entry ordered by word.
func ListWords(ctx context.Context, db DBExecutor) ([]WordEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT word, frequency FROM words ORDER BY word`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WordEntry
	for rows.Next() {
		var e WordEntry
		if err := rows.Scan(&e.Word, &e.Frequency); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
