package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *sql.DB, entries ...WordEntry) {
	t.Helper()
	if err := InsertWords(context.Background(), db, entries); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSearchPrefixRanking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seed(t, db,
		WordEntry{"april", 2},
		WordEntry{"apply", 5},
		WordEntry{"apple", 5},
		WordEntry{"banana", 9},
	)

	got, err := SearchPrefix(context.Background(), db, "ap", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := cmp.Diff([]string{"apple", "apply", "april"}, got); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}

	got, err = SearchPrefix(context.Background(), db, "ap", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := cmp.Diff([]string{"apple", "apply"}, got); diff != "" {
		t.Fatalf("limit mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchPrefixUnbounded(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	var entries []WordEntry
	for _, w := range []string{"cab", "cad", "cam", "can", "cap", "car", "cat"} {
		entries = append(entries, WordEntry{w, 1})
	}
	seed(t, db, entries...)

	got, err := SearchPrefix(context.Background(), db, "ca", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("expected %d rows with limit 0, got %d", len(entries), len(got))
	}
}

func TestSearchPrefixMatchesLiterally(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seed(t, db, WordEntry{"abcd", 1})

	for _, prefix := range []string{"%", "_bc", `a\`} {
		got, err := SearchPrefix(context.Background(), db, prefix, 5)
		if err != nil {
			t.Fatalf("search %q: %v", prefix, err)
		}
		if len(got) != 0 {
			t.Fatalf("prefix %q should match literally, got %v", prefix, got)
		}
	}
}

func TestStageAndMerge(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seed(t, db, WordEntry{"apple", 3}, WordEntry{"pear", 4})

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := StageWords(ctx, tx, []WordEntry{{"apple", 5}, {"plum", 3}}); err != nil {
			return err
		}
		updated, inserted, err := MergeStagedWords(ctx, tx)
		if err != nil {
			return err
		}
		if updated != 1 || inserted != 1 {
			t.Errorf("expected 1 updated/1 inserted, got %d/%d", updated, inserted)
		}
		return DropStagedWords(ctx, tx)
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := ListWords(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []WordEntry{{"apple", 8}, {"pear", 4}, {"plum", 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merge result mismatch (-want +got):\n%s", diff)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if err := InsertWords(ctx, tx, []WordEntry{{"ghost", 1}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	n, err := CountWords(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected rollback to leave 0 rows, got %d", n)
	}
}

func TestDeleteAllAndFrequency(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	seed(t, db, WordEntry{"alpha", 7}, WordEntry{"beta", 1})

	freq, found, err := GetWordFrequency(ctx, db, "alpha")
	if err != nil || !found || freq != 7 {
		t.Fatalf("expected alpha=7, got %d found=%v err=%v", freq, found, err)
	}
	if _, found, _ := GetWordFrequency(ctx, db, "gamma"); found {
		t.Fatalf("gamma should not be found")
	}

	removed, err := DeleteAllWords(ctx, db)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if removed, err = DeleteAllWords(ctx, db); err != nil || removed != 0 {
		t.Fatalf("second delete: removed=%d err=%v", removed, err)
	}
}

func TestSearchPrefixUsesWordIndex(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seed(t, db, WordEntry{"apple", 5}, WordEntry{"banana", 2})

	rows, err := db.Query("EXPLAIN QUERY PLAN "+searchPrefixSQL, "ap", "ap"+prefixUpperBound, 5)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			t.Fatalf("scan plan: %v", err)
		}
		plan = append(plan, detail)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("plan rows: %v", err)
	}

	joined := strings.Join(plan, "\n")
	if !strings.Contains(joined, "SEARCH words USING") || strings.Contains(joined, "SCAN words") {
		t.Fatalf("expected an index range search, got plan:\n%s", joined)
	}
}

func TestSearchPrefixRangeBounds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seed(t, db,
		WordEntry{"apa", 1},
		WordEntry{"apz", 1},
		WordEntry{"apё", 1},
		WordEntry{"aq_", 1},
		WordEntry{"aoz", 1},
	)

	got, err := SearchPrefix(context.Background(), db, "ap", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := cmp.Diff([]string{"apa", "apz", "apё"}, got); diff != "" {
		t.Fatalf("range mismatch (-want +got):\n%s", diff)
	}
}
