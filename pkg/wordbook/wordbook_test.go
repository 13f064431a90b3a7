package wordbook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/japaniel/autotext/pkg/db"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wordbook.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// repeat builds a text in which every word appears the given number of times.
func repeat(counts map[string]int) string {
	var b strings.Builder
	for w, n := range counts {
		for i := 0; i < n; i++ {
			b.WriteString(w)
			b.WriteString(". ")
		}
	}
	return b.String()
}

func entries(t *testing.T, s *Store) []db.WordEntry {
	t.Helper()
	got, err := s.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	return got
}

func TestRebuildReplacesStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Rebuild(ctx, repeat(map[string]int{"old": 3, "stale": 4})); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if err := s.Rebuild(ctx, repeat(map[string]int{"Apple": 5, "pear": 3, "fig": 2, "go": 9})); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	want := []db.WordEntry{{Word: "apple", Frequency: 5}, {Word: "pear", Frequency: 3}}
	if diff := cmp.Diff(want, entries(t, s)); diff != "" {
		t.Fatalf("store after rebuild (-want +got):\n%s", diff)
	}
	for _, e := range want {
		found, err := s.Search(ctx, e.Word, 0)
		if err != nil {
			t.Fatalf("search %q: %v", e.Word, err)
		}
		if len(found) == 0 {
			t.Fatalf("expected %q to be searchable", e.Word)
		}
	}
}

func TestRebuildWithoutQualifyingWordsIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"keep": 3})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := s.Rebuild(ctx, "rare words only once twice"); err != nil {
		t.Fatalf("noop rebuild: %v", err)
	}
	want := []db.WordEntry{{Word: "keep", Frequency: 3}}
	if diff := cmp.Diff(want, entries(t, s)); diff != "" {
		t.Fatalf("store changed (-want +got):\n%s", diff)
	}
}

func TestMergeUpdateSumsCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Rebuild(ctx, repeat(map[string]int{"both": 3, "first": 4})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := s.MergeUpdate(ctx, repeat(map[string]int{"BOTH": 5, "second": 3, "noise": 1})); err != nil {
		t.Fatalf("merge: %v", err)
	}

	want := []db.WordEntry{
		{Word: "both", Frequency: 8},
		{Word: "first", Frequency: 4},
		{Word: "second", Frequency: 3},
	}
	if diff := cmp.Diff(want, entries(t, s)); diff != "" {
		t.Fatalf("store after merge (-want +got):\n%s", diff)
	}
}

func TestMergeUpdateEmptyGroupsLeavesStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"steady": 6})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	before := entries(t, s)
	if err := s.MergeUpdate(ctx, "steady steady other"); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if diff := cmp.Diff(before, entries(t, s)); diff != "" {
		t.Fatalf("noop merge changed store (-before +after):\n%s", diff)
	}
}

func rejectOnInsert(t *testing.T, s *Store, word string) {
	t.Helper()
	_, err := s.db.Exec(fmt.Sprintf(`CREATE TRIGGER reject_word BEFORE INSERT ON words
		WHEN NEW.word = '%s' BEGIN SELECT RAISE(ABORT, 'rejected'); END`, word))
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

func TestMergeUpdateRollsBackOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"apple": 3})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	before := entries(t, s)
	rejectOnInsert(t, s, "plum")

	err := s.MergeUpdate(ctx, repeat(map[string]int{"apple": 4, "plum": 3}))
	var werr *Error
	if !errors.As(err, &werr) || werr.Op != "merge" {
		t.Fatalf("expected merge *Error, got %v", err)
	}
	if diff := cmp.Diff(before, entries(t, s)); diff != "" {
		t.Fatalf("failed merge changed store (-before +after):\n%s", diff)
	}
}

func TestRebuildInsertFailureLeavesStoreCleared(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"apple": 3})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rejectOnInsert(t, s, "plum")

	err := s.Rebuild(ctx, repeat(map[string]int{"cherry": 3, "plum": 3}))
	var werr *Error
	if !errors.As(err, &werr) || werr.Op != "rebuild" {
		t.Fatalf("expected rebuild *Error, got %v", err)
	}
	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty store after failed rebuild, got %d words", n)
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
	if err := s.Rebuild(ctx, repeat(map[string]int{"alpha": 3, "beta": 3})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for _, prefix := range []string{"a", "b", "alpha", ""} {
		got, err := s.Search(ctx, prefix, 0)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no matches for %q after clear, got %v", prefix, got)
		}
	}
}

func TestSearchRanking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"apple": 5, "apply": 5, "april": 3, "banana": 9})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got, err := s.Search(ctx, "AP", DefaultLimit)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := cmp.Diff([]string{"apple", "apply", "april"}, got); diff != "" {
		t.Fatalf("ranking mismatch (-want +got):\n%s", diff)
	}

	if got, err := s.Search(ctx, "apricot", DefaultLimit); err != nil || len(got) != 0 {
		t.Fatalf("expected no matches, got %v err=%v", got, err)
	}
	if _, err := s.Search(ctx, "ap", -1); err == nil {
		t.Fatalf("expected error for negative limit")
	}
}

func TestFrequencyIsCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"Москва": 4})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	freq, err := s.Frequency(ctx, "МОСКВА")
	if err != nil {
		t.Fatalf("frequency: %v", err)
	}
	if freq != 4 {
		t.Fatalf("expected 4, got %d", freq)
	}
	if freq, _ := s.Frequency(ctx, "missing"); freq != 0 {
		t.Fatalf("expected 0 for missing word, got %d", freq)
	}
}

func TestHandlesSearchDuringMerges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Rebuild(ctx, repeat(map[string]int{"shared": 3})); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	const readers = 6
	const merges = 5
	var wg sync.WaitGroup
	errs := make(chan error, readers+merges)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := s.Handle(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer h.Close()
			for j := 0; j < 20; j++ {
				got, err := h.Search(ctx, "sha", DefaultLimit)
				if err != nil {
					errs <- err
					return
				}
				if len(got) != 1 || got[0] != "shared" {
					errs <- fmt.Errorf("unexpected result %v", got)
					return
				}
			}
		}()
	}
	for i := 0; i < merges; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.MergeUpdate(ctx, repeat(map[string]int{"shared": 3})); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent access: %v", err)
	}

	freq, err := s.Frequency(ctx, "shared")
	if err != nil {
		t.Fatalf("frequency: %v", err)
	}
	if want := 3 * (merges + 1); freq != want {
		t.Fatalf("expected frequency %d, got %d", want, freq)
	}
}
