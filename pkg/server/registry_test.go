package server

import (
	"net"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newIdleSession(t *testing.T, id string) *Session {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return NewSession(id, a, &SessionConfig{Store: &fakeSearcher{}, Log: discardLogger()})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	one, two := newIdleSession(t, "one"), newIdleSession(t, "two")
	r.Add(one)
	r.Add(two)

	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}

	ids := make([]string, 0, 2)
	for _, s := range r.Snapshot() {
		ids = append(ids, s.ID)
	}
	slices.Sort(ids)
	if diff := cmp.Diff([]string{"one", "two"}, ids); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	r.StopAll()
	if one.running.Load() || two.running.Load() {
		t.Fatal("StopAll should stop every session")
	}

	if !r.Remove("one") {
		t.Fatal("expected removal of session one")
	}
	if r.Remove("one") {
		t.Fatal("second removal should report false")
	}
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}
