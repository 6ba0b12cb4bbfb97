package allowlist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDB answers membership queries from a set and counts lookups.
type fakeDB struct {
	members map[string]bool
	err     error
	queries int
}

type fakeRow struct {
	allowed bool
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.allowed
	return nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.queries++
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	return fakeRow{allowed: f.members[args[0].(string)]}
}

func TestContains(t *testing.T) {
	db := &fakeDB{members: map[string]bool{"mod-1": true}}
	s := NewStore(db, 0, testLogger())

	allowed, err := s.Contains(context.Background(), "mod-1")
	if err != nil || !allowed {
		t.Errorf("Contains(mod-1) = %v, %v, want true, nil", allowed, err)
	}

	allowed, err = s.Contains(context.Background(), "mod-2")
	if err != nil || allowed {
		t.Errorf("Contains(mod-2) = %v, %v, want false, nil", allowed, err)
	}
}

func TestContainsCachesWithinTTL(t *testing.T) {
	db := &fakeDB{members: map[string]bool{"mod-1": true}}
	s := NewStore(db, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := s.Contains(context.Background(), "mod-1"); err != nil {
			t.Fatalf("Contains() error = %v", err)
		}
	}
	if db.queries != 1 {
		t.Errorf("queries = %d, want 1 (cached)", db.queries)
	}

	s.Invalidate("mod-1")
	if _, err := s.Contains(context.Background(), "mod-1"); err != nil {
		t.Fatalf("Contains() after Invalidate error = %v", err)
	}
	if db.queries != 2 {
		t.Errorf("queries = %d after Invalidate, want 2", db.queries)
	}
}

func TestContainsPropagatesErrors(t *testing.T) {
	db := &fakeDB{err: errors.New("db down")}
	s := NewStore(db, time.Minute, testLogger())

	if _, err := s.Contains(context.Background(), "mod-1"); err == nil {
		t.Error("Contains() error = nil, want lookup failure")
	}
}
