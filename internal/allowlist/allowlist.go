// Package allowlist answers the enrichment pipeline's authorization
// check: is this moderator allowed to launch tracked proposals?
//
// The list lives in the history store (moderator_allowlist table) and is
// administered elsewhere; this package only reads it, with a short TTL
// cache so a burst of launches does not hammer the database.
package allowlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// rowQuerier is the slice of the pgx pool the store uses.
// *pgxpool.Pool satisfies it.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store checks moderator membership against the allow-list table.
type Store struct {
	db     rowQuerier
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// NewStore creates an allow-list store. ttl bounds how stale a cached
// answer may be; zero disables caching.
func NewStore(db rowQuerier, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Contains reports whether the moderator is on the allow-list.
func (s *Store) Contains(ctx context.Context, moderator string) (bool, error) {
	if s.ttl > 0 {
		s.mu.Lock()
		entry, ok := s.cache[moderator]
		s.mu.Unlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.allowed, nil
		}
	}

	var allowed bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM moderator_allowlist WHERE moderator = $1)`,
		moderator,
	).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("allowlist lookup: %w", err)
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[moderator] = cacheEntry{allowed: allowed, expiresAt: time.Now().Add(s.ttl)}
		s.mu.Unlock()
	}

	return allowed, nil
}

// Invalidate drops any cached answer for the moderator.
func (s *Store) Invalidate(moderator string) {
	s.mu.Lock()
	delete(s.cache, moderator)
	s.mu.Unlock()
}
