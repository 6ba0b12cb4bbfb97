package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		signature   TEXT NOT NULL,
		proposal    TEXT NOT NULL,
		market      INTEGER NOT NULL,
		pool        TEXT NOT NULL,
		trader      TEXT NOT NULL,
		direction   TEXT NOT NULL,
		price       NUMERIC,
		amount_in   BIGINT NOT NULL,
		amount_out  BIGINT NOT NULL,
		fee         BIGINT NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (signature, pool)
	)`,
	`CREATE INDEX IF NOT EXISTS trades_proposal_executed_at_idx
		ON trades (proposal, executed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS twap_snapshots (
		proposal    TEXT NOT NULL,
		market      INTEGER NOT NULL,
		twap        NUMERIC NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS twap_snapshots_proposal_recorded_at_idx
		ON twap_snapshots (proposal, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS moderator_allowlist (
		moderator TEXT PRIMARY KEY,
		added_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the history store tables if they are missing.
// Idempotent, runs at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
