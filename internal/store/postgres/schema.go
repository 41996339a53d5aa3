package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema holds the DDL for the local durable store tables.
const Schema = `
CREATE TABLE IF NOT EXISTS deposit_records (
	wallet     TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pending_sync_ops (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	wallet      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	payload     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_sync_ops_created_at
	ON pending_sync_ops (created_at);
`

// EnsureSchema creates the store tables when missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
