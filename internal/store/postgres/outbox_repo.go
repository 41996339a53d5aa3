package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/store"
)

// outboxRepo implements store.OutboxStore on PostgreSQL.
type outboxRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOutboxStore creates a PostgreSQL-backed pending-sync queue store.
func NewOutboxStore(db *sqlx.DB, timeout time.Duration) store.OutboxStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &outboxRepo{db: db, timeout: timeout}
}

// Append inserts a pending operation.
func (r *outboxRepo) Append(ctx context.Context, op models.PendingSyncOperation) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode operation payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_sync_ops (id, kind, wallet, created_at, retry_count, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		op.ID, string(op.Kind), op.Wallet, op.CreatedAt, op.RetryCount, payload)
	if err != nil {
		return fmt.Errorf("failed to append pending operation: %w", err)
	}
	return nil
}

// List returns pending operations oldest first.
func (r *outboxRepo) List(ctx context.Context) ([]models.PendingSyncOperation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, kind, wallet, created_at, retry_count, payload
		FROM pending_sync_ops
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingSyncOperation
	for rows.Next() {
		var (
			op      models.PendingSyncOperation
			kind    string
			payload []byte
		)
		if err := rows.Scan(&op.ID, &kind, &op.Wallet, &op.CreatedAt, &op.RetryCount, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan pending operation: %w", err)
		}
		op.Kind = models.OpKind(kind)
		if err := json.Unmarshal(payload, &op.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode operation payload: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Remove deletes an operation by id.
func (r *outboxRepo) Remove(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_sync_ops WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove pending operation: %w", err)
	}
	return nil
}

// SetRetryCount updates the retry counter of an operation.
func (r *outboxRepo) SetRetryCount(ctx context.Context, id string, retryCount int) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx,
		`UPDATE pending_sync_ops SET retry_count = $2 WHERE id = $1`, id, retryCount); err != nil {
		return fmt.Errorf("failed to update retry count: %w", err)
	}
	return nil
}
