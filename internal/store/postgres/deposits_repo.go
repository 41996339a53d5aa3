package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/store"
)

// depositsRepo implements store.DepositStore on PostgreSQL. Records are
// stored as JSON keyed by lowercased wallet address, matching the
// key-value shape of the local durable store contract.
type depositsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDepositStore creates a PostgreSQL-backed deposit store.
func NewDepositStore(db *sqlx.DB, timeout time.Duration) store.DepositStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &depositsRepo{db: db, timeout: timeout}
}

// Get returns the record for a wallet, or nil when none exists.
func (r *depositsRepo) Get(ctx context.Context, wallet string) (*models.DepositRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw []byte
	err := r.db.QueryRowxContext(ctx,
		`SELECT record FROM deposit_records WHERE wallet = $1`, wallet).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deposit record: %w", err)
	}

	var rec models.DepositRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode deposit record: %w", err)
	}
	return &rec, nil
}

// Put upserts the record synchronously.
func (r *depositsRepo) Put(ctx context.Context, wallet string, rec models.DepositRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode deposit record: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deposit_records (wallet, record, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (wallet) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`,
		wallet, raw)
	if err != nil {
		return fmt.Errorf("failed to write deposit record: %w", err)
	}
	return nil
}
