package store

import (
	"context"

	"github.com/sproutfi/basisledger/internal/models"
)

// DepositStore is the local durable record of per-wallet cost basis.
// Writes are synchronous: a successful Put means the record survives a
// process restart. Keys are lowercased wallet addresses.
type DepositStore interface {
	// Get returns the record for a wallet, or nil when none exists.
	Get(ctx context.Context, wallet string) (*models.DepositRecord, error)

	// Put writes the record, replacing any previous one.
	Put(ctx context.Context, wallet string, rec models.DepositRecord) error
}

// OutboxStore durably holds remote writes that have not yet landed on
// the backup store.
type OutboxStore interface {
	// Append adds an operation to the queue.
	Append(ctx context.Context, op models.PendingSyncOperation) error

	// List returns all pending operations in insertion order.
	List(ctx context.Context) ([]models.PendingSyncOperation, error)

	// Remove deletes an operation by id. Removing an unknown id is not
	// an error.
	Remove(ctx context.Context, id string) error

	// SetRetryCount updates the retry counter of an operation.
	SetRetryCount(ctx context.Context, id string, retryCount int) error
}
