package store

import (
	"context"
	"sync"

	"github.com/sproutfi/basisledger/internal/models"
)

// MemoryStore implements DepositStore and OutboxStore in process memory.
// Used in tests and as the fallback when no database is configured; in
// that mode durability is limited to the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	deposits map[string]models.DepositRecord
	outbox   []models.PendingSyncOperation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{deposits: make(map[string]models.DepositRecord)}
}

// Get returns a copy of the wallet's record, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, wallet string) (*models.DepositRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.deposits[wallet]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

// Put stores the record.
func (s *MemoryStore) Put(_ context.Context, wallet string, rec models.DepositRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposits[wallet] = rec
	return nil
}

// Append adds a pending operation.
func (s *MemoryStore) Append(_ context.Context, op models.PendingSyncOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, op)
	return nil
}

// List returns pending operations in insertion order.
func (s *MemoryStore) List(_ context.Context) ([]models.PendingSyncOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PendingSyncOperation, len(s.outbox))
	copy(out, s.outbox)
	return out, nil
}

// Remove deletes an operation by id.
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, op := range s.outbox {
		if op.ID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

// SetRetryCount updates an operation's retry counter.
func (s *MemoryStore) SetRetryCount(_ context.Context, id string, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].RetryCount = retryCount
			return nil
		}
	}
	return nil
}
