package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/store"
)

type pushCall struct {
	kind   models.OpKind
	wallet string
}

type fakeRemote struct {
	calls []pushCall
	err   error
}

func (f *fakeRemote) PushDeposit(_ context.Context, wallet string, _ float64, _ string) error {
	f.calls = append(f.calls, pushCall{models.OpDeposit, wallet})
	return f.err
}

func (f *fakeRemote) PushWithdrawal(_ context.Context, wallet string, _, _ float64) error {
	f.calls = append(f.calls, pushCall{models.OpWithdrawal, wallet})
	return f.err
}

func (f *fakeRemote) SyncTotal(_ context.Context, wallet string, _ float64) error {
	f.calls = append(f.calls, pushCall{models.OpSync, wallet})
	return f.err
}

const wallet = "0x1111111111111111111111111111111111111111"

func TestFlushReplaysAndRemoves(t *testing.T) {
	mem := store.NewMemoryStore()
	remote := &fakeRemote{}
	q := New(mem, remote, nil)
	ctx := context.Background()

	require.NoError(t, q.EnqueueDeposit(ctx, wallet, 100, "0xabc"))
	require.NoError(t, q.EnqueueWithdrawal(ctx, wallet, 60, 120))
	require.NoError(t, q.EnqueueSync(ctx, wallet, 360))

	stats, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Attempted)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)

	assert.Len(t, remote.calls, 3)
	remaining, err := mem.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining, "flushed operations must be removed")
}

func TestFlushIncrementsRetryCountOnFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	remote := &fakeRemote{err: errors.New("backend down")}
	q := New(mem, remote, nil)
	ctx := context.Background()

	require.NoError(t, q.EnqueueDeposit(ctx, wallet, 100, "0xabc"))

	stats, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	ops, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].RetryCount)
}

func TestFlushDropsExhaustedOperations(t *testing.T) {
	mem := store.NewMemoryStore()
	remote := &fakeRemote{}
	q := New(mem, remote, nil)
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, models.PendingSyncOperation{
		ID:         "exhausted-op",
		Kind:       models.OpDeposit,
		Wallet:     wallet,
		CreatedAt:  time.Now(),
		RetryCount: MaxRetryCount,
		Payload:    models.OpPayload{Amount: 100},
	}))

	stats, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.Empty(t, remote.calls, "exhausted operations are not retried")

	ops, _ := mem.List(ctx)
	assert.Empty(t, ops)
}

func TestFlushDropsStaleOperations(t *testing.T) {
	mem := store.NewMemoryStore()
	remote := &fakeRemote{}
	q := New(mem, remote, nil)
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, models.PendingSyncOperation{
		ID:        "stale-op",
		Kind:      models.OpSync,
		Wallet:    wallet,
		CreatedAt: time.Now().Add(-MaxOperationAge - time.Hour),
		Payload:   models.OpPayload{TotalDeposited: 50},
	}))

	stats, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.Empty(t, remote.calls)
}

func TestFlushRecoversAfterBackendComesBack(t *testing.T) {
	mem := store.NewMemoryStore()
	remote := &fakeRemote{err: errors.New("still down")}
	q := New(mem, remote, nil)
	ctx := context.Background()

	require.NoError(t, q.EnqueueDeposit(ctx, wallet, 42, "0xref"))

	for i := 0; i < 2; i++ {
		_, err := q.Flush(ctx)
		require.NoError(t, err)
	}

	remote.err = nil
	stats, err := q.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)

	ops, _ := mem.List(ctx)
	assert.Empty(t, ops)
}

func TestEnqueueAssignsUniqueIDs(t *testing.T) {
	mem := store.NewMemoryStore()
	q := New(mem, &fakeRemote{}, nil)
	ctx := context.Background()

	require.NoError(t, q.EnqueueDeposit(ctx, wallet, 1, "a"))
	require.NoError(t, q.EnqueueDeposit(ctx, wallet, 2, "b"))

	ops, err := mem.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.NotEqual(t, ops[0].ID, ops[1].ID)
	assert.NotEmpty(t, ops[0].ID)
}
