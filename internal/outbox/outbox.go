package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/store"
	"github.com/sproutfi/basisledger/internal/telemetry"
)

const (
	// MaxRetryCount is how many flush attempts an operation gets before
	// it is dropped as exhausted.
	MaxRetryCount = 5

	// MaxOperationAge is the staleness bound: operations older than this
	// are dropped rather than retried forever.
	MaxOperationAge = 7 * 24 * time.Hour
)

// RemotePusher is the subset of the backup client the queue replays
// operations against.
type RemotePusher interface {
	PushDeposit(ctx context.Context, wallet string, amount float64, txHash string) error
	PushWithdrawal(ctx context.Context, wallet string, withdrawnValue, valueBefore float64) error
	SyncTotal(ctx context.Context, wallet string, totalDeposited float64) error
}

// Queue makes remote backup writes eventually consistent: failed pushes
// are recorded durably and replayed on explicit flushes (startup,
// network recovery, manual).
type Queue struct {
	store   store.OutboxStore
	remote  RemotePusher
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New creates a queue. metrics may be nil.
func New(outboxStore store.OutboxStore, remote RemotePusher, metrics *telemetry.Metrics) *Queue {
	return &Queue{store: outboxStore, remote: remote, metrics: metrics, now: time.Now}
}

// EnqueueDeposit records a failed deposit push for later replay. The
// transaction reference keeps the remote replay idempotent.
func (q *Queue) EnqueueDeposit(ctx context.Context, wallet string, amount float64, txRef string) error {
	return q.enqueue(ctx, models.OpDeposit, wallet, models.OpPayload{Amount: amount, TxRef: txRef})
}

// EnqueueWithdrawal records a failed withdrawal push.
func (q *Queue) EnqueueWithdrawal(ctx context.Context, wallet string, withdrawnValue, valueBefore float64) error {
	return q.enqueue(ctx, models.OpWithdrawal, wallet, models.OpPayload{
		WithdrawnValue: withdrawnValue,
		ValueBefore:    valueBefore,
	})
}

// EnqueueSync records a failed total-overwrite push.
func (q *Queue) EnqueueSync(ctx context.Context, wallet string, totalDeposited float64) error {
	return q.enqueue(ctx, models.OpSync, wallet, models.OpPayload{TotalDeposited: totalDeposited})
}

func (q *Queue) enqueue(ctx context.Context, kind models.OpKind, wallet string, payload models.OpPayload) error {
	op := models.PendingSyncOperation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Wallet:    wallet,
		CreatedAt: q.now(),
		Payload:   payload,
	}
	if err := q.store.Append(ctx, op); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", kind, wallet, err)
	}
	log.Info().
		Str("op", op.ID).
		Str("kind", string(kind)).
		Str("wallet", wallet).
		Msg("queued pending sync operation")
	return nil
}

// FlushStats summarizes one flush pass.
type FlushStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
}

// Flush replays the queue once. Stale and exhausted operations are
// dropped (bounded eventual-consistency loss, by policy); the rest are
// re-pushed, removed on success or aged by one retry on failure.
func (q *Queue) Flush(ctx context.Context) (FlushStats, error) {
	var stats FlushStats

	ops, err := q.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list pending operations: %w", err)
	}

	now := q.now()
	for _, op := range ops {
		if now.Sub(op.CreatedAt) > MaxOperationAge {
			q.drop(ctx, op, "stale")
			stats.Dropped++
			continue
		}
		if op.RetryCount >= MaxRetryCount {
			q.drop(ctx, op, "exhausted")
			stats.Dropped++
			continue
		}

		stats.Attempted++
		if err := q.push(ctx, op); err != nil {
			stats.Failed++
			log.Warn().
				Err(err).
				Str("op", op.ID).
				Str("kind", string(op.Kind)).
				Int("retry_count", op.RetryCount+1).
				Msg("pending sync replay failed")
			if err := q.store.SetRetryCount(ctx, op.ID, op.RetryCount+1); err != nil {
				log.Error().Err(err).Str("op", op.ID).Msg("failed to bump retry count")
			}
			continue
		}

		stats.Succeeded++
		q.metrics.IncOutboxFlushed()
		if err := q.store.Remove(ctx, op.ID); err != nil {
			log.Error().Err(err).Str("op", op.ID).Msg("failed to remove flushed operation")
		}
	}

	log.Info().
		Int("attempted", stats.Attempted).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("dropped", stats.Dropped).
		Msg("pending sync flush complete")
	return stats, nil
}

func (q *Queue) push(ctx context.Context, op models.PendingSyncOperation) error {
	switch op.Kind {
	case models.OpDeposit:
		return q.remote.PushDeposit(ctx, op.Wallet, op.Payload.Amount, op.Payload.TxRef)
	case models.OpWithdrawal:
		return q.remote.PushWithdrawal(ctx, op.Wallet, op.Payload.WithdrawnValue, op.Payload.ValueBefore)
	case models.OpSync:
		return q.remote.SyncTotal(ctx, op.Wallet, op.Payload.TotalDeposited)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (q *Queue) drop(ctx context.Context, op models.PendingSyncOperation, reason string) {
	q.metrics.IncOutboxDropped(reason)
	log.Warn().
		Str("op", op.ID).
		Str("kind", string(op.Kind)).
		Str("wallet", op.Wallet).
		Str("reason", reason).
		Msg("dropping pending sync operation")
	if err := q.store.Remove(ctx, op.ID); err != nil {
		log.Error().Err(err).Str("op", op.ID).Msg("failed to remove dropped operation")
	}
}
