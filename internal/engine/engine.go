package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sproutfi/basisledger/internal/backup"
	"github.com/sproutfi/basisledger/internal/basiscache"
	"github.com/sproutfi/basisledger/internal/fees"
	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/outbox"
	"github.com/sproutfi/basisledger/internal/reconstruct"
	"github.com/sproutfi/basisledger/internal/store"
	"github.com/sproutfi/basisledger/internal/telemetry"
)

// ErrInvalidInput marks a rejected call: malformed wallet address or an
// unusable amount. No state was mutated.
var ErrInvalidInput = errors.New("invalid input")

// Config holds engine tunables.
type Config struct {
	// FeePercent is the performance fee charged on realized profit.
	FeePercent float64

	// FullWithdrawalRatio is the write-time full-exit rule: withdrawing
	// at least this share of the live position resets the basis.
	FullWithdrawalRatio float64

	// CorruptionTolerance bounds how far the stored basis may exceed
	// the live vault value before the self-healing clamp kicks in.
	CorruptionTolerance float64

	// PushTimeout bounds each remote backup push.
	PushTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FeePercent:          15,
		FullWithdrawalRatio: 0.99,
		CorruptionTolerance: 1.01,
		PushTimeout:         15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FullWithdrawalRatio <= 0 {
		c.FullWithdrawalRatio = d.FullWithdrawalRatio
	}
	if c.CorruptionTolerance <= 1 {
		c.CorruptionTolerance = d.CorruptionTolerance
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = d.PushTimeout
	}
	return c
}

// Engine reconciles the local durable store, the remote backup store,
// and on-chain reconstruction into one read/write API for deposited
// basis. Local data is authoritative whenever present; the remote store
// is recovery-only and eventually consistent.
type Engine struct {
	config   Config
	deposits store.DepositStore
	cache    basiscache.Cache
	remote   BackupReader
	queue    *outbox.Queue
	recon    *reconstruct.Reconstructor
	metrics  *telemetry.Metrics

	// Serializes local read-modify-write cycles. One process owns the
	// local store, so a single mutex is enough.
	mu sync.Mutex

	pushes sync.WaitGroup
	now    func() time.Time
}

// BackupReader extends the pusher with the recovery read. Implemented
// by the backup client.
type BackupReader interface {
	outbox.RemotePusher
	GetDeposits(ctx context.Context, wallet string) (backup.Record, error)
}

// New wires an engine. cache, recon, and metrics may be nil; queue and
// remote must be non-nil.
func New(config Config, deposits store.DepositStore, cache basiscache.Cache,
	remote BackupReader, queue *outbox.Queue, recon *reconstruct.Reconstructor,
	metrics *telemetry.Metrics) *Engine {

	return &Engine{
		config:   config.withDefaults(),
		deposits: deposits,
		cache:    cache,
		remote:   remote,
		queue:    queue,
		recon:    recon,
		metrics:  metrics,
		now:      time.Now,
	}
}

// TotalDeposited returns the wallet's cost basis. Local data wins
// unconditionally when present: a remote read must never overwrite a
// local record, because the remote can be behind an in-flight push.
// Only a wallet with no local record consults the backup; a positive
// backup value is adopted locally (recovery) and returned. No data
// anywhere is basis 0, a normal outcome.
func (e *Engine) TotalDeposited(ctx context.Context, wallet string) (float64, error) {
	normalized, err := models.NormalizeAddress(wallet)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec, err := e.deposits.Get(ctx, normalized)
	if err != nil {
		return 0, fmt.Errorf("read local deposit record: %w", err)
	}
	if rec != nil && rec.Exists() {
		return rec.TotalDeposited, nil
	}

	remote, err := e.remote.GetDeposits(ctx, normalized)
	if err != nil {
		// Degraded but safe: no local record and no reachable backup
		// reads as a fresh wallet until the backend recovers.
		log.Warn().Err(err).Str("wallet", normalized).Msg("backup store unreachable during recovery read")
		return 0, nil
	}
	if !remote.Exists() || remote.TotalDeposited <= 0 {
		return 0, nil
	}

	adopted := models.DepositRecord{
		TotalDeposited: remote.TotalDeposited,
		LastUpdated:    e.now(),
	}
	if err := e.deposits.Put(ctx, normalized, adopted); err != nil {
		log.Error().Err(err).Str("wallet", normalized).Msg("failed to adopt recovered basis locally")
		return remote.TotalDeposited, nil
	}

	e.metrics.IncBackupRecovery()
	log.Info().
		Str("wallet", normalized).
		Float64("basis", remote.TotalDeposited).
		Msg("recovered deposit basis from backup store")
	return remote.TotalDeposited, nil
}

// RecordDeposit adds a confirmed deposit to the wallet's basis. The
// local write completes synchronously before return; the backup push is
// fire-and-forget, with a queued retry on failure.
func (e *Engine) RecordDeposit(ctx context.Context, wallet string, amount float64, txRef string) error {
	normalized, err := models.NormalizeAddress(wallet)
	if err != nil {
		log.Warn().Str("wallet", wallet).Msg("deposit rejected: malformed address")
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !models.ValidAmount(amount) {
		log.Warn().Str("wallet", normalized).Float64("amount", amount).Msg("deposit rejected: invalid amount")
		return fmt.Errorf("%w: deposit amount %v", ErrInvalidInput, amount)
	}

	if err := e.mutateRecord(ctx, normalized, func(rec *models.DepositRecord) {
		rec.TotalDeposited += amount
	}); err != nil {
		return err
	}

	e.pushes.Add(1)
	go func() {
		defer e.pushes.Done()
		pushCtx, cancel := context.WithTimeout(context.Background(), e.config.PushTimeout)
		defer cancel()
		if err := e.remote.PushDeposit(pushCtx, normalized, amount, txRef); err != nil {
			e.metrics.IncSyncPushFailure(string(models.OpDeposit))
			log.Warn().Err(err).Str("wallet", normalized).Msg("deposit backup push failed, queuing")
			if err := e.queue.EnqueueDeposit(pushCtx, normalized, amount, txRef); err != nil {
				log.Error().Err(err).Str("wallet", normalized).Msg("failed to queue deposit sync")
			}
		}
	}()
	return nil
}

// RecordWithdrawal applies the withdrawal basis rule. Withdrawing at
// least FullWithdrawalRatio of the live position (or withdrawing
// against a non-positive position) resets the basis to zero; otherwise
// the basis shrinks proportionally to the share of value withdrawn.
// Unlike deposits, the backup push is awaited before return: a stale
// un-synced withdrawal could let an already-cashed-out wallet re-claim
// a low basis.
func (e *Engine) RecordWithdrawal(ctx context.Context, wallet string, withdrawnValue, valueBefore float64) error {
	normalized, err := models.NormalizeAddress(wallet)
	if err != nil {
		log.Warn().Str("wallet", wallet).Msg("withdrawal rejected: malformed address")
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !models.ValidAmount(withdrawnValue) {
		log.Warn().Str("wallet", normalized).Float64("withdrawn", withdrawnValue).Msg("withdrawal rejected: invalid amount")
		return fmt.Errorf("%w: withdrawn value %v", ErrInvalidInput, withdrawnValue)
	}
	if !models.FiniteAmount(valueBefore) {
		return fmt.Errorf("%w: value before withdrawal %v", ErrInvalidInput, valueBefore)
	}

	if err := e.mutateRecord(ctx, normalized, func(rec *models.DepositRecord) {
		rec.TotalDeposited = e.withdrawalBasis(rec.TotalDeposited, withdrawnValue, valueBefore)
	}); err != nil {
		return err
	}

	pushCtx, cancel := context.WithTimeout(ctx, e.config.PushTimeout)
	defer cancel()
	if err := e.remote.PushWithdrawal(pushCtx, normalized, withdrawnValue, valueBefore); err != nil {
		e.metrics.IncSyncPushFailure(string(models.OpWithdrawal))
		log.Warn().Err(err).Str("wallet", normalized).Msg("withdrawal backup push failed, queuing")
		if err := e.queue.EnqueueWithdrawal(ctx, normalized, withdrawnValue, valueBefore); err != nil {
			log.Error().Err(err).Str("wallet", normalized).Msg("failed to queue withdrawal sync")
		}
	}
	return nil
}

func (e *Engine) withdrawalBasis(basis, withdrawnValue, valueBefore float64) float64 {
	fullWithdrawal := withdrawnValue >= e.config.FullWithdrawalRatio*valueBefore
	if fullWithdrawal || valueBefore <= 0 || basis <= 0 {
		return 0
	}
	basis -= basis * (withdrawnValue / valueBefore)
	if basis < 0 {
		basis = 0
	}
	return basis
}

// mutateRecord runs a synchronous read-modify-write on the local store
// and invalidates the reconstruction cache for the wallet.
func (e *Engine) mutateRecord(ctx context.Context, wallet string, mutate func(*models.DepositRecord)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.deposits.Get(ctx, wallet)
	if err != nil {
		return fmt.Errorf("read local deposit record: %w", err)
	}
	if rec == nil {
		rec = &models.DepositRecord{}
	}

	mutate(rec)
	if rec.TotalDeposited < 0 {
		rec.TotalDeposited = 0
	}
	rec.LastUpdated = e.now()

	if err := e.deposits.Put(ctx, wallet, *rec); err != nil {
		return fmt.Errorf("write local deposit record: %w", err)
	}

	if e.cache != nil {
		e.cache.Invalidate(ctx, wallet)
	}
	return nil
}

// Quote prices a full withdrawal of currentValue against the stored
// basis. When the stored basis exceeds the live value beyond the
// corruption tolerance, the basis is clamped down to the live value and
// the correction is persisted locally and remotely (self-healing).
func (e *Engine) Quote(ctx context.Context, wallet string, currentValue float64) (fees.Quote, error) {
	if !models.FiniteAmount(currentValue) || currentValue < 0 {
		return fees.Quote{}, fmt.Errorf("%w: current value %v", ErrInvalidInput, currentValue)
	}

	basis, err := e.TotalDeposited(ctx, wallet)
	if err != nil {
		return fees.Quote{}, err
	}

	if basis > currentValue*e.config.CorruptionTolerance {
		normalized, _ := models.NormalizeAddress(wallet)
		log.Warn().
			Str("wallet", normalized).
			Float64("stored_basis", basis).
			Float64("live_value", currentValue).
			Msg("stored basis exceeds live vault value, clamping")
		e.metrics.IncCorruptionClamp()

		if err := e.mutateRecord(ctx, normalized, func(rec *models.DepositRecord) {
			rec.TotalDeposited = currentValue
		}); err != nil {
			return fees.Quote{}, err
		}
		basis = currentValue

		if err := e.remote.SyncTotal(ctx, normalized, basis); err != nil {
			e.metrics.IncSyncPushFailure(string(models.OpSync))
			if err := e.queue.EnqueueSync(ctx, normalized, basis); err != nil {
				log.Error().Err(err).Str("wallet", normalized).Msg("failed to queue clamp sync")
			}
		}
	}

	return fees.Compute(basis, currentValue, e.config.FeePercent), nil
}

// Resync pushes the local record to the backup store as an idempotent
// overwrite (migration path), queuing on failure.
func (e *Engine) Resync(ctx context.Context, wallet string) error {
	normalized, err := models.NormalizeAddress(wallet)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rec, err := e.deposits.Get(ctx, normalized)
	if err != nil {
		return fmt.Errorf("read local deposit record: %w", err)
	}
	if rec == nil || !rec.Exists() {
		return nil
	}

	if err := e.remote.SyncTotal(ctx, normalized, rec.TotalDeposited); err != nil {
		e.metrics.IncSyncPushFailure(string(models.OpSync))
		log.Warn().Err(err).Str("wallet", normalized).Msg("resync push failed, queuing")
		return e.queue.EnqueueSync(ctx, normalized, rec.TotalDeposited)
	}
	return nil
}

// ReconstructBasis derives the wallet's basis from on-chain history.
// force bypasses the reconstruction cache.
func (e *Engine) ReconstructBasis(ctx context.Context, wallet string, force bool) (float64, error) {
	if e.recon == nil {
		return 0, errors.New("reconstruction not configured")
	}
	if force {
		return e.recon.Rebuild(ctx, wallet)
	}
	return e.recon.DepositedBasis(ctx, wallet)
}

// WaitForPushes blocks until in-flight fire-and-forget pushes finish.
// Intended for shutdown paths and tests.
func (e *Engine) WaitForPushes() {
	e.pushes.Wait()
}
