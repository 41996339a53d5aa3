package reconstruct

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sproutfi/basisledger/internal/basiscache"
	"github.com/sproutfi/basisledger/internal/models"
	"github.com/sproutfi/basisledger/internal/telemetry"
)

// FullExitThreshold is the vault balance, in deposit-token units, below
// which a withdrawal counts as a full exit. One unit of a dollar-pegged
// token leaves no meaningful position behind; resetting there keeps a
// prior deposit cycle's basis from leaking into a fresh one.
const FullExitThreshold = 1.0

// HistorySource yields a wallet's deposit-token transfers, ascending by
// block number. Implemented by the explorer client.
type HistorySource interface {
	TokenTransfers(ctx context.Context, wallet string) ([]models.TransferEvent, error)
}

// Reconstructor derives a wallet's deposited-principal basis purely
// from on-chain transfer history. It is the ultimate source of truth:
// no locally cached state participates in the replay.
type Reconstructor struct {
	source  HistorySource
	vaults  models.VaultAddressSet
	cache   basiscache.Cache
	metrics *telemetry.Metrics
}

// New creates a reconstructor. cache and metrics may be nil.
func New(source HistorySource, vaults models.VaultAddressSet, cache basiscache.Cache, metrics *telemetry.Metrics) *Reconstructor {
	return &Reconstructor{source: source, vaults: vaults, cache: cache, metrics: metrics}
}

// DepositedBasis returns the wallet's reconstructed basis, serving from
// the cache when a fresh entry exists. A transient source failure
// propagates as an error; an empty history is basis 0 with no error.
func (r *Reconstructor) DepositedBasis(ctx context.Context, wallet string) (float64, error) {
	normalized, err := models.NormalizeAddress(wallet)
	if err != nil {
		return 0, fmt.Errorf("reconstruct basis: %w", err)
	}

	if r.cache != nil {
		if basis, age, ok := r.cache.Get(ctx, normalized); ok {
			r.metrics.IncCacheHit()
			log.Debug().
				Str("wallet", normalized).
				Dur("age", age).
				Float64("basis", basis).
				Msg("serving reconstructed basis from cache")
			return basis, nil
		}
		r.metrics.IncCacheMiss()
	}

	return r.Rebuild(ctx, normalized)
}

// Rebuild always refetches history and replays it, bypassing the cache
// on the read side but refreshing it on success.
func (r *Reconstructor) Rebuild(ctx context.Context, wallet string) (float64, error) {
	normalized, err := models.NormalizeAddress(wallet)
	if err != nil {
		return 0, fmt.Errorf("reconstruct basis: %w", err)
	}

	events, err := r.source.TokenTransfers(ctx, normalized)
	if err != nil {
		r.metrics.IncReconstruction("failure", -1)
		return 0, fmt.Errorf("fetch transfer history: %w", err)
	}

	basis := Replay(events, normalized, r.vaults)
	r.metrics.IncReconstruction("success", len(events))

	if r.cache != nil {
		r.cache.Set(ctx, normalized, basis)
	}
	return basis, nil
}

// Replay folds transfer events into a deposited basis. Pure: the same
// event list always yields the same result.
//
// Deposits (wallet to vault) grow both the basis and the running vault
// balance. Withdrawals (vault to wallet) shrink the balance, and once
// it drops below FullExitThreshold both values reset to exactly zero.
// Transfers not matching either direction are ignored.
func Replay(events []models.TransferEvent, wallet string, vaults models.VaultAddressSet) float64 {
	ordered := make([]models.TransferEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].BlockNumber < ordered[j].BlockNumber
	})

	var depositedBasis, vaultBalance float64
	for _, event := range ordered {
		amount := event.Amount()
		if amount <= 0 {
			continue
		}

		switch {
		case event.From == wallet && vaults.Contains(event.To):
			depositedBasis += amount
			vaultBalance += amount

		case vaults.Contains(event.From) && event.To == wallet:
			vaultBalance -= amount
			if vaultBalance < FullExitThreshold {
				// Full exit: exact zeros, not "approximately empty".
				depositedBasis = 0
				vaultBalance = 0
			}
		}
	}

	if depositedBasis < 0 {
		depositedBasis = 0
	}
	return depositedBasis
}
