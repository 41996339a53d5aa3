package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutfi/basisledger/internal/basiscache"
	"github.com/sproutfi/basisledger/internal/models"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testVault  = "0x2222222222222222222222222222222222222222"
)

var testVaults = models.NewVaultAddressSet(testVault)

// usdc builds a transfer event with 6-decimal token units.
func usdc(block uint64, from, to string, amount float64) models.TransferEvent {
	return models.TransferEvent{
		BlockNumber:   block,
		Timestamp:     time.Unix(1700000000+int64(block), 0),
		TxHash:        fmt.Sprintf("0xtx%d", block),
		From:          from,
		To:            to,
		RawValue:      fmt.Sprintf("%.0f", amount*1e6),
		TokenDecimals: 6,
	}
}

type fakeSource struct {
	events []models.TransferEvent
	err    error
	calls  int
}

func (f *fakeSource) TokenTransfers(_ context.Context, _ string) ([]models.TransferEvent, error) {
	f.calls++
	return f.events, f.err
}

func TestReplaySimpleDeposit(t *testing.T) {
	basis := Replay([]models.TransferEvent{
		usdc(100, testWallet, testVault, 100),
	}, testWallet, testVaults)

	assert.InDelta(t, 100.0, basis, 1e-9)
}

func TestReplayFullExitResetsToExactZero(t *testing.T) {
	// Deposit $100, yield grows position to $120, withdraw all $120.
	basis := Replay([]models.TransferEvent{
		usdc(100, testWallet, testVault, 100),
		usdc(200, testVault, testWallet, 120),
	}, testWallet, testVaults)

	assert.Equal(t, 0.0, basis, "full exit must reset basis to exactly zero")
}

func TestReplayExitThenReenterStartsFresh(t *testing.T) {
	// A second deposit cycle must not inherit the first cycle's basis.
	basis := Replay([]models.TransferEvent{
		usdc(100, testWallet, testVault, 500),
		usdc(200, testVault, testWallet, 510), // full exit
		usdc(300, testWallet, testVault, 200), // fresh cycle
	}, testWallet, testVaults)

	assert.InDelta(t, 200.0, basis, 1e-9)
}

func TestReplayPartialWithdrawalKeepsBasis(t *testing.T) {
	// Withdrawing less than the position leaves the basis untouched;
	// proportional reduction is a write-time rule, not a replay rule.
	basis := Replay([]models.TransferEvent{
		usdc(100, testWallet, testVault, 100),
		usdc(200, testVault, testWallet, 40),
	}, testWallet, testVaults)

	assert.InDelta(t, 100.0, basis, 1e-9)
}

func TestReplayNearZeroBalanceCountsAsExit(t *testing.T) {
	// $0.50 left in the vault is below the one-token threshold.
	basis := Replay([]models.TransferEvent{
		usdc(100, testWallet, testVault, 100),
		usdc(200, testVault, testWallet, 99.5),
	}, testWallet, testVaults)

	assert.Equal(t, 0.0, basis)
}

func TestReplayIgnoresUnrelatedTransfers(t *testing.T) {
	other := "0x3333333333333333333333333333333333333333"
	basis := Replay([]models.TransferEvent{
		usdc(100, testWallet, other, 50),  // plain transfer out
		usdc(150, other, testWallet, 30),  // plain transfer in
		usdc(200, testWallet, testVault, 80),
		usdc(250, other, testVault, 999),  // someone else's deposit
	}, testWallet, testVaults)

	assert.InDelta(t, 80.0, basis, 1e-9)
}

func TestReplayIgnoresZeroValueTransfers(t *testing.T) {
	events := []models.TransferEvent{
		usdc(100, testWallet, testVault, 100),
		{BlockNumber: 150, From: testVault, To: testWallet, RawValue: "0", TokenDecimals: 6},
	}
	basis := Replay(events, testWallet, testVaults)
	assert.InDelta(t, 100.0, basis, 1e-9)
}

func TestReplayUnsortedInputIsReordered(t *testing.T) {
	// Withdrawal listed first; chronological replay must still see the
	// deposit before it.
	basis := Replay([]models.TransferEvent{
		usdc(200, testVault, testWallet, 120),
		usdc(100, testWallet, testVault, 100),
	}, testWallet, testVaults)

	assert.Equal(t, 0.0, basis)
}

func TestReplayIdempotent(t *testing.T) {
	events := []models.TransferEvent{
		usdc(100, testWallet, testVault, 250),
		usdc(200, testVault, testWallet, 100),
		usdc(300, testWallet, testVault, 75),
	}

	first := Replay(events, testWallet, testVaults)
	second := Replay(events, testWallet, testVaults)
	assert.Equal(t, first, second)
}

func TestReplayBasisNeverNegative(t *testing.T) {
	// Withdrawals with no matching deposits (partial history artifacts).
	basis := Replay([]models.TransferEvent{
		usdc(100, testVault, testWallet, 50),
		usdc(200, testVault, testWallet, 75),
	}, testWallet, testVaults)

	assert.GreaterOrEqual(t, basis, 0.0)
}

func TestDepositedBasisEmptyHistory(t *testing.T) {
	source := &fakeSource{}
	r := New(source, testVaults, nil, nil)

	basis, err := r.DepositedBasis(context.Background(), testWallet)
	require.NoError(t, err, "empty history is a normal result, not an error")
	assert.Equal(t, 0.0, basis)
}

func TestDepositedBasisTransientFailurePropagates(t *testing.T) {
	transient := errors.New("explorer down")
	source := &fakeSource{err: transient}
	r := New(source, testVaults, nil, nil)

	_, err := r.DepositedBasis(context.Background(), testWallet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transient))
}

func TestDepositedBasisRejectsMalformedAddress(t *testing.T) {
	source := &fakeSource{}
	r := New(source, testVaults, nil, nil)

	_, err := r.DepositedBasis(context.Background(), "not-an-address")
	assert.Error(t, err)
	assert.Zero(t, source.calls)
}

func TestDepositedBasisUsesCache(t *testing.T) {
	source := &fakeSource{events: []models.TransferEvent{
		usdc(100, testWallet, testVault, 100),
	}}
	cache := basiscache.NewMemoryCache(5 * time.Minute)
	defer cache.Stop()
	r := New(source, testVaults, cache, nil)
	ctx := context.Background()

	basis, err := r.DepositedBasis(ctx, testWallet)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, basis, 1e-9)
	assert.Equal(t, 1, source.calls)

	// Within TTL: served from cache, source not re-invoked.
	basis, err = r.DepositedBasis(ctx, testWallet)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, basis, 1e-9)
	assert.Equal(t, 1, source.calls)

	// After invalidation the next read must re-derive.
	cache.Invalidate(ctx, testWallet)
	_, err = r.DepositedBasis(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestRebuildBypassesCacheRead(t *testing.T) {
	source := &fakeSource{events: []models.TransferEvent{
		usdc(100, testWallet, testVault, 42),
	}}
	cache := basiscache.NewMemoryCache(5 * time.Minute)
	defer cache.Stop()
	r := New(source, testVaults, cache, nil)
	ctx := context.Background()

	cache.Set(ctx, testWallet, 999)

	basis, err := r.Rebuild(ctx, testWallet)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, basis, 1e-9)
	assert.Equal(t, 1, source.calls)

	// Rebuild refreshes the cache with the replayed value.
	cached, _, ok := cache.Get(ctx, testWallet)
	require.True(t, ok)
	assert.InDelta(t, 42.0, cached, 1e-9)
}
