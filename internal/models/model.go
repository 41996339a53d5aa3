package models

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// DepositRecord is the authoritative per-wallet cost basis entry. A zero
// LastUpdated means "no record", not "recorded at epoch".
type DepositRecord struct {
	TotalDeposited float64   `json:"totalDeposited" db:"total_deposited"`
	LastUpdated    time.Time `json:"lastUpdated" db:"last_updated"`
}

// Exists reports whether the record has ever been written.
func (r DepositRecord) Exists() bool {
	return !r.LastUpdated.IsZero()
}

// TransferEvent is a single token transfer touching a wallet, as indexed
// by the transfer-history source. Read-only once parsed.
type TransferEvent struct {
	BlockNumber   uint64    `json:"blockNumber"`
	Timestamp     time.Time `json:"timestamp"`
	TxHash        string    `json:"txHash"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	RawValue      string    `json:"rawValue"`
	TokenDecimals int       `json:"tokenDecimals"`
}

// Amount converts the raw on-chain integer value into token units.
func (e TransferEvent) Amount() float64 {
	raw, ok := new(big.Float).SetString(e.RawValue)
	if !ok {
		return 0
	}
	scale := new(big.Float).SetFloat64(math.Pow10(e.TokenDecimals))
	if scale.Sign() == 0 {
		return 0
	}
	amount, _ := new(big.Float).Quo(raw, scale).Float64()
	return amount
}

// VaultAddressSet is the static set of known vault contract addresses,
// stored lowercased. Membership drives transfer classification.
type VaultAddressSet map[string]struct{}

// NewVaultAddressSet builds a set from raw addresses, lowercasing each.
func NewVaultAddressSet(addrs ...string) VaultAddressSet {
	set := make(VaultAddressSet, len(addrs))
	for _, a := range addrs {
		set[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return set
}

// Contains reports vault membership for an address (case-insensitive).
func (s VaultAddressSet) Contains(addr string) bool {
	_, ok := s[strings.ToLower(addr)]
	return ok
}

// OpKind classifies a pending sync operation.
type OpKind string

const (
	OpDeposit    OpKind = "deposit"
	OpWithdrawal OpKind = "withdrawal"
	OpSync       OpKind = "sync"
)

// OpPayload carries the kind-specific fields of a pending sync operation.
// Deposit operations keep the original transaction reference so a remote
// replay is idempotent rather than double-counted.
type OpPayload struct {
	Amount         float64 `json:"amount,omitempty"`
	TxRef          string  `json:"txRef,omitempty"`
	WithdrawnValue float64 `json:"withdrawnValue,omitempty"`
	ValueBefore    float64 `json:"totalValueBeforeWithdraw,omitempty"`
	TotalDeposited float64 `json:"totalDeposited,omitempty"`
}

// PendingSyncOperation is one durable record of a remote write that has
// not yet landed on the backup store.
type PendingSyncOperation struct {
	ID         string    `json:"id" db:"id"`
	Kind       OpKind    `json:"kind" db:"kind"`
	Wallet     string    `json:"wallet" db:"wallet"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	RetryCount int       `json:"retryCount" db:"retry_count"`
	Payload    OpPayload `json:"payload" db:"payload"`
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress validates a hex wallet address and returns it
// lowercased. All map keys and store keys go through this.
func NormalizeAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if !addressPattern.MatchString(trimmed) {
		return "", fmt.Errorf("malformed address %q", addr)
	}
	return strings.ToLower(trimmed), nil
}

// ValidAmount reports whether v is a usable positive money amount.
func ValidAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// FiniteAmount reports whether v is a finite number (sign unconstrained).
func FiniteAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
