package basiscache

import (
	"context"
	"time"
)

// DefaultTTL is how long a reconstructed basis stays servable before a
// read is forced back to on-chain replay.
const DefaultTTL = 5 * time.Minute

// Cache memoizes reconstructed basis values per wallet. Entries hold a
// derived value, never an authoritative write: invalidation on every
// recorded deposit or withdrawal keeps reads from serving a basis
// computed before the mutation.
type Cache interface {
	// Get returns the cached basis and its age. ok is false for a
	// missing or expired entry.
	Get(ctx context.Context, wallet string) (basis float64, age time.Duration, ok bool)

	// Set stores a freshly reconstructed basis with the current time.
	Set(ctx context.Context, wallet string, basis float64)

	// Invalidate drops the entry immediately. Called synchronously on
	// every local deposit/withdrawal write.
	Invalidate(ctx context.Context, wallet string)
}
