package basiscache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a mutex-guarded in-process TTL cache. The default
// backend; one entry per wallet, so no eviction pressure beyond expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	basis    float64
	storedAt time.Time
}

// NewMemoryCache creates a memory cache with the given TTL (DefaultTTL
// when ttl <= 0) and starts a background sweep for expired entries.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get retrieves a value if present and younger than the TTL.
func (c *MemoryCache) Get(_ context.Context, wallet string) (float64, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[wallet]
	if !exists {
		return 0, 0, false
	}
	age := c.now().Sub(entry.storedAt)
	if age > c.ttl {
		// Expired entries count as absent; the sweep removes them.
		return 0, 0, false
	}
	return entry.basis, age, true
}

// Set stores a value timestamped now.
func (c *MemoryCache) Set(_ context.Context, wallet string, basis float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[wallet] = memoryEntry{basis: basis, storedAt: c.now()}
}

// Invalidate removes the entry immediately.
func (c *MemoryCache) Invalidate(_ context.Context, wallet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, wallet)
}

// Stop shuts down the background sweep goroutine.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for wallet, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, wallet)
		}
	}
}
