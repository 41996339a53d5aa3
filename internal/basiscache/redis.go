package basiscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "basisledger:basis:"

// RedisCache stores reconstruction results in redis so multiple engine
// processes (or restarts) share the memo. Redis failures degrade to
// cache misses, never to read errors.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

type redisEntry struct {
	Basis    float64   `json:"basis"`
	StoredAt time.Time `json:"storedAt"`
}

// NewRedisCache wraps an existing redis client with the basis cache
// contract. DefaultTTL applies when ttl <= 0.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, now: time.Now}
}

// Get retrieves a cached basis. Expiry is enforced by the redis key TTL;
// age is recomputed from the stored timestamp.
func (c *RedisCache) Get(ctx context.Context, wallet string) (float64, time.Duration, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+wallet).Result()
	if err == redis.Nil {
		return 0, 0, false
	}
	if err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("redis basis cache read failed, treating as miss")
		return 0, 0, false
	}

	var entry redisEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("corrupt redis basis cache entry, treating as miss")
		return 0, 0, false
	}
	age := c.now().Sub(entry.StoredAt)
	if age > c.ttl {
		return 0, 0, false
	}
	return entry.Basis, age, true
}

// Set stores a value with the cache TTL as the redis expiry.
func (c *RedisCache) Set(ctx context.Context, wallet string, basis float64) {
	payload, err := json.Marshal(redisEntry{Basis: basis, StoredAt: c.now()})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+wallet, payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("redis basis cache write failed")
	}
}

// Invalidate deletes the entry.
func (c *RedisCache) Invalidate(ctx context.Context, wallet string) {
	if err := c.client.Del(ctx, redisKeyPrefix+wallet).Err(); err != nil {
		log.Warn().Err(err).Str("wallet", wallet).Msg("redis basis cache invalidate failed")
	}
}
