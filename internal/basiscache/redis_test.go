package basiscache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheSetAndGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCache(db, 5*time.Minute)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }

	payload, err := json.Marshal(redisEntry{Basis: 360, StoredAt: base})
	require.NoError(t, err)

	mock.ExpectSet("basisledger:basis:0xwallet", payload, 5*time.Minute).SetVal("OK")
	cache.Set(ctx, "0xwallet", 360)

	cache.now = func() time.Time { return base.Add(time.Minute) }
	mock.ExpectGet("basisledger:basis:0xwallet").SetVal(string(payload))

	basis, age, ok := cache.Get(ctx, "0xwallet")
	require.True(t, ok)
	assert.Equal(t, 360.0, basis)
	assert.Equal(t, time.Minute, age)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheMissOnNil(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCache(db, 5*time.Minute)

	mock.ExpectGet("basisledger:basis:0xwallet").RedisNil()

	_, _, ok := cache.Get(context.Background(), "0xwallet")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheStaleEntryIsMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCache(db, 5*time.Minute)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base.Add(6 * time.Minute) }

	payload, err := json.Marshal(redisEntry{Basis: 100, StoredAt: base})
	require.NoError(t, err)
	mock.ExpectGet("basisledger:basis:0xwallet").SetVal(string(payload))

	_, _, ok := cache.Get(context.Background(), "0xwallet")
	assert.False(t, ok, "entries past the TTL must be misses even if redis still holds the key")
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCache(db, 5*time.Minute)

	mock.ExpectGet("basisledger:basis:0xwallet").SetVal("{not json")

	_, _, ok := cache.Get(context.Background(), "0xwallet")
	assert.False(t, ok)
}

func TestRedisCacheInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewRedisCache(db, 5*time.Minute)

	mock.ExpectDel("basisledger:basis:0xwallet").SetVal(1)
	cache.Invalidate(context.Background(), "0xwallet")

	assert.NoError(t, mock.ExpectationsWereMet())
}
