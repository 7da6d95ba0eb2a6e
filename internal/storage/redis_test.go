package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { cache.Close() })

	return cache, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))

	got, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	exists, err := cache.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisCache_Del(t *testing.T) {
	cache, _ := setupRedisCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, cache.Del(ctx, "key"))

	exists, err := cache.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	cache, mr := setupRedisCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
	mr.FastForward(2 * time.Minute)

	exists, err := cache.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}
