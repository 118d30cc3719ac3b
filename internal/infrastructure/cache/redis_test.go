package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/backend/internal/infrastructure/config"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStoreWithClient(client)
}

func TestRedisStore_PutGet(t *testing.T) {
	_, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("t1", "fp", time.Hour)))

	entry, err := store.Get(ctx, "t1", "fp")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "answer for fp", entry.Response.ResponseText)
	assert.Equal(t, time.Hour, entry.TTL)

	miss, err := store.Get(ctx, "t2", "fp")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestRedisStore_KeyExpires(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("t1", "fp", time.Minute)))
	assert.True(t, mr.Exists(store.entryKey("t1", "fp")))

	mr.FastForward(2 * time.Minute)

	entry, err := store.Get(ctx, "t1", "fp")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRedisStore_InvalidateTenant(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("t1", "a", time.Hour)))
	require.NoError(t, store.Put(ctx, testEntry("t1", "b", time.Hour)))
	require.NoError(t, store.Put(ctx, testEntry("t2", "a", time.Hour)))

	removed, err := store.InvalidateTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.False(t, mr.Exists(store.indexKey("t1")))

	entry, err := store.Get(ctx, "t2", "a")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	removed, err = store.InvalidateTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRedisStore_Delete(t *testing.T) {
	mr, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testEntry("t1", "a", 0)))
	require.NoError(t, store.Delete(ctx, "t1", "a"))

	assert.False(t, mr.Exists(store.entryKey("t1", "a")))
	members, err := mr.SMembers(store.indexKey("t1"))
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
