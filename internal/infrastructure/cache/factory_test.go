package cache

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/backend/internal/infrastructure/config"
)

func TestProvideCacheStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, cleanup, err := ProvideCacheStore(&config.CacheConfig{Backend: config.CacheBackendMemory, Capacity: 4}, nil)
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, cleanup, err := ProvideCacheStore(&config.CacheConfig{
			Backend: config.CacheBackendRedis,
			Redis:   config.RedisConfig{Addr: mr.Addr()},
		}, nil)
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &RedisStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := ProvideCacheStore(&config.CacheConfig{Backend: "memcached"}, nil)
		assert.Error(t, err)
	})
}
