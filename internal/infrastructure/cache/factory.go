package cache

import (
	"context"
	"fmt"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/storage"
)

// ProvideCacheStore 按配置选择缓存后端（Wire Provider）
// 返回的 cleanup 用于释放 Redis 连接
func ProvideCacheStore(cfg *config.CacheConfig, repo storage.CacheRepository) (domainRAG.CacheStore, func(), error) {
	logger := log.NewModuleLogger("cache", "factory")
	noop := func() {}

	switch cfg.Backend {
	case "", config.CacheBackendMemory:
		logger.Info("Using in-memory response cache", "capacity", cfg.Capacity)
		return NewMemoryStore(cfg.Capacity), noop, nil

	case config.CacheBackendRedis:
		store, err := NewRedisStore(context.Background(), cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Using redis response cache", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close redis client", "error", err)
			}
		}, nil

	case config.CacheBackendSQLite:
		logger.Info("Using sqlite response cache")
		return repo, noop, nil

	default:
		logger.Error("Unknown cache backend", "backend", cfg.Backend)
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
