package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
)

// redisKeyPrefix Redis 键前缀
const redisKeyPrefix = "rag:"

// RedisStore Redis 缓存后端
// 条目键为 rag:<tenant>:<fingerprint>，每个租户维护一个索引集合 rag:idx:<tenant> 用于整体失效
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 缓存并检查连通性
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient 使用已有客户端创建缓存
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) entryKey(tenantID, fingerprint string) string {
	return s.prefix + tenantID + ":" + fingerprint
}

func (s *RedisStore) indexKey(tenantID string) string {
	return s.prefix + "idx:" + tenantID
}

// Get 查询条目
func (s *RedisStore) Get(ctx context.Context, tenantID, fingerprint string) (*domainRAG.CacheEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(tenantID, fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry domainRAG.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	// 键过期由 Redis 负责，这里再按条目自身 TTL 兜底
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

// Put 写入条目
func (s *RedisStore) Put(ctx context.Context, entry *domainRAG.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	var ttl time.Duration
	if entry.TTL > 0 {
		ttl = time.Until(entry.ExpiresAt())
		if ttl <= 0 {
			return nil
		}
	}

	key := s.entryKey(entry.TenantID, entry.Fingerprint)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.SAdd(ctx, s.indexKey(entry.TenantID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete 删除条目
func (s *RedisStore) Delete(ctx context.Context, tenantID, fingerprint string) error {
	key := s.entryKey(tenantID, fingerprint)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, s.indexKey(tenantID), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// InvalidateTenant 清除租户的全部条目，返回实际删除的条目数
func (s *RedisStore) InvalidateTenant(ctx context.Context, tenantID string) (int, error) {
	idx := s.indexKey(tenantID)
	keys, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read tenant index: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate tenant cache: %w", err)
	}
	if err := s.client.Del(ctx, idx).Err(); err != nil {
		return int(removed), fmt.Errorf("failed to drop tenant index: %w", err)
	}
	return int(removed), nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ domainRAG.CacheStore = (*RedisStore)(nil)
