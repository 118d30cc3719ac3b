package rag

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
)

// CacheStats 缓存计数
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Puts   int64 `json:"puts"`
	Shared int64 `json:"shared"`
}

// ResponseCache 响应缓存与在途请求去重
type ResponseCache struct {
	store    domainRAG.CacheStore
	ttl      time.Duration
	group    singleflight.Group
	recorder *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	puts   atomic.Int64
	shared atomic.Int64
}

// NewResponseCache 创建响应缓存
func NewResponseCache(store domainRAG.CacheStore, cfg *config.CacheConfig, recorder *metrics.Recorder) *ResponseCache {
	return &ResponseCache{
		store:    store,
		ttl:      cfg.TTL,
		recorder: recorder,
		logger:   log.NewModuleLogger("rag", "cache"),
		now:      time.Now,
	}
}

// Get 查询缓存，命中时返回副本并标记 CacheHit
// 存储错误按未命中处理
func (c *ResponseCache) Get(ctx context.Context, tenantID, fingerprint string) (*domainRAG.QueryResponse, bool) {
	entry, err := c.store.Get(ctx, tenantID, fingerprint)
	if err != nil {
		c.logger.WarnContext(ctx, "Cache lookup failed", "error", err)
	}
	if err != nil || entry == nil || entry.Response == nil || entry.Expired(c.now()) {
		c.misses.Add(1)
		c.recorder.IncCacheEvent(metrics.CacheMiss)
		return nil, false
	}

	c.hits.Add(1)
	c.recorder.IncCacheEvent(metrics.CacheHit)

	resp := entry.Response.Clone()
	resp.Metrics.CacheHit = true
	return resp, true
}

// Put 写入缓存，只缓存 SUCCESS 响应
func (c *ResponseCache) Put(ctx context.Context, tenantID, fingerprint string, resp *domainRAG.QueryResponse, ttl time.Duration) error {
	if resp == nil || resp.Status != domainRAG.StatusSuccess {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	stored := resp.Clone()
	stored.Metrics.CacheHit = false
	err := c.store.Put(ctx, &domainRAG.CacheEntry{
		Fingerprint: fingerprint,
		TenantID:    tenantID,
		Response:    stored,
		CreatedAt:   c.now(),
		TTL:         ttl,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Cache store failed", "error", err)
		return err
	}

	c.puts.Add(1)
	c.recorder.IncCacheEvent(metrics.CacheStore)
	return nil
}

// errFlightAbandoned 在途计算的发起方放弃，等待方需重新发起
var errFlightAbandoned = errors.New("in-flight query abandoned")

// Do 同一指纹同一时刻只执行一次 fn，并发调用方共享结果
// fn 在脱离调用方取消信号的 context 中运行，等待方可各自因 ctx 结束而提前返回
// 返回值 shared 表示结果同时交给了多个调用方
func (c *ResponseCache) Do(
	ctx context.Context,
	fingerprint string,
	fn func(ctx context.Context) (*domainRAG.QueryResponse, error),
) (*domainRAG.QueryResponse, bool, error) {
	workCtx := context.WithoutCancel(ctx)
	ch := c.join(fingerprint, func() (*domainRAG.QueryResponse, error) {
		return fn(workCtx)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return c.result(res)
	}
}

// join 发起或加入指纹对应的在途计算
// 同步与流式请求共用同一张在途表，计算结束后指纹立即移出
func (c *ResponseCache) join(fingerprint string, fn func() (*domainRAG.QueryResponse, error)) <-chan singleflight.Result {
	return c.group.DoChan(fingerprint, func() (any, error) {
		return fn()
	})
}

// result 解析在途计算结果
func (c *ResponseCache) result(res singleflight.Result) (*domainRAG.QueryResponse, bool, error) {
	if res.Err != nil {
		return nil, res.Shared, res.Err
	}
	resp := res.Val.(*domainRAG.QueryResponse)
	if res.Shared {
		c.shared.Add(1)
		c.recorder.IncCacheEvent(metrics.CacheShared)
		// 共享结果的每个调用方拿到独立副本
		return resp.Clone(), true, nil
	}
	return resp, false, nil
}

// InvalidateTenant 清除租户全部缓存
func (c *ResponseCache) InvalidateTenant(ctx context.Context, tenantID string) (int, error) {
	removed, err := c.store.InvalidateTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	c.logger.InfoContext(ctx, "Tenant cache invalidated", "removed", removed)
	return removed, nil
}

// Stats 缓存计数快照
func (c *ResponseCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Puts:   c.puts.Load(),
		Shared: c.shared.Load(),
	}
}
