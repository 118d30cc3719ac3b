package rag

import (
	"sync"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// TenantStats 租户查询统计
type TenantStats struct {
	TenantID          string  `json:"tenantId"`
	TotalQueries      int64   `json:"totalQueries"`
	SuccessfulQueries int64   `json:"successfulQueries"`
	FailedQueries     int64   `json:"failedQueries"`
	EmptyQueries      int64   `json:"emptyQueries"`
	CachedQueries     int64   `json:"cachedQueries"`
	AverageLatencyMs  float64 `json:"averageLatencyMs"`
	AverageRelevance  float64 `json:"averageRelevance"`
}

type tenantCounters struct {
	total, success, failed, empty, cached int64
	latencySumMs                          int64
	relevanceSum                          float64
	relevanceCount                        int64
}

// StatsAggregator 按租户聚合查询统计
type StatsAggregator struct {
	mu      sync.Mutex
	tenants map[string]*tenantCounters
}

// NewStatsAggregator 创建统计聚合器
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{tenants: make(map[string]*tenantCounters)}
}

// Record 记录一次查询结果
func (a *StatsAggregator) Record(tenantID string, resp *domainRAG.QueryResponse) {
	if resp == nil || tenantID == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.tenants[tenantID]
	if !ok {
		c = &tenantCounters{}
		a.tenants[tenantID] = c
	}

	c.total++
	c.latencySumMs += resp.Metrics.TotalTimeMs
	switch resp.Status {
	case domainRAG.StatusSuccess:
		c.success++
	case domainRAG.StatusEmpty:
		c.empty++
	case domainRAG.StatusFailed:
		c.failed++
	}
	if resp.Metrics.CacheHit {
		c.cached++
	}
	if len(resp.Sources) > 0 {
		c.relevanceSum += resp.AverageRelevance()
		c.relevanceCount++
	}
}

// Snapshot 租户统计快照，未知租户全部为零
func (a *StatsAggregator) Snapshot(tenantID string) TenantStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := TenantStats{TenantID: tenantID}
	c, ok := a.tenants[tenantID]
	if !ok || c.total == 0 {
		return stats
	}

	stats.TotalQueries = c.total
	stats.SuccessfulQueries = c.success
	stats.FailedQueries = c.failed
	stats.EmptyQueries = c.empty
	stats.CachedQueries = c.cached
	stats.AverageLatencyMs = float64(c.latencySumMs) / float64(c.total)
	if c.relevanceCount > 0 {
		stats.AverageRelevance = c.relevanceSum / float64(c.relevanceCount)
	}
	return stats
}
