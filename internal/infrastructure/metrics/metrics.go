// Package metrics 提供查询流水线的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 流水线阶段
const (
	StageRetrieve = "retrieve"
	StageAssemble = "assemble"
	StageGenerate = "generate"
	StageTotal    = "total"
)

// 缓存事件
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheStore  = "store"
	CacheShared = "shared" // 加入了进行中的相同请求
)

// Recorder 指标记录器
// 使用独立 Registry，nil Recorder 的所有方法都是空操作
type Recorder struct {
	registry      *prometheus.Registry
	queries       *prometheus.CounterVec
	stageLatency  *prometheus.HistogramVec
	providerCalls *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	retrieved     prometheus.Histogram
	inflight      prometheus.Gauge
}

// NewRecorder 创建指标记录器
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_queries_total",
			Help: "Queries processed by terminal status and cache outcome",
		}, []string{"status", "cache"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_stage_latency_ms",
			Help:    "Latency of pipeline stages in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"stage"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_provider_calls_total",
			Help: "Generation provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_cache_events_total",
			Help: "Response cache events",
		}, []string{"event"}),
		retrieved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieved_chunks",
			Help:    "Number of chunks returned by retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rag_async_inflight",
			Help: "Async queries currently running on the worker pool",
		}),
	}

	r.registry.MustRegister(
		r.queries,
		r.stageLatency,
		r.providerCalls,
		r.cacheEvents,
		r.retrieved,
		r.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveQuery 记录查询终态
func (r *Recorder) ObserveQuery(status string, cacheHit bool, total time.Duration) {
	if r == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	r.queries.WithLabelValues(status, cache).Inc()
	r.stageLatency.WithLabelValues(StageTotal).Observe(float64(total.Milliseconds()))
}

// ObserveStage 记录阶段耗时
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// ObserveRetrieved 记录检索结果数量
func (r *Recorder) ObserveRetrieved(n int) {
	if r == nil {
		return
	}
	r.retrieved.Observe(float64(n))
}

// IncProviderCall 记录提供方调用结果：ok, error, timeout
func (r *Recorder) IncProviderCall(provider, outcome string) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// IncCacheEvent 记录缓存事件
func (r *Recorder) IncCacheEvent(event string) {
	if r == nil {
		return
	}
	r.cacheEvents.WithLabelValues(event).Inc()
}

// AsyncStarted 异步任务开始
func (r *Recorder) AsyncStarted() {
	if r == nil {
		return
	}
	r.inflight.Inc()
}

// AsyncFinished 异步任务结束
func (r *Recorder) AsyncFinished() {
	if r == nil {
		return
	}
	r.inflight.Dec()
}

// Registry 返回底层 Registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler 返回 /metrics 处理器
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
