package rag

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ragcore/backend/internal/domain/events"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
)

// 默认异步结果保留时间
const defaultAsyncResultTTL = 10 * time.Minute

// 在途计算被发起方放弃后的最大重新发起次数
const maxFlightAttempts = 3

// 流水线状态，仅用于调试日志
const (
	stateCacheCheck     = "CACHE_CHECK"
	stateCacheHit       = "CACHE_HIT"
	stateOptimize       = "OPTIMIZE"
	stateRetrieve       = "RETRIEVE"
	stateEmpty          = "EMPTY"
	stateRetrieveFailed = "RETRIEVE_FAILED"
	stateAssemble       = "ASSEMBLE"
	stateGenerate       = "GENERATE"
	stateGenFailed      = "GEN_FAILED"
	stateCacheStore     = "CACHE_STORE"
	stateDone           = "DONE"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthUp   HealthStatus = "UP"
	HealthDown HealthStatus = "DOWN"
)

// healthChecker 支持健康检查的协作方
type healthChecker interface {
	Health(ctx context.Context) error
}

// HealthReport 流水线健康报告
type HealthReport struct {
	Status     HealthStatus   `json:"status"`
	Components map[string]any `json:"components"`
}

// asyncTask 异步查询登记
type asyncTask struct {
	tenantID  string
	future    *Future[*domainRAG.QueryResponse]
	createdAt time.Time
}

// prepared 检索与组装完成后的中间结果
type prepared struct {
	optimizedQuery string
	question       string
	opts           domainRAG.QueryOptions
	chunks         []domainRAG.ChunkMatch
	assembled      AssembledContext
	retrievalTime  time.Duration
}

// Orchestrator RAG 查询编排
type Orchestrator struct {
	optimizer     *QueryOptimizer
	retriever     *Retriever
	assembler     *ContextAssembler
	generation    *GenerationService
	cache         *ResponseCache
	conversations *ConversationManager
	stats         *StatsAggregator
	pool          *WorkerPool
	bus           events.EventBus
	recorder      *metrics.Recorder
	logger        *slog.Logger

	streamBuffer   int
	asyncResultTTL time.Duration

	asyncMu sync.Mutex
	async   map[string]*asyncTask
	now     func() time.Time
}

// NewOrchestrator 创建查询编排
func NewOrchestrator(
	optimizer *QueryOptimizer,
	retriever *Retriever,
	assembler *ContextAssembler,
	generation *GenerationService,
	cache *ResponseCache,
	conversations *ConversationManager,
	stats *StatsAggregator,
	pool *WorkerPool,
	bus events.EventBus,
	recorder *metrics.Recorder,
	cfg *config.PipelineConfig,
) *Orchestrator {
	ttl := cfg.AsyncResultTTL
	if ttl <= 0 {
		ttl = defaultAsyncResultTTL
	}
	return &Orchestrator{
		optimizer:      optimizer,
		retriever:      retriever,
		assembler:      assembler,
		generation:     generation,
		cache:          cache,
		conversations:  conversations,
		stats:          stats,
		pool:           pool,
		bus:            bus,
		recorder:       recorder,
		logger:         log.NewModuleLogger("rag", "orchestrator"),
		streamBuffer:   cfg.StreamBuffer,
		asyncResultTTL: ttl,
		async:          make(map[string]*asyncTask),
		now:            time.Now,
	}
}

func (o *Orchestrator) state(ctx context.Context, state string) {
	o.logger.DebugContext(ctx, "Pipeline state", "state", state)
}

// withLogContext 把租户和对话写入日志上下文
func withLogContext(ctx context.Context, req *domainRAG.QueryRequest) context.Context {
	ctx = log.WithTenantID(ctx, req.TenantID)
	if req.ConversationID != "" {
		ctx = log.WithConversationID(ctx, req.ConversationID)
	}
	if req.UserID != "" {
		ctx = log.WithUserID(ctx, req.UserID)
	}
	return ctx
}

// newResponse 创建与请求对应的响应骨架
func newResponse(req *domainRAG.QueryRequest, status domainRAG.Status) *domainRAG.QueryResponse {
	return &domainRAG.QueryResponse{
		TenantID:       req.TenantID,
		OriginalQuery:  req.Query,
		ConversationID: req.ConversationID,
		Sources:        []domainRAG.ChunkMatch{},
		Status:         status,
		CreatedAt:      time.Now(),
	}
}

func failedResponse(req *domainRAG.QueryRequest, err error) *domainRAG.QueryResponse {
	resp := newResponse(req, domainRAG.StatusFailed)
	resp.Error = err.Error()
	return resp
}

// ProcessQuery 同步处理查询
// 请求非法时返回 ValidationError；其余情况总是返回完整响应，协作方失败体现为 FAILED
func (o *Orchestrator) ProcessQuery(ctx context.Context, req *domainRAG.QueryRequest) (*domainRAG.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	req = req.Clone()
	ctx = withLogContext(ctx, req)
	o.logger.InfoContext(ctx, "Processing RAG query")
	o.logger.DebugContext(ctx, "Query text", "query", req.Query)

	var resp *domainRAG.QueryResponse
	if !req.Options.CachingEnabled() {
		resp = o.run(ctx, req)
	} else {
		resp = o.processCached(ctx, req)
	}

	o.finish(ctx, req, resp, start, false)
	return resp, nil
}

// processCached 缓存检查，未命中时同一指纹只计算一次
// 在途计算的发起方放弃时重新发起，最多 maxFlightAttempts 次
func (o *Orchestrator) processCached(ctx context.Context, req *domainRAG.QueryRequest) *domainRAG.QueryResponse {
	o.state(ctx, stateCacheCheck)
	fingerprint := FingerprintRequest(req)

	for attempt := 1; ; attempt++ {
		if cached, ok := o.cachedResponse(ctx, req, fingerprint); ok {
			return cached
		}

		resp, shared, err := o.cache.Do(ctx, fingerprint, func(workCtx context.Context) (*domainRAG.QueryResponse, error) {
			// 上一轮计算可能在 Get 之后刚写入缓存
			if cached, ok := o.cache.Get(workCtx, req.TenantID, fingerprint); ok {
				return cached, nil
			}
			r := o.run(workCtx, req)
			if r.Status == domainRAG.StatusSuccess {
				o.state(workCtx, stateCacheStore)
				_ = o.cache.Put(workCtx, req.TenantID, fingerprint, r, 0)
			}
			return r, nil
		})
		if errors.Is(err, errFlightAbandoned) && attempt < maxFlightAttempts {
			o.logger.DebugContext(ctx, "In-flight query abandoned, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			o.logger.WarnContext(ctx, "Waiting for query result aborted", "error", err)
			return failedResponse(req, err)
		}
		if shared {
			o.logger.DebugContext(ctx, "Joined in-flight query with identical fingerprint")
		}
		resp.OriginalQuery = req.Query
		return resp
	}
}

// cachedResponse 缓存命中时返回带调用方原始查询的副本
func (o *Orchestrator) cachedResponse(ctx context.Context, req *domainRAG.QueryRequest, fingerprint string) (*domainRAG.QueryResponse, bool) {
	cached, ok := o.cache.Get(ctx, req.TenantID, fingerprint)
	if !ok {
		return nil, false
	}
	o.state(ctx, stateCacheHit)
	cached.OriginalQuery = req.Query
	return cached, true
}

// prepare 执行 OPTIMIZE、RETRIEVE、ASSEMBLE
// 返回非 nil 响应时流水线已到达终态（EMPTY 或 FAILED）
func (o *Orchestrator) prepare(ctx context.Context, req *domainRAG.QueryRequest) (*prepared, *domainRAG.QueryResponse) {
	opts := req.Options.WithDefaults()

	o.state(ctx, stateOptimize)
	optimized := o.optimizer.Optimize(req)
	question := optimized.Query
	if req.ConversationID != "" {
		question = o.conversations.ContextualizeQuery(ctx, req.TenantID, req.ConversationID, optimized.Query)
	}

	o.state(ctx, stateRetrieve)
	retrieveStart := time.Now()
	chunks, err := o.retriever.Retrieve(ctx, RetrieveRequest{
		TenantID:        req.TenantID,
		Query:           question,
		DocumentIDs:     req.DocumentIDs,
		TopK:            opts.MaxResults,
		Threshold:       opts.Threshold(),
		IncludeMetadata: opts.IncludeMetadata,
	})
	retrievalTime := time.Since(retrieveStart)

	if err != nil {
		o.state(ctx, stateRetrieveFailed)
		resp := failedResponse(req, err)
		resp.OptimizedQuery = optimized.Query
		resp.Metrics.RetrievalTimeMs = retrievalTime.Milliseconds()
		return nil, resp
	}
	if len(chunks) == 0 {
		o.state(ctx, stateEmpty)
		o.logger.InfoContext(ctx, "No relevant documents found")
		resp := newResponse(req, domainRAG.StatusEmpty)
		resp.OptimizedQuery = optimized.Query
		resp.ResponseText = EmptyResponseText
		resp.Metrics.RetrievalTimeMs = retrievalTime.Milliseconds()
		return nil, resp
	}

	o.state(ctx, stateAssemble)
	assembled := o.assembler.Assemble(chunks, opts.MaxContextTokens, opts.IncludeMetadata)

	return &prepared{
		optimizedQuery: optimized.Query,
		question:       question,
		opts:           opts,
		chunks:         chunks,
		assembled:      assembled,
		retrievalTime:  retrievalTime,
	}, nil
}

// baseResponse 由中间结果构建响应，FAILED 时仍保留来源
func (p *prepared) baseResponse(req *domainRAG.QueryRequest, status domainRAG.Status) *domainRAG.QueryResponse {
	resp := newResponse(req, status)
	resp.OptimizedQuery = p.optimizedQuery
	resp.Sources = p.chunks
	resp.Metrics.RetrievalTimeMs = p.retrievalTime.Milliseconds()
	resp.Metrics.ChunksRetrieved = len(p.chunks)
	resp.Metrics.ChunksUsed = p.assembled.ChunksUsed
	return resp
}

// run 执行缓存之后的流水线
func (o *Orchestrator) run(ctx context.Context, req *domainRAG.QueryRequest) *domainRAG.QueryResponse {
	p, terminal := o.prepare(ctx, req)
	if terminal != nil {
		return terminal
	}

	o.state(ctx, stateGenerate)
	genStart := time.Now()
	result, err := o.generation.Generate(ctx, p.question, p.assembled.Text, p.opts)
	genTime := time.Since(genStart)
	o.recorder.ObserveStage(metrics.StageGenerate, genTime)

	if err != nil {
		o.state(ctx, stateGenFailed)
		o.logger.ErrorContext(ctx, "Generation failed", "error", err)
		resp := p.baseResponse(req, domainRAG.StatusFailed)
		resp.Error = err.Error()
		resp.Metrics.GenerationTimeMs = genTime.Milliseconds()
		return resp
	}

	resp := p.baseResponse(req, domainRAG.StatusSuccess)
	resp.ResponseText = result.Text
	resp.Metrics.GenerationTimeMs = genTime.Milliseconds()
	resp.Metrics.Provider = result.Provider.String()

	o.appendTurn(ctx, req, resp)
	return resp
}

// appendTurn 成功时写入对话历史，失败只记录日志
func (o *Orchestrator) appendTurn(ctx context.Context, req *domainRAG.QueryRequest, resp *domainRAG.QueryResponse) {
	if req.ConversationID == "" {
		return
	}
	responseTime := time.Duration(resp.Metrics.RetrievalTimeMs+resp.Metrics.GenerationTimeMs) * time.Millisecond
	if err := o.conversations.AppendTurn(ctx, req.TenantID, req.ConversationID,
		req.Query, resp.ResponseText, resp.Sources, responseTime); err != nil {
		o.logger.WarnContext(ctx, "Failed to update conversation history", "error", err)
	}
}

// finish 记录总耗时、统计、指标与事件
func (o *Orchestrator) finish(ctx context.Context, req *domainRAG.QueryRequest, resp *domainRAG.QueryResponse, start time.Time, streaming bool) {
	total := time.Since(start)
	resp.Metrics.TotalTimeMs = total.Milliseconds()

	o.state(ctx, stateDone)
	o.stats.Record(req.TenantID, resp)
	o.recorder.ObserveQuery(string(resp.Status), resp.Metrics.CacheHit, total)

	attrs := []any{
		"status", resp.Status,
		"cache_hit", resp.Metrics.CacheHit,
		"sources", len(resp.Sources),
		"duration_ms", resp.Metrics.TotalTimeMs,
	}
	if resp.Status == domainRAG.StatusFailed {
		o.logger.WarnContext(ctx, "RAG query failed", append(attrs, "error", resp.Error)...)
	} else {
		o.logger.InfoContext(ctx, "RAG query completed", attrs...)
	}

	if o.bus != nil {
		o.bus.Publish(&events.QueryEvent{
			TenantID:       req.TenantID,
			ConversationID: req.ConversationID,
			Status:         string(resp.Status),
			CacheHit:       resp.Metrics.CacheHit,
			Streaming:      streaming,
			Provider:       resp.Metrics.Provider,
			ChunksUsed:     resp.Metrics.ChunksUsed,
			TotalTimeMs:    resp.Metrics.TotalTimeMs,
			EventTime:      o.now(),
		})
	}
}

// ProcessQueryAsync 在工作池中处理查询，校验同步进行
// 工作池已满时等待空位，直到 ctx 结束
func (o *Orchestrator) ProcessQueryAsync(ctx context.Context, req *domainRAG.QueryRequest) (*Future[*domainRAG.QueryResponse], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	req = req.Clone()
	taskCtx := context.WithoutCancel(ctx)
	o.recorder.AsyncStarted()
	future, err := SubmitFuture(ctx, o.pool, func() (*domainRAG.QueryResponse, error) {
		defer o.recorder.AsyncFinished()
		return o.ProcessQuery(taskCtx, req)
	})
	if err != nil {
		o.recorder.AsyncFinished()
		return nil, err
	}

	o.registerAsync(req.TenantID, future)
	o.logger.InfoContext(withLogContext(ctx, req), "Async RAG query submitted", "task_id", future.ID())
	return future, nil
}

// registerAsync 登记异步任务并清理过期的已完成任务
func (o *Orchestrator) registerAsync(tenantID string, future *Future[*domainRAG.QueryResponse]) {
	o.asyncMu.Lock()
	defer o.asyncMu.Unlock()

	now := o.now()
	for id, task := range o.async {
		if now.Sub(task.createdAt) <= o.asyncResultTTL {
			continue
		}
		select {
		case <-task.future.Done():
			delete(o.async, id)
		default:
		}
	}
	o.async[future.ID()] = &asyncTask{tenantID: tenantID, future: future, createdAt: now}
}

// GetAsyncResult 查询异步任务结果
// done 为 false 表示仍在处理；其他租户的任务视为不存在
func (o *Orchestrator) GetAsyncResult(tenantID, taskID string) (*domainRAG.QueryResponse, bool, error) {
	o.asyncMu.Lock()
	task, ok := o.async[taskID]
	o.asyncMu.Unlock()
	if !ok || task.tenantID != tenantID {
		return nil, false, domainRAG.NewNotFoundError("task", taskID)
	}

	resp, err := task.future.Result()
	if errors.Is(err, ErrFutureNotReady) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	return resp.Clone(), true, nil
}

// ProcessQueryStreaming 流式处理查询
// 检索与组装同步完成；缓存命中、EMPTY、FAILED 时返回单片段流和最终响应，
// 否则响应为 nil，生成正常结束后可通过 TextStream.Response 读取
// 同指纹的并发请求（同步或流式）只生成一次：领头请求实时转发片段，后到请求回放最终响应
// 取消流会停止上游生成，且不写入缓存和对话历史
func (o *Orchestrator) ProcessQueryStreaming(ctx context.Context, req *domainRAG.QueryRequest) (*TextStream, *domainRAG.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	req = req.Clone()
	ctx = withLogContext(ctx, req)
	o.logger.InfoContext(ctx, "Processing streaming RAG query")

	if !req.Options.CachingEnabled() {
		lead := newStreamLead(ctx, o.streamBuffer)
		lead.state.Store(leadClaimed)
		go func() {
			_, _ = o.leadStream(ctx, req, "", start, lead)
		}()
		stream, resp := lead.handoff(<-lead.ready)
		return stream, resp, nil
	}

	o.state(ctx, stateCacheCheck)
	fingerprint := FingerprintRequest(req)
	for attempt := 1; ; attempt++ {
		if cached, ok := o.cachedResponse(ctx, req, fingerprint); ok {
			o.finish(ctx, req, cached, start, true)
			return NewStaticStream(cached.ResponseText, cached), cached, nil
		}

		stream, resp, err := o.joinStream(ctx, req, fingerprint, start)
		if errors.Is(err, errFlightAbandoned) && attempt < maxFlightAttempts {
			o.logger.DebugContext(ctx, "In-flight query abandoned, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			o.logger.WarnContext(ctx, "Waiting for query result aborted", "error", err)
			resp = failedResponse(req, err)
			o.finish(ctx, req, resp, start, true)
			return NewStaticStream(terminalText(resp), resp), resp, nil
		}
		return stream, resp, nil
	}
}

// 流式领头请求状态
const (
	leadPending int32 = iota
	leadClaimed
	leadAbandoned
)

// streamLead 流式请求在在途表中的交接点
// ready 只写入一次：nil 表示开始转发生成片段，非 nil 为终态响应
type streamLead struct {
	out   *TextStream
	ready chan *domainRAG.QueryResponse
	state atomic.Int32
}

func newStreamLead(ctx context.Context, buffer int) *streamLead {
	return &streamLead{
		out:   NewTextStream(ctx, buffer),
		ready: make(chan *domainRAG.QueryResponse, 1),
	}
}

// handoff 把领头请求的结果交给调用方
func (l *streamLead) handoff(terminal *domainRAG.QueryResponse) (*TextStream, *domainRAG.QueryResponse) {
	if terminal == nil {
		return l.out, nil
	}
	l.out.Cancel()
	return NewStaticStream(terminalText(terminal), terminal), terminal
}

// joinStream 发起或加入同指纹的在途计算
func (o *Orchestrator) joinStream(ctx context.Context, req *domainRAG.QueryRequest, fingerprint string, start time.Time) (*TextStream, *domainRAG.QueryResponse, error) {
	lead := newStreamLead(ctx, o.streamBuffer)
	results := o.cache.join(fingerprint, func() (*domainRAG.QueryResponse, error) {
		if !lead.state.CompareAndSwap(leadPending, leadClaimed) {
			return nil, errFlightAbandoned
		}
		return o.leadStream(ctx, req, fingerprint, start, lead)
	})

	select {
	case terminal := <-lead.ready:
		stream, resp := lead.handoff(terminal)
		return stream, resp, nil
	case res := <-results:
		// 领头请求在返回前已写入 ready
		if lead.state.Load() == leadClaimed {
			stream, resp := lead.handoff(<-lead.ready)
			return stream, resp, nil
		}
		lead.out.Cancel()
		resp, _, err := o.cache.result(res)
		if err != nil {
			return nil, nil, err
		}
		o.logger.DebugContext(ctx, "Replaying in-flight query with identical fingerprint")
		resp.OriginalQuery = req.Query
		o.finish(ctx, req, resp, start, true)
		return NewStaticStream(terminalText(resp), resp), resp, nil
	case <-ctx.Done():
		if lead.state.CompareAndSwap(leadPending, leadAbandoned) {
			lead.out.Cancel()
			return nil, nil, ctx.Err()
		}
		stream, resp := lead.handoff(<-lead.ready)
		return stream, resp, nil
	}
}

// leadStream 领头请求执行流水线，返回值交给同指纹的等待方
// 流被取消时返回 errFlightAbandoned，等待方重新发起
func (o *Orchestrator) leadStream(
	ctx context.Context,
	req *domainRAG.QueryRequest,
	fingerprint string,
	start time.Time,
	lead *streamLead,
) (*domainRAG.QueryResponse, error) {
	if fingerprint != "" {
		// 上一轮计算可能在 Get 之后刚写入缓存
		if cached, ok := o.cachedResponse(ctx, req, fingerprint); ok {
			o.finish(ctx, req, cached, start, true)
			lead.ready <- cached
			return cached, nil
		}
	}

	p, terminal := o.prepare(ctx, req)
	if terminal != nil {
		o.finish(ctx, req, terminal, start, true)
		lead.ready <- terminal
		if ctx.Err() != nil {
			return nil, errFlightAbandoned
		}
		return terminal, nil
	}

	o.state(ctx, stateGenerate)
	out := lead.out
	genStart := time.Now()
	upstream, err := o.generation.GenerateStreaming(out.Context(), p.question, p.assembled.Text, p.opts)
	if err != nil {
		o.state(ctx, stateGenFailed)
		resp := p.baseResponse(req, domainRAG.StatusFailed)
		resp.Error = err.Error()
		o.finish(ctx, req, resp, start, true)
		lead.ready <- resp
		return resp, nil
	}

	lead.ready <- nil
	return o.relay(ctx, req, p, upstream, out, start, genStart, fingerprint)
}

// relay 转发生成片段，正常结束后拼接全文并完成收尾
func (o *Orchestrator) relay(
	ctx context.Context,
	req *domainRAG.QueryRequest,
	p *prepared,
	upstream, out *TextStream,
	start, genStart time.Time,
	fingerprint string,
) (*domainRAG.QueryResponse, error) {
	defer upstream.Cancel()

	var text []byte
	for {
		fragment, ok := upstream.Next(out.Context())
		if !ok {
			break
		}
		if err := out.send(fragment); err != nil {
			break
		}
		text = append(text, fragment...)
	}
	genTime := time.Since(genStart)
	o.recorder.ObserveStage(metrics.StageGenerate, genTime)

	if err := out.Context().Err(); err != nil {
		o.logger.InfoContext(ctx, "Streaming query cancelled", "error", err)
		resp := p.baseResponse(req, domainRAG.StatusFailed)
		resp.Error = "stream cancelled: " + err.Error()
		resp.Metrics.GenerationTimeMs = genTime.Milliseconds()
		o.finish(ctx, req, resp, start, true)
		out.finish(err)
		return nil, errFlightAbandoned
	}

	if err := upstream.Err(); err != nil {
		o.state(ctx, stateGenFailed)
		resp := p.baseResponse(req, domainRAG.StatusFailed)
		resp.Error = err.Error()
		resp.Metrics.GenerationTimeMs = genTime.Milliseconds()
		resp.Metrics.Provider = upstream.Provider()
		o.finish(ctx, req, resp, start, true)
		out.setResponse(resp)
		out.finish(err)
		return resp, nil
	}

	resp := p.baseResponse(req, domainRAG.StatusSuccess)
	resp.ResponseText = string(text)
	resp.Metrics.GenerationTimeMs = genTime.Milliseconds()
	resp.Metrics.Provider = upstream.Provider()

	workCtx := context.WithoutCancel(ctx)
	if fingerprint != "" {
		o.state(ctx, stateCacheStore)
		_ = o.cache.Put(workCtx, req.TenantID, fingerprint, resp, 0)
	}
	o.appendTurn(workCtx, req, resp)
	o.finish(ctx, req, resp, start, true)
	out.setResponse(resp)
	out.finish(nil)
	return resp, nil
}

// terminalText 终态响应在流中的文本
func terminalText(resp *domainRAG.QueryResponse) string {
	if resp.Status == domainRAG.StatusFailed {
		return FailureText(resp.Error)
	}
	return resp.ResponseText
}

// GetStats 租户统计，从未查询过的租户全部为零
func (o *Orchestrator) GetStats(tenantID string) TenantStats {
	return o.stats.Snapshot(tenantID)
}

// CacheStats 缓存计数
func (o *Orchestrator) CacheStats() CacheStats {
	return o.cache.Stats()
}

// Health 至少一个提供方可用时为 UP
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	providers := o.generation.GetProviderStatus(ctx)
	status := HealthDown
	for _, st := range providers {
		if st.Available {
			status = HealthUp
			break
		}
	}
	components := map[string]any{
		"providers":    providers,
		"cache":        o.cache.Stats(),
		"asyncWorkers": o.pool.Size(),
	}
	if checker, ok := o.retriever.client.(healthChecker); ok {
		search := map[string]any{"status": HealthUp}
		if err := checker.Health(ctx); err != nil {
			search["status"] = HealthDown
			search["error"] = err.Error()
		}
		components["search"] = search
	}
	return HealthReport{Status: status, Components: components}
}

// InvalidateCache 清除租户全部缓存
func (o *Orchestrator) InvalidateCache(ctx context.Context, tenantID string) (int, error) {
	removed, err := o.cache.InvalidateTenant(log.WithTenantID(ctx, tenantID), tenantID)
	if err != nil {
		return 0, err
	}
	if o.bus != nil {
		o.bus.Publish(&events.TenantChangeEvent{
			EventType: events.CacheInvalidated,
			TenantID:  tenantID,
			Affected:  removed,
			EventTime: o.now(),
		})
	}
	return removed, nil
}

// DeleteConversation 删除对话，返回是否存在
func (o *Orchestrator) DeleteConversation(ctx context.Context, tenantID, conversationID string) (bool, error) {
	deleted, err := o.conversations.DeleteConversation(log.WithTenantID(ctx, tenantID), tenantID, conversationID)
	if err != nil || !deleted {
		return deleted, err
	}
	if o.bus != nil {
		o.bus.Publish(&events.TenantChangeEvent{
			EventType:  events.ConversationDeleted,
			TenantID:   tenantID,
			ResourceID: conversationID,
			Affected:   1,
			EventTime:  o.now(),
		})
	}
	return true, nil
}
