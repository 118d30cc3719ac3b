package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appRAG "github.com/ragcore/backend/internal/application/rag"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/cache"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
	"github.com/ragcore/backend/internal/infrastructure/singleton"
	"github.com/ragcore/backend/internal/infrastructure/storage"
	"github.com/ragcore/backend/internal/infrastructure/tokenizer"
	"github.com/ragcore/backend/internal/infrastructure/websocket"
	"github.com/ragcore/backend/internal/interfaces/http/handler"
	"github.com/ragcore/backend/internal/interfaces/http/middleware"
	"github.com/ragcore/backend/internal/interfaces/http/response"
)

type stubSearch struct {
	results []domainRAG.ChunkMatch
	err     error
	calls   atomic.Int32
}

func (s *stubSearch) Search(_ context.Context, req *domainRAG.SearchRequest) (*domainRAG.SearchResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	results := append([]domainRAG.ChunkMatch(nil), s.results...)
	return &domainRAG.SearchResult{TenantID: req.TenantID, Results: results, TotalResults: len(results)}, nil
}

type stubProvider struct {
	text      string
	fragments []string
	pingErr   error
	calls     atomic.Int32
}

func (p *stubProvider) Kind() domainRAG.ProviderKind { return domainRAG.ProviderOpenAI }

func (p *stubProvider) Model() string { return "stub" }

func (p *stubProvider) Generate(context.Context, *domainRAG.GenerationRequest) (string, error) {
	p.calls.Add(1)
	return p.text, nil
}

func (p *stubProvider) Stream(ctx context.Context, _ *domainRAG.GenerationRequest, emit func(string) error) error {
	p.calls.Add(1)
	for _, f := range p.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *stubProvider) Ping(context.Context) error { return p.pingErr }

type testEnv struct {
	server   *HTTPServer
	search   *stubSearch
	provider *stubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "ragcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := storage.NewConversationRepository(db)
	require.NoError(t, err)

	search := &stubSearch{results: []domainRAG.ChunkMatch{
		{ChunkID: "c1", DocumentID: "doc-1", Content: "Refunds are issued within 14 days.", SimilarityScore: 0.92},
		{ChunkID: "c2", DocumentID: "doc-2", Content: "Contact support for refund status.", SimilarityScore: 0.81},
	}}
	provider := &stubProvider{text: "Refunds take 14 days.", fragments: []string{"Refunds ", "take ", "14 days."}}

	pipelineCfg := &config.PipelineConfig{AsyncWorkers: 2, StreamBuffer: 8, RetrievalTimeout: time.Second, AsyncResultTTL: time.Minute}
	cacheCfg := &config.CacheConfig{Backend: config.CacheBackendMemory, TTL: time.Hour, Capacity: 16}
	recorder := metrics.NewRecorder()
	pool := appRAG.NewWorkerPool(pipelineCfg)
	t.Cleanup(pool.Close)

	generation, err := appRAG.NewGenerationService([]domainRAG.Provider{provider},
		&config.LLMConfig{Timeout: time.Second}, pipelineCfg, pool, recorder)
	require.NoError(t, err)

	optimizer := appRAG.NewQueryOptimizer()
	conversations := appRAG.NewConversationManager(storage.ProvideConversationStore(repo),
		&config.ConversationConfig{MaxHistory: 10, ContextWindow: 3, TTL: time.Hour})
	orchestrator := appRAG.NewOrchestrator(
		optimizer,
		appRAG.NewRetriever(search, pipelineCfg, recorder),
		appRAG.NewContextAssembler(tokenizer.NewEstimator(), recorder),
		generation,
		appRAG.NewResponseCache(cache.NewMemoryStore(cacheCfg.Capacity), cacheCfg, recorder),
		conversations,
		appRAG.NewStatsAggregator(),
		pool,
		nil,
		recorder,
		pipelineCfg,
	)

	hub := websocket.NewHub(nil)
	server := NewServer(
		&config.ServerConfig{HTTPPort: ":0"},
		handler.NewQueryHandler(orchestrator, optimizer, hub),
		handler.NewConversationHandler(orchestrator, conversations),
		handler.NewAdminHandler(orchestrator, generation),
		recorder,
		nil,
	)
	return &testEnv{server: server, search: search, provider: provider}
}

func (e *testEnv) do(t *testing.T, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(middleware.HeaderTenantID, tenant)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestServer_RequiresTenantHeader(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rag/query", "", map[string]any{"query": "refund policy"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeTenantMissing, decode[response.ErrorResponse](t, w).Code)
}

func TestServer_QueryThenCacheHit(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"query": "What is the refund policy?"}

	w := env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[domainRAG.QueryResponse](t, w)
	assert.Equal(t, domainRAG.StatusSuccess, first.Status)
	assert.Equal(t, "acme", first.TenantID)
	assert.Equal(t, "Refunds take 14 days.", first.ResponseText)
	assert.Len(t, first.Sources, 2)
	assert.False(t, first.Metrics.CacheHit)

	w = env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", body)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[domainRAG.QueryResponse](t, w)
	assert.True(t, second.Metrics.CacheHit)
	assert.Equal(t, first.ResponseText, second.ResponseText)
	assert.Equal(t, int32(1), env.provider.calls.Load())

	// 其他租户不共享缓存
	w = env.do(t, http.MethodPost, "/api/v1/rag/query", "globex", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domainRAG.QueryResponse](t, w).Metrics.CacheHit)
	assert.Equal(t, int32(2), env.provider.calls.Load())
}

func TestServer_QueryRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", map[string]any{"query": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeValidation, decode[response.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", map[string]any{"tenantId": "globex", "query": "refunds"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeTenantMismatch, decode[response.ErrorResponse](t, w).Code)

	assert.Zero(t, env.search.calls.Load())
}

func TestServer_QueryEmptyAndFailedStatuses(t *testing.T) {
	env := newTestEnv(t)

	env.search.results = nil
	w := env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", map[string]any{"query": "unknown topic"})
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[domainRAG.QueryResponse](t, w)
	assert.Equal(t, domainRAG.StatusEmpty, empty.Status)
	assert.Equal(t, appRAG.EmptyResponseText, empty.ResponseText)

	env.search.err = errors.New("search down")
	w = env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", map[string]any{"query": "another topic"})
	require.Equal(t, http.StatusOK, w.Code)
	failed := decode[domainRAG.QueryResponse](t, w)
	assert.Equal(t, domainRAG.StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
	assert.Empty(t, failed.Sources)

	w = env.do(t, http.MethodGet, "/api/v1/rag/stats", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[handler.StatsResponse](t, w)
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.EmptyQueries)
	assert.Equal(t, int64(1), stats.FailedQueries)
}

func TestServer_Stream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/rag/query/stream",
		strings.NewReader(`{"query":"refund policy"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderTenantID, "acme")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 14 days.", string(body))
}

func TestServer_AsyncQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rag/query/async", "acme", map[string]any{"query": "refund policy"})
	require.Equal(t, http.StatusAccepted, w.Code)
	task := decode[handler.AsyncTaskResponse](t, w)
	require.NotEmpty(t, task.TaskID)
	assert.Equal(t, "/api/v1/rag/query/async/"+task.TaskID, w.Header().Get("Location"))

	require.Eventually(t, func() bool {
		return env.do(t, http.MethodGet, "/api/v1/rag/query/async/"+task.TaskID, "acme", nil).Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, http.MethodGet, "/api/v1/rag/query/async/"+task.TaskID, "acme", nil)
	assert.Equal(t, domainRAG.StatusSuccess, decode[domainRAG.QueryResponse](t, w).Status)

	// 任务归属于提交租户
	w = env.do(t, http.MethodGet, "/api/v1/rag/query/async/"+task.TaskID, "globex", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_AsyncQueryWait(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rag/query/async?wait=true", "acme", map[string]any{"query": "refund policy"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domainRAG.StatusSuccess, decode[domainRAG.QueryResponse](t, w).Status)
}

func TestServer_ConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rag/query", "acme",
		map[string]any{"query": "What is the refund policy?", "conversationId": "conv-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/rag/conversations/conv-1", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[domainRAG.ConversationSummary](t, w)
	assert.Equal(t, 1, summary.TurnCount)
	assert.Equal(t, "What is the refund policy?", summary.FirstQuery)
	assert.Equal(t, 2, summary.ReferencedDocuments)

	w = env.do(t, http.MethodGet, "/api/v1/rag/conversations/conv-1/stats", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[domainRAG.ConversationStats](t, w).TotalExchanges)

	// 对话按租户隔离
	w = env.do(t, http.MethodGet, "/api/v1/rag/conversations/conv-1", "globex", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/rag/conversations/conv-1", "acme", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/rag/conversations/conv-1", "acme", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_InvalidateCache(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"query": "refund policy"}

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", body).Code)

	w := env.do(t, http.MethodDelete, "/api/v1/rag/cache", "acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[handler.InvalidateResponse](t, w).Removed)

	w = env.do(t, http.MethodPost, "/api/v1/rag/query", "acme", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domainRAG.QueryResponse](t, w).Metrics.CacheHit)
}

func TestServer_AnalyzeAndSuggestions(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rag/query/analyze", "acme", map[string]any{"query": "refund"})
	require.Equal(t, http.StatusOK, w.Code)
	analysis := decode[domainRAG.QueryAnalysis](t, w)
	assert.Equal(t, domainRAG.ComplexitySimple, analysis.Complexity)

	w = env.do(t, http.MethodPost, "/api/v1/rag/query/suggestions", "acme", map[string]any{"query": "how do refunds work"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "how do refunds work", decode[handler.SuggestionsResponse](t, w).Query)

	w = env.do(t, http.MethodPost, "/api/v1/rag/query/analyze", "acme", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/rag/health", "acme", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.provider.pingErr = errors.New("unreachable")
	w = env.do(t, http.MethodGet, "/api/v1/rag/health", "acme", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ragcore", w.Header().Get(singleton.InstanceHeader))
}

func TestServer_QueryWebSocket(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set(middleware.HeaderTenantID, "acme")
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/rag/query/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"query": "refund policy"}))

	var text strings.Builder
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg struct {
			Type     string                   `json:"type"`
			Text     string                   `json:"text"`
			Response *domainRAG.QueryResponse `json:"response"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "fragment" {
			text.WriteString(msg.Text)
			continue
		}
		require.Equal(t, "done", msg.Type)
		require.NotNil(t, msg.Response)
		assert.Equal(t, domainRAG.StatusSuccess, msg.Response.Status)
		break
	}
	assert.Equal(t, "Refunds take 14 days.", text.String())
}
