// Package search 实现检索协作方：HTTP 检索服务与 Qdrant 直连
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// 检索服务接口路径
const (
	searchPath = "/api/v1/embeddings/search"
	healthPath = "/api/v1/embeddings/health"
)

// TenantHeader 租户请求头
const TenantHeader = "X-Tenant-ID"

// StatusError 检索服务返回的非 2xx 响应
type StatusError struct {
	StatusCode int
	Message    string
}

// Error 实现 error 接口
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// statusMessage 按状态码给出错误描述
func statusMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad request to embedding service"
	case http.StatusUnauthorized:
		return "Unauthorized access to embedding service"
	case http.StatusForbidden:
		return "Forbidden access to embedding service"
	case http.StatusNotFound:
		return "Embedding service endpoint not found"
	case http.StatusTooManyRequests:
		return "Embedding service rate limit exceeded"
	case http.StatusInternalServerError:
		return "Embedding service internal error"
	case http.StatusServiceUnavailable:
		return "Embedding service unavailable"
	default:
		return "Embedding service returned unexpected status"
	}
}

// searchRequestBody 检索请求体
type searchRequestBody struct {
	TenantID        string         `json:"tenantId"`
	Query           string         `json:"query"`
	TopK            int            `json:"topK"`
	Threshold       float64        `json:"threshold"`
	DocumentIDs     []string       `json:"documentIds,omitempty"`
	Filters         map[string]any `json:"filters,omitempty"`
	IncludeContent  bool           `json:"includeContent"`
	IncludeMetadata bool           `json:"includeMetadata"`
}

// searchHit 单条命中
type searchHit struct {
	ChunkID        string         `json:"chunkId"`
	DocumentID     string         `json:"documentId"`
	Content        string         `json:"content"`
	Score          float64        `json:"score"`
	Metadata       map[string]any `json:"metadata"`
	DocumentTitle  string         `json:"documentTitle"`
	DocumentType   string         `json:"documentType"`
	SequenceNumber int            `json:"sequenceNumber"`
	Summary        string         `json:"summary"`
}

// searchResponseBody 检索响应体
type searchResponseBody struct {
	TenantID     string      `json:"tenantId"`
	Query        string      `json:"query"`
	Results      []searchHit `json:"results"`
	TotalResults int         `json:"totalResults"`
	MaxScore     float64     `json:"maxScore"`
	SearchTimeMs int64       `json:"searchTimeMs"`
}

// HTTPClient 通过 HTTP 调用外部检索服务
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient 创建 HTTP 检索客户端
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.NewModuleLogger("search", "http"),
	}
}

// Search 执行检索
func (c *HTTPClient) Search(ctx context.Context, req *domainRAG.SearchRequest) (*domainRAG.SearchResult, error) {
	body, err := json.Marshal(searchRequestBody{
		TenantID:        req.TenantID,
		Query:           req.Query,
		TopK:            req.TopK,
		Threshold:       req.Threshold,
		DocumentIDs:     req.DocumentIDs,
		Filters:         req.Filters,
		IncludeContent:  true,
		IncludeMetadata: req.IncludeMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(TenantHeader, req.TenantID)
	if requestID := log.RequestIDFromContext(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "Search request failed", "error", err)
		return nil, fmt.Errorf("failed to call search service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.WarnContext(ctx, "Search service returned error",
			"status_code", resp.StatusCode,
			"response_body", string(respBody),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: statusMessage(resp.StatusCode)}
	}

	var decoded searchResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	result := &domainRAG.SearchResult{
		TenantID:      decoded.TenantID,
		Results:       make([]domainRAG.ChunkMatch, 0, len(decoded.Results)),
		TotalResults:  decoded.TotalResults,
		MaxSimilarity: decoded.MaxScore,
		TookMs:        decoded.SearchTimeMs,
	}
	if result.TenantID == "" {
		result.TenantID = req.TenantID
	}
	if result.TookMs == 0 {
		result.TookMs = time.Since(start).Milliseconds()
	}
	for _, hit := range decoded.Results {
		result.Results = append(result.Results, domainRAG.ChunkMatch{
			ChunkID:         hit.ChunkID,
			DocumentID:      hit.DocumentID,
			Content:         hit.Content,
			SimilarityScore: hit.Score,
			DocumentSummary: hit.Summary,
			DocumentTitle:   hit.DocumentTitle,
			DocumentType:    hit.DocumentType,
			SequenceNumber:  hit.SequenceNumber,
			Metadata:        hit.Metadata,
		})
	}

	c.logger.DebugContext(ctx, "Search completed",
		"results", len(result.Results),
		"took_ms", result.TookMs,
	)
	return result, nil
}

// Health 检查检索服务是否可用
func (c *HTTPClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("search service unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Message: statusMessage(resp.StatusCode)}
	}
	return nil
}

var _ domainRAG.SearchClient = (*HTTPClient)(nil)
