package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// payload 字段名
const (
	payloadTenantID       = "tenant_id"
	payloadChunkID        = "chunk_id"
	payloadDocumentID     = "document_id"
	payloadContent        = "content"
	payloadDocumentTitle  = "document_title"
	payloadDocumentType   = "document_type"
	payloadSummary        = "summary"
	payloadSequenceNumber = "sequence_number"
)

// reservedPayloadKeys 不进入 Metadata 的 payload 字段
var reservedPayloadKeys = map[string]bool{
	payloadTenantID:       true,
	payloadChunkID:        true,
	payloadDocumentID:     true,
	payloadContent:        true,
	payloadDocumentTitle:  true,
	payloadDocumentType:   true,
	payloadSummary:        true,
	payloadSequenceNumber: true,
}

// Embedder 查询向量化
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// pointQuerier Qdrant 查询接口，*qdrant.Client 实现
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// QdrantClient 直接查询 Qdrant 集合的检索实现
type QdrantClient struct {
	embedder   Embedder
	points     pointQuerier
	collection string
	logger     *slog.Logger
}

// NewQdrantClient 创建 Qdrant 检索客户端
func NewQdrantClient(embedder Embedder, points pointQuerier, collection string) *QdrantClient {
	return &QdrantClient{
		embedder:   embedder,
		points:     points,
		collection: collection,
		logger:     log.NewModuleLogger("search", "qdrant"),
	}
}

// Search 执行向量检索，结果始终限定在请求租户内
func (c *QdrantClient) Search(ctx context.Context, req *domainRAG.SearchRequest) (*domainRAG.SearchResult, error) {
	start := time.Now()

	vector, err := c.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := uint64(req.TopK)
	threshold := float32(req.Threshold)
	hits, err := c.points.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		Filter:         buildTenantFilter(req.TenantID, req.DocumentIDs),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to query qdrant", "error", err)
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	result := &domainRAG.SearchResult{
		TenantID: req.TenantID,
		Results:  make([]domainRAG.ChunkMatch, 0, len(hits)),
	}
	for _, hit := range hits {
		match, ok := hitToChunk(hit, req.TenantID, req.IncludeMetadata)
		if !ok {
			continue
		}
		if match.SimilarityScore > result.MaxSimilarity {
			result.MaxSimilarity = match.SimilarityScore
		}
		result.Results = append(result.Results, match)
	}
	result.TotalResults = len(result.Results)
	result.TookMs = time.Since(start).Milliseconds()

	c.logger.DebugContext(ctx, "Qdrant search completed",
		"hits", len(hits),
		"results", result.TotalResults,
	)
	return result, nil
}

// buildTenantFilter 租户必须匹配，文档 ID 之间为 OR
func buildTenantFilter(tenantID string, documentIDs []string) *qdrant.Filter {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadTenantID, tenantID),
		},
	}
	if len(documentIDs) == 1 {
		filter.Must = append(filter.Must, qdrant.NewMatch(payloadDocumentID, documentIDs[0]))
		return filter
	}
	for _, id := range documentIDs {
		filter.Should = append(filter.Should, qdrant.NewMatch(payloadDocumentID, id))
	}
	return filter
}

// hitToChunk 将命中转换为 ChunkMatch，跨租户的 payload 会被丢弃
func hitToChunk(hit *qdrant.ScoredPoint, tenantID string, includeMetadata bool) (domainRAG.ChunkMatch, bool) {
	payload := hit.GetPayload()
	if payload == nil {
		return domainRAG.ChunkMatch{}, false
	}
	if owner := payload[payloadTenantID].GetStringValue(); owner != tenantID {
		return domainRAG.ChunkMatch{}, false
	}

	match := domainRAG.ChunkMatch{
		ChunkID:         payload[payloadChunkID].GetStringValue(),
		DocumentID:      payload[payloadDocumentID].GetStringValue(),
		Content:         payload[payloadContent].GetStringValue(),
		DocumentTitle:   payload[payloadDocumentTitle].GetStringValue(),
		DocumentType:    payload[payloadDocumentType].GetStringValue(),
		DocumentSummary: payload[payloadSummary].GetStringValue(),
		SequenceNumber:  int(payload[payloadSequenceNumber].GetIntegerValue()),
		SimilarityScore: float64(hit.GetScore()),
	}
	if match.ChunkID == "" {
		match.ChunkID = pointIDString(hit.GetId())
	}

	if includeMetadata {
		for key, val := range payload {
			if reservedPayloadKeys[key] {
				continue
			}
			if match.Metadata == nil {
				match.Metadata = make(map[string]any)
			}
			match.Metadata[key] = valueToAny(val)
		}
	}
	return match, true
}

// pointIDString 点 ID 转字符串
func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// valueToAny 将 qdrant.Value 转为普通 Go 值
func valueToAny(val *qdrant.Value) any {
	if val == nil {
		return nil
	}
	switch kind := val.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = valueToAny(v)
		}
		return out
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = valueToAny(v)
		}
		return out
	default:
		return nil
	}
}

var _ domainRAG.SearchClient = (*QdrantClient)(nil)
