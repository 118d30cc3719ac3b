package rag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
)

// collaboratorSearch 检索协作方名称
const collaboratorSearch = "search"

// RetrieveRequest 检索请求
type RetrieveRequest struct {
	TenantID        string
	Query           string
	DocumentIDs     []string
	Filters         map[string]any
	TopK            int
	Threshold       float64
	IncludeMetadata bool
}

// Retriever 检索适配器，无持久状态
type Retriever struct {
	client   domainRAG.SearchClient
	timeout  time.Duration
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewRetriever 创建检索器
func NewRetriever(client domainRAG.SearchClient, cfg *config.PipelineConfig, recorder *metrics.Recorder) *Retriever {
	return &Retriever{
		client:   client,
		timeout:  cfg.RetrievalTimeout,
		recorder: recorder,
		logger:   log.NewModuleLogger("rag", "retriever"),
	}
}

// Retrieve 调用检索协作方，过滤低分与其他租户结果后按相似度降序截断到 TopK
// 无结果时返回空切片；协作方失败包装为 UpstreamUnavailable，不重试
func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) ([]domainRAG.ChunkMatch, error) {
	start := time.Now()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.client.Search(ctx, &domainRAG.SearchRequest{
		TenantID:        req.TenantID,
		Query:           req.Query,
		TopK:            req.TopK,
		Threshold:       req.Threshold,
		DocumentIDs:     req.DocumentIDs,
		Filters:         req.Filters,
		IncludeMetadata: req.IncludeMetadata,
	})
	r.recorder.ObserveStage(metrics.StageRetrieve, time.Since(start))
	if err != nil {
		r.logger.WarnContext(ctx, "Search collaborator failed", "error", err)
		upstream := domainRAG.NewUpstreamError(collaboratorSearch, err)
		if errors.Is(err, context.DeadlineExceeded) {
			upstream.WithDetail("timeout", r.timeout.String())
		}
		return nil, upstream
	}

	chunks := make([]domainRAG.ChunkMatch, 0)
	if result != nil {
		if result.TenantID != "" && result.TenantID != req.TenantID {
			r.logger.ErrorContext(ctx, "Search result tenant mismatch, discarding",
				"result_tenant", result.TenantID,
			)
			return chunks, nil
		}
		for _, c := range result.Results {
			if c.SimilarityScore < req.Threshold {
				continue
			}
			chunks = append(chunks, c)
		}
	}

	domainRAG.SortBySimilarity(chunks)
	if req.TopK > 0 && len(chunks) > req.TopK {
		chunks = chunks[:req.TopK]
	}

	r.recorder.ObserveRetrieved(len(chunks))
	r.logger.DebugContext(ctx, "Retrieval completed",
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return chunks, nil
}
