package rag

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
	"github.com/ragcore/backend/internal/infrastructure/tokenizer"
)

// ContextSeparator 片段之间的分隔符
const ContextSeparator = "\n\n---\n\n"

// contextMetadataKeys 写入上下文的元数据白名单
var contextMetadataKeys = map[string]bool{
	"section":  true,
	"page":     true,
	"chapter":  true,
	"author":   true,
	"date":     true,
	"category": true,
}

// TokenCounter token 估算
type TokenCounter interface {
	CountTokens(text string) int
}

// AssembledContext 组装结果
type AssembledContext struct {
	Text       string
	ChunksUsed int
	Tokens     int
}

// ContextAssembler 在 token 预算内组装上下文
type ContextAssembler struct {
	counter  TokenCounter
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewContextAssembler 创建上下文组装器
func NewContextAssembler(estimator *tokenizer.Estimator, recorder *metrics.Recorder) *ContextAssembler {
	return &ContextAssembler{
		counter:  estimator,
		recorder: recorder,
		logger:   log.NewModuleLogger("rag", "assembler"),
	}
}

// Assemble 按相似度降序累加片段，下一个片段会超出预算时停止
// 第一个片段总是保留，片段不会被截断；同一文档同一序号的片段只保留一次
func (a *ContextAssembler) Assemble(chunks []domainRAG.ChunkMatch, maxTokens int, includeMetadata bool) AssembledContext {
	if len(chunks) == 0 {
		return AssembledContext{}
	}
	start := time.Now()

	ordered := append([]domainRAG.ChunkMatch(nil), chunks...)
	domainRAG.SortBySimilarity(ordered)

	type chunkKey struct {
		documentID string
		sequence   int
	}
	seen := make(map[chunkKey]bool, len(ordered))

	var sb strings.Builder
	result := AssembledContext{}
	for _, chunk := range ordered {
		key := chunkKey{chunk.DocumentID, chunk.SequenceNumber}
		if chunk.DocumentID != "" && seen[key] {
			continue
		}
		seen[key] = true

		formatted := formatChunk(result.ChunksUsed+1, chunk, includeMetadata)
		tokens := a.counter.CountTokens(formatted)
		if result.ChunksUsed > 0 {
			tokens += a.counter.CountTokens(ContextSeparator)
			if maxTokens > 0 && result.Tokens+tokens > maxTokens {
				break
			}
			sb.WriteString(ContextSeparator)
		}

		sb.WriteString(formatted)
		result.Tokens += tokens
		result.ChunksUsed++
	}
	result.Text = sb.String()

	a.recorder.ObserveStage(metrics.StageAssemble, time.Since(start))
	a.logger.Debug("Context assembled",
		"chunks_in", len(chunks),
		"chunks_used", result.ChunksUsed,
		"tokens", result.Tokens,
		"max_tokens", maxTokens,
	)
	return result
}

// formatChunk 格式化单个片段
func formatChunk(n int, chunk domainRAG.ChunkMatch, includeMetadata bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Source %d]\n", n)

	if includeMetadata && chunk.DocumentTitle != "" {
		sb.WriteString("Document: " + chunk.DocumentTitle + "\n")
		if chunk.DocumentType != "" {
			sb.WriteString("Type: " + chunk.DocumentType + "\n")
		}
		fmt.Fprintf(&sb, "Relevance: %.2f\n", chunk.SimilarityScore)
		sb.WriteString("---\n")
	}

	sb.WriteString(chunk.Content)

	if includeMetadata && len(chunk.Metadata) > 0 {
		keys := make([]string, 0, len(chunk.Metadata))
		for k := range chunk.Metadata {
			if contextMetadataKeys[k] {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			pairs := make([]string, len(keys))
			for i, k := range keys {
				pairs[i] = fmt.Sprintf("%s=%v", k, chunk.Metadata[k])
			}
			sb.WriteString("\n[Metadata: " + strings.Join(pairs, " ") + "]")
		}
	}
	return sb.String()
}
