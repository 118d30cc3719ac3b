// Package rag 定义 RAG 查询编排的领域模型、错误与协作方接口
package rag

import (
	"sort"
	"strings"
	"time"
)

// 默认查询参数
const (
	DefaultMaxResults          = 10
	DefaultSimilarityThreshold = 0.7
	DefaultMaxContextTokens    = 4000
	MaxQueryLength             = 500
)

// Status 查询处理结果状态
type Status string

const (
	// StatusSuccess 生成成功
	StatusSuccess Status = "SUCCESS"
	// StatusEmpty 检索无结果
	StatusEmpty Status = "EMPTY"
	// StatusFailed 协作方失败
	StatusFailed Status = "FAILED"
)

// QueryOptions 查询选项
type QueryOptions struct {
	MaxResults int `json:"maxResults,omitempty"`
	// SimilarityThreshold 为 nil 时使用默认值，0 表示不过滤
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
	MaxContextTokens    int      `json:"maxContextTokens,omitempty"`
	IncludeMetadata     bool     `json:"includeMetadata"`
	// EnableCaching 为 nil 时视为开启
	EnableCaching  *bool `json:"enableCaching,omitempty"`
	StreamResponse bool  `json:"streamResponse,omitempty"`

	// 生成相关选项
	Provider     string   `json:"provider,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
}

// CachingEnabled 是否启用缓存
func (o QueryOptions) CachingEnabled() bool {
	return o.EnableCaching == nil || *o.EnableCaching
}

// Threshold 相似度阈值，未设置时为默认值
func (o QueryOptions) Threshold() float64 {
	if o.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *o.SimilarityThreshold
}

// WithDefaults 返回填充默认值后的选项
// MaxResults 为负数时保留原值，由 Validate 拒绝
func (o QueryOptions) WithDefaults() QueryOptions {
	if o.MaxResults == 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.SimilarityThreshold == nil {
		threshold := DefaultSimilarityThreshold
		o.SimilarityThreshold = &threshold
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = DefaultMaxContextTokens
	}
	return o
}

// QueryRequest 租户范围内的查询请求
type QueryRequest struct {
	TenantID       string         `json:"tenantId"`
	Query          string         `json:"query"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	SessionID      string         `json:"sessionId,omitempty"`
	DocumentIDs    []string       `json:"documentIds,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Options        QueryOptions   `json:"options"`
}

// Validate 校验请求，失败时返回 ValidationError
func (r *QueryRequest) Validate() error {
	if r == nil {
		return NewValidationError("request is required")
	}
	if strings.TrimSpace(r.TenantID) == "" {
		return NewValidationError("tenantId is required")
	}
	if strings.TrimSpace(r.Query) == "" {
		return NewValidationError("query is required")
	}
	if r.Options.MaxResults < 0 {
		return NewValidationError("maxResults must be greater than 0").
			WithDetail("maxResults", r.Options.MaxResults)
	}
	if t := r.Options.SimilarityThreshold; t != nil && (*t < 0 || *t > 1) {
		return NewValidationError("similarityThreshold must be between 0 and 1").
			WithDetail("similarityThreshold", *t)
	}
	return nil
}

// Clone 深拷贝请求
func (r *QueryRequest) Clone() *QueryRequest {
	if r == nil {
		return nil
	}
	c := *r
	if r.DocumentIDs != nil {
		c.DocumentIDs = append([]string(nil), r.DocumentIDs...)
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ChunkMatch 检索命中的文档片段
type ChunkMatch struct {
	ChunkID         string         `json:"chunkId"`
	DocumentID      string         `json:"documentId"`
	Content         string         `json:"content"`
	SimilarityScore float64        `json:"similarityScore"`
	DocumentSummary string         `json:"documentSummary,omitempty"`
	DocumentTitle   string         `json:"documentTitle,omitempty"`
	DocumentType    string         `json:"documentType,omitempty"`
	SequenceNumber  int            `json:"sequenceNumber"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// SortBySimilarity 按相似度降序稳定排序
func SortBySimilarity(chunks []ChunkMatch) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].SimilarityScore > chunks[j].SimilarityScore
	})
}

// RagMetrics 单次查询的度量
type RagMetrics struct {
	RetrievalTimeMs  int64  `json:"retrievalTimeMs"`
	GenerationTimeMs int64  `json:"generationTimeMs"`
	TotalTimeMs      int64  `json:"totalTimeMs"`
	ChunksRetrieved  int    `json:"chunksRetrieved"`
	ChunksUsed       int    `json:"chunksUsed"`
	CacheHit         bool   `json:"cacheHit"`
	Provider         string `json:"provider,omitempty"`
}

// QueryResponse 查询响应
type QueryResponse struct {
	TenantID       string       `json:"tenantId"`
	OriginalQuery  string       `json:"originalQuery"`
	OptimizedQuery string       `json:"optimizedQuery,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
	ResponseText   string       `json:"responseText"`
	Sources        []ChunkMatch `json:"sources"`
	Status         Status       `json:"status"`
	Error          string       `json:"error,omitempty"`
	Metrics        RagMetrics   `json:"metrics"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// AverageRelevance 来源的平均相似度，无来源时为 0
func (r *QueryResponse) AverageRelevance() float64 {
	if len(r.Sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.Sources {
		sum += s.SimilarityScore
	}
	return sum / float64(len(r.Sources))
}

// Clone 深拷贝响应
func (r *QueryResponse) Clone() *QueryResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.Sources = make([]ChunkMatch, len(r.Sources))
	for i, s := range r.Sources {
		if s.Metadata != nil {
			md := make(map[string]any, len(s.Metadata))
			for k, v := range s.Metadata {
				md[k] = v
			}
			s.Metadata = md
		}
		c.Sources[i] = s
	}
	return &c
}

// Complexity 查询复杂度
type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
)

// QueryAnalysis 查询分析结果
type QueryAnalysis struct {
	Query       string     `json:"query"`
	CharCount   int        `json:"charCount"`
	WordCount   int        `json:"wordCount"`
	Complexity  Complexity `json:"complexity"`
	Warnings    []string   `json:"warnings"`
	Keywords    []string   `json:"keywords"`
	Suggestions []string   `json:"suggestions"`
}
