package rag

import "context"

// SearchRequest 检索协作方请求
type SearchRequest struct {
	TenantID        string
	Query           string
	TopK            int
	Threshold       float64
	DocumentIDs     []string
	Filters         map[string]any
	IncludeMetadata bool
}

// SearchResult 检索协作方响应
type SearchResult struct {
	TenantID      string
	Results       []ChunkMatch
	TotalResults  int
	MaxSimilarity float64
	TookMs        int64
}

// SearchClient 外部检索服务
type SearchClient interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
}

// ConversationStore 对话存储，所有键都包含租户
type ConversationStore interface {
	// Get 不存在时返回 nil, nil
	Get(ctx context.Context, tenantID, conversationID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, tenantID, conversationID string) (bool, error)
}

// CacheStore 响应缓存存储，所有键都包含租户
type CacheStore interface {
	// Get 未命中或已过期时返回 nil, nil
	Get(ctx context.Context, tenantID, fingerprint string) (*CacheEntry, error)
	Put(ctx context.Context, entry *CacheEntry) error
	Delete(ctx context.Context, tenantID, fingerprint string) error
	InvalidateTenant(ctx context.Context, tenantID string) (int, error)
}
