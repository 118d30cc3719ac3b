package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// fingerprintInput 参与指纹计算的字段，字段顺序固定
type fingerprintInput struct {
	TenantID         string   `json:"t"`
	Query            string   `json:"q"`
	MaxResults       int      `json:"k"`
	Threshold        float64  `json:"th"`
	MaxContextTokens int      `json:"ctx"`
	IncludeMetadata  bool     `json:"md"`
	DocumentIDs      []string `json:"docs"`
	ConversationID   string   `json:"conv"`
	Provider         string   `json:"p"`
	Temperature      *float64 `json:"temp"`
	MaxTokens        int      `json:"mt"`
	SystemPrompt     string   `json:"sys"`
}

// NormalizeQuery 折叠空白并转小写
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Fingerprint 计算缓存键，格式为 <tenant>:<sha256 hex>
// 不同租户即使查询相同也得到不同的键
func Fingerprint(tenantID, normalizedQuery string, opts domainRAG.QueryOptions, documentIDs []string, conversationID string) string {
	docs := append([]string(nil), documentIDs...)
	sort.Strings(docs)

	opts = opts.WithDefaults()
	input := fingerprintInput{
		TenantID:         tenantID,
		Query:            normalizedQuery,
		MaxResults:       opts.MaxResults,
		Threshold:        opts.Threshold(),
		MaxContextTokens: opts.MaxContextTokens,
		IncludeMetadata:  opts.IncludeMetadata,
		DocumentIDs:      docs,
		ConversationID:   conversationID,
		Provider:         strings.ToLower(strings.TrimSpace(opts.Provider)),
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		SystemPrompt:     opts.SystemPrompt,
	}

	// 结构体字段均为可编码类型，Marshal 不会失败
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return tenantID + ":" + hex.EncodeToString(sum[:])
}

// FingerprintRequest 计算请求的缓存键
func FingerprintRequest(req *domainRAG.QueryRequest) string {
	return Fingerprint(req.TenantID, NormalizeQuery(req.Query), req.Options, req.DocumentIDs, req.ConversationID)
}
