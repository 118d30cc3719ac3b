package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// 工具参数上限，避免上下文过载
const (
	maxToolResults     = 50
	sourcePreviewChars = 200
)

// RAGQueryInput rag_query 输入
type RAGQueryInput struct {
	TenantID       string `json:"tenant_id" jsonschema:"Tenant whose documents are searched (required)"`
	Query          string `json:"query" jsonschema:"Natural language question (required)"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Conversation to continue (optional)"`
	MaxResults     int    `json:"max_results,omitempty" jsonschema:"Maximum chunks to retrieve, defaults to 10, max 50"`
}

// RAGQueryOutput rag_query 输出
type RAGQueryOutput struct {
	Answer         string        `json:"answer" jsonschema:"Generated answer"`
	Status         string        `json:"status" jsonschema:"SUCCESS, EMPTY or FAILED"`
	Error          string        `json:"error,omitempty" jsonschema:"Failure reason when status is FAILED"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Sources        []ToolSource  `json:"sources" jsonschema:"Chunks used as evidence"`
	Metrics        ToolQueryTime `json:"metrics"`
}

// ToolSource 精简的来源信息
type ToolSource struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Preview    string  `json:"preview"`
	Score      float64 `json:"score"`
	Relevance  string  `json:"relevance" jsonschema:"high/medium/low"`
}

// ToolQueryTime 耗时信息
type ToolQueryTime struct {
	TotalMs  int64  `json:"total_ms"`
	CacheHit bool   `json:"cache_hit"`
	Provider string `json:"provider,omitempty"`
}

// ragQueryTool 执行一次完整查询
func (s *MCPServer) ragQueryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RAGQueryInput,
) (*mcp.CallToolResult, RAGQueryOutput, error) {
	output := RAGQueryOutput{Sources: []ToolSource{}}

	maxResults := input.MaxResults
	if maxResults > maxToolResults {
		maxResults = maxToolResults
	}

	resp, err := s.orchestrator.ProcessQuery(ctx, &domainRAG.QueryRequest{
		TenantID:       input.TenantID,
		Query:          input.Query,
		ConversationID: input.ConversationID,
		Options:        domainRAG.QueryOptions{MaxResults: maxResults},
	})
	if err != nil {
		return nil, output, err
	}

	output.Answer = resp.ResponseText
	output.Status = string(resp.Status)
	output.Error = resp.Error
	output.ConversationID = resp.ConversationID
	output.Metrics = ToolQueryTime{
		TotalMs:  resp.Metrics.TotalTimeMs,
		CacheHit: resp.Metrics.CacheHit,
		Provider: resp.Metrics.Provider,
	}
	for _, src := range resp.Sources {
		output.Sources = append(output.Sources, ToolSource{
			DocumentID: src.DocumentID,
			Title:      src.DocumentTitle,
			Preview:    truncatePreview(src.Content, sourcePreviewChars),
			Score:      src.SimilarityScore,
			Relevance:  scoreToRelevance(src.SimilarityScore),
		})
	}
	return nil, output, nil
}

// AnalyzeQueryInput rag_analyze_query 输入
type AnalyzeQueryInput struct {
	Query string `json:"query" jsonschema:"Query to analyze (required)"`
}

// analyzeQueryTool 查询分析
func (s *MCPServer) analyzeQueryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AnalyzeQueryInput,
) (*mcp.CallToolResult, domainRAG.QueryAnalysis, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, domainRAG.QueryAnalysis{}, fmt.Errorf("query is required")
	}
	return nil, *s.optimizer.Analyze(input.Query), nil
}

// ConversationSummaryInput rag_conversation_summary 输入
type ConversationSummaryInput struct {
	TenantID       string `json:"tenant_id" jsonschema:"Tenant ID (required)"`
	ConversationID string `json:"conversation_id" jsonschema:"Conversation ID (required)"`
}

// ConversationSummaryOutput rag_conversation_summary 输出
type ConversationSummaryOutput struct {
	Found   bool                           `json:"found"`
	Summary *domainRAG.ConversationSummary `json:"summary,omitempty"`
}

// conversationSummaryTool 对话摘要，不存在时 found 为 false
func (s *MCPServer) conversationSummaryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ConversationSummaryInput,
) (*mcp.CallToolResult, ConversationSummaryOutput, error) {
	if input.TenantID == "" || input.ConversationID == "" {
		return nil, ConversationSummaryOutput{}, fmt.Errorf("tenant_id and conversation_id are required")
	}

	summary, err := s.conversations.GetSummary(ctx, input.TenantID, input.ConversationID)
	if domainRAG.IsNotFound(err) {
		return nil, ConversationSummaryOutput{Found: false}, nil
	}
	if err != nil {
		return nil, ConversationSummaryOutput{}, err
	}
	return nil, ConversationSummaryOutput{Found: true, Summary: summary}, nil
}

// truncatePreview 按字符截断，尽量在空格处断开
func truncatePreview(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	truncated := runes[:maxChars]
	for i := len(truncated) - 1; i >= maxChars-20 && i > 0; i-- {
		if truncated[i] == ' ' {
			return string(truncated[:i]) + "..."
		}
	}
	return string(truncated) + "..."
}

// scoreToRelevance 将分数转换为相关性等级
func scoreToRelevance(score float64) string {
	if score >= 0.85 {
		return "high"
	}
	if score >= 0.7 {
		return "medium"
	}
	return "low"
}
