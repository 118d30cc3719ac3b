// Package mcp 通过 MCP 协议暴露 RAG 查询工具
package mcp

import (
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	appRAG "github.com/ragcore/backend/internal/application/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// 服务标识
const (
	serverName    = "ragcore"
	serverVersion = "0.1.0"
)

// MCPServer MCP 服务器
type MCPServer struct {
	server        *mcp.Server
	handler       http.Handler
	orchestrator  *appRAG.Orchestrator
	optimizer     *appRAG.QueryOptimizer
	conversations *appRAG.ConversationManager
	logger        *slog.Logger
}

// NewServer 创建 MCP 服务器
func NewServer(
	orchestrator *appRAG.Orchestrator,
	optimizer *appRAG.QueryOptimizer,
	conversations *appRAG.ConversationManager,
) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		nil,
	)

	s := &MCPServer{
		server:        server,
		orchestrator:  orchestrator,
		optimizer:     optimizer,
		conversations: conversations,
		logger:        log.NewModuleLogger("mcp", "server"),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "rag_query",
		Description: `Answer a question from a tenant's document collection using retrieval-augmented generation.

Parameters:
- tenant_id (string, required): Tenant whose documents are searched
- query (string, required): Natural language question
- conversation_id (string, optional): Continue a multi-turn conversation
- max_results (int, optional): Maximum chunks to retrieve (1-50, default 10)

Returns: answer text, status (SUCCESS/EMPTY/FAILED), cited sources and timing metrics.`,
	}, s.ragQueryTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_analyze_query",
		Description: "Analyze a query without running it. Parameters: query (string, required). Returns: complexity, word count, keywords, warnings and rewrite suggestions.",
	}, s.analyzeQueryTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rag_conversation_summary",
		Description: "Summarize a conversation. Parameters: tenant_id (string, required), conversation_id (string, required). Returns: turn count, first and last query, referenced document count, and found flag.",
	}, s.conversationSummaryTool)

	s.handler = mcp.NewSSEHandler(
		func(r *http.Request) *mcp.Server {
			return server
		},
		nil,
	)
	return s
}

// GetHandler 获取 HTTP Handler（用于集成到 HTTP 服务器）
func (s *MCPServer) GetHandler() http.Handler {
	return s.handler
}
