package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	appRAG "github.com/ragcore/backend/internal/application/rag"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/websocket"
	"github.com/ragcore/backend/internal/interfaces/http/middleware"
	"github.com/ragcore/backend/internal/interfaces/http/response"

	gorilla "github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// QueryHandler RAG 查询处理器
type QueryHandler struct {
	orchestrator *appRAG.Orchestrator
	optimizer    *appRAG.QueryOptimizer
	hub          *websocket.Hub
	logger       *slog.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(orchestrator *appRAG.Orchestrator, optimizer *appRAG.QueryOptimizer, hub *websocket.Hub) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		optimizer:    optimizer,
		hub:          hub,
		logger:       log.NewModuleLogger("http", "query_handler"),
	}
}

// AsyncTaskResponse 异步任务响应
type AsyncTaskResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// AnalyzeRequest 查询分析请求
type AnalyzeRequest struct {
	Query string `json:"query" binding:"required"`
}

// SuggestionsResponse 改写建议
type SuggestionsResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

// bindQuery 解析请求体并与请求头租户对齐
func bindQuery(c *gin.Context) (*domainRAG.QueryRequest, error) {
	var req domainRAG.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, domainRAG.NewValidationError("invalid request body: " + err.Error())
	}
	if err := resolveTenant(middleware.TenantID(c), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// resolveTenant 请求体租户为空时使用请求头，两者不一致时报错
func resolveTenant(headerTenant string, req *domainRAG.QueryRequest) error {
	bodyTenant := strings.TrimSpace(req.TenantID)
	if bodyTenant == "" {
		req.TenantID = headerTenant
		return nil
	}
	if bodyTenant != headerTenant {
		return domainRAG.NewTenantMismatchError(headerTenant, bodyTenant)
	}
	return nil
}

// Query 同步查询
// @Summary 处理 RAG 查询
// @Tags RAG
// @Accept json
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param request body domainRAG.QueryRequest true "查询请求"
// @Success 200 {object} domainRAG.QueryResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /rag/query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	req, err := bindQuery(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	resp, err := h.orchestrator.ProcessQuery(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// QueryAsync 异步查询，wait=true 时等待结果
// @Summary 提交异步 RAG 查询
// @Tags RAG
// @Accept json
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param wait query bool false "是否等待结果"
// @Param request body domainRAG.QueryRequest true "查询请求"
// @Success 200 {object} domainRAG.QueryResponse
// @Success 202 {object} AsyncTaskResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /rag/query/async [post]
func (h *QueryHandler) QueryAsync(c *gin.Context) {
	req, err := bindQuery(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	future, err := h.orchestrator.ProcessQueryAsync(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if c.Query("wait") != "true" {
		c.Header("Location", "/api/v1/rag/query/async/"+future.ID())
		c.JSON(http.StatusAccepted, AsyncTaskResponse{TaskID: future.ID(), Status: "PENDING"})
		return
	}

	resp, err := future.Await(c.Request.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusAccepted, AsyncTaskResponse{TaskID: future.ID(), Status: "PENDING"})
			return
		}
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AsyncResult 查询异步任务结果
// @Summary 获取异步查询结果
// @Tags RAG
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param taskId path string true "任务 ID"
// @Success 200 {object} domainRAG.QueryResponse
// @Success 202 {object} AsyncTaskResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /rag/query/async/{taskId} [get]
func (h *QueryHandler) AsyncResult(c *gin.Context) {
	taskID := c.Param("taskId")
	resp, done, err := h.orchestrator.GetAsyncResult(middleware.TenantID(c), taskID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !done {
		c.JSON(http.StatusAccepted, AsyncTaskResponse{TaskID: taskID, Status: "PENDING"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stream 流式查询，以 chunked 文本输出片段
// @Summary 流式 RAG 查询
// @Tags RAG
// @Accept json
// @Produce plain
// @Param tenant-id header string true "租户 ID"
// @Param request body domainRAG.QueryRequest true "查询请求"
// @Success 200 {string} string "片段流"
// @Failure 400 {object} response.ErrorResponse
// @Router /rag/query/stream [post]
func (h *QueryHandler) Stream(c *gin.Context) {
	req, err := bindQuery(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	ctx := c.Request.Context()
	stream, _, err := h.orchestrator.ProcessQueryStreaming(ctx, req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer stream.Cancel()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		fragment, ok := stream.Next(ctx)
		if !ok {
			return false
		}
		_, werr := w.Write([]byte(fragment))
		return werr == nil
	})

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		_, _ = c.Writer.Write([]byte("\n" + appRAG.FailureText(err.Error())))
		c.Writer.Flush()
	}
}

// wsMessage 查询 WebSocket 消息
type wsMessage struct {
	Type     string                   `json:"type"`
	Text     string                   `json:"text,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Response *domainRAG.QueryResponse `json:"response,omitempty"`
}

// QueryWS WebSocket 流式查询
// 第一条消息为 QueryRequest，随后推送 fragment，最后是 done 或 error
// @Summary WebSocket 流式 RAG 查询
// @Tags RAG
// @Param tenant-id header string true "租户 ID"
// @Router /rag/query/ws [get]
func (h *QueryHandler) QueryWS(c *gin.Context) {
	tenant := middleware.TenantID(c)
	conn, err := h.hub.Upgrade(c.Writer, c.Request)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	write := func(msg wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(msg)
	}

	var req domainRAG.QueryRequest
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		_ = write(wsMessage{Type: "error", Error: "invalid request: " + err.Error()})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if err := resolveTenant(tenant, &req); err != nil {
		_ = write(wsMessage{Type: "error", Error: err.Error()})
		return
	}

	// 客户端断开时取消生成
	ctx, cancel := context.WithCancel(log.WithTenantID(context.Background(), tenant))
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	stream, resp, err := h.orchestrator.ProcessQueryStreaming(ctx, &req)
	if err != nil {
		_ = write(wsMessage{Type: "error", Error: err.Error()})
		return
	}
	defer stream.Cancel()

	for {
		fragment, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if err := write(wsMessage{Type: "fragment", Text: fragment}); err != nil {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := stream.Err(); err != nil {
		_ = write(wsMessage{Type: "error", Error: err.Error(), Response: stream.Response()})
		return
	}
	if resp == nil {
		resp = stream.Response()
	}
	_ = write(wsMessage{Type: "done", Response: resp})
	_ = conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

// Analyze 查询分析
// @Summary 分析查询
// @Tags RAG
// @Accept json
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param request body AnalyzeRequest true "查询"
// @Success 200 {object} domainRAG.QueryAnalysis
// @Failure 400 {object} response.ErrorResponse
// @Router /rag/query/analyze [post]
func (h *QueryHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, domainRAG.NewValidationError("query is required"))
		return
	}
	c.JSON(http.StatusOK, h.optimizer.Analyze(req.Query))
}

// Suggestions 改写建议
// @Summary 获取查询改写建议
// @Tags RAG
// @Accept json
// @Produce json
// @Param tenant-id header string true "租户 ID"
// @Param request body AnalyzeRequest true "查询"
// @Success 200 {object} SuggestionsResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /rag/query/suggestions [post]
func (h *QueryHandler) Suggestions(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, domainRAG.NewValidationError("query is required"))
		return
	}
	suggestions := h.optimizer.SuggestAlternatives(req.Query)
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, SuggestionsResponse{Query: req.Query, Suggestions: suggestions})
}

// Events 租户事件推送
// @Summary 订阅租户流水线事件
// @Tags RAG
// @Param tenant-id header string true "租户 ID"
// @Router /rag/events [get]
func (h *QueryHandler) Events(c *gin.Context) {
	if err := h.hub.ServeTenant(c.Writer, c.Request, middleware.TenantID(c)); err != nil {
		h.logger.Warn("Event subscription failed", "error", err)
	}
}
