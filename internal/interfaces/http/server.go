package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
	"github.com/ragcore/backend/internal/infrastructure/singleton"
	"github.com/ragcore/backend/internal/interfaces/http/handler"
	"github.com/ragcore/backend/internal/interfaces/http/middleware"
	"github.com/ragcore/backend/internal/interfaces/mcp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ragcore/backend/docs" // Swagger docs
)

const readHeaderTimeout = 10 * time.Second

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	mu       sync.Mutex
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	cfg *config.ServerConfig,
	queryHandler *handler.QueryHandler,
	conversationHandler *handler.ConversationHandler,
	adminHandler *handler.AdminHandler,
	recorder *metrics.Recorder,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	if !log.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID())

	logger := log.NewModuleLogger("http", "server")

	api := router.Group("/api/v1")
	api.Use(middleware.TenantHeader(), middleware.EnsureUTF8Body())
	{
		rag := api.Group("/rag")
		{
			rag.POST("/query", queryHandler.Query)
			rag.POST("/query/async", queryHandler.QueryAsync)
			rag.GET("/query/async/:taskId", queryHandler.AsyncResult)
			rag.POST("/query/stream", queryHandler.Stream)
			rag.GET("/query/ws", queryHandler.QueryWS)
			rag.POST("/query/analyze", queryHandler.Analyze)
			rag.POST("/query/suggestions", queryHandler.Suggestions)
			rag.GET("/events", queryHandler.Events)

			rag.GET("/conversations/:id", conversationHandler.Summary)
			rag.DELETE("/conversations/:id", conversationHandler.Delete)
			rag.GET("/conversations/:id/stats", conversationHandler.Stats)

			rag.GET("/stats", adminHandler.Stats)
			rag.DELETE("/cache", adminHandler.InvalidateCache)
			rag.GET("/providers/status", adminHandler.ProviderStatus)
			rag.GET("/health", adminHandler.Health)
		}
	}

	// 进程存活检查，供单例锁识别
	router.GET("/health", func(c *gin.Context) {
		c.Header(singleton.InstanceHeader, "ragcore")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	port := cfg.HTTPPort
	if port == "" {
		port = ":19980"
	}

	return &HTTPServer{
		router:   router,
		httpPort: port,
		logger:   logger,
	}
}

// Handler 路由，用于测试
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Serve 在已持有的 listener 上启动服务器
func (s *HTTPServer) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("HTTP server starting",
		"addr", listener.Addr().String(),
	)

	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start 监听配置端口并启动服务器
func (s *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", s.httpPort)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
