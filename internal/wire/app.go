package wire

import (
	"context"
	"log/slog"
	"net"
	"time"

	appRAG "github.com/ragcore/backend/internal/application/rag"
	"github.com/ragcore/backend/internal/domain/events"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/discovery"
	applog "github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/watcher"
	"github.com/ragcore/backend/internal/infrastructure/websocket"
	"github.com/ragcore/backend/internal/interfaces"
)

// shutdownTimeout HTTP 优雅关闭超时
const shutdownTimeout = 10 * time.Second

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer

	cfg           *config.Config
	wsHub         *websocket.Hub
	eventBus      events.EventBus
	configWatcher *watcher.ConfigWatcher
	advertiser    *discovery.Advertiser
	generation    *appRAG.GenerationService
	pool          *appRAG.WorkerPool
	logger        *slog.Logger

	unsubscribe []func()
}

// NewApp 创建应用实例
func NewApp(
	cfg *config.Config,
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	eventBus events.EventBus,
	configWatcher *watcher.ConfigWatcher,
	advertiser *discovery.Advertiser,
	generation *appRAG.GenerationService,
	pool *appRAG.WorkerPool,
) *App {
	return &App{
		HTTPServer:    httpServer,
		MCPServer:     mcpServer,
		cfg:           cfg,
		wsHub:         wsHub,
		eventBus:      eventBus,
		configWatcher: configWatcher,
		advertiser:    advertiser,
		generation:    generation,
		pool:          pool,
		logger:        applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
// listener 为单例锁持有的端口，为 nil 时由 HTTP 服务器自行监听
func (a *App) Start(listener net.Listener) error {
	a.logger.Info("Starting ragcore backend application")

	a.setupEventSubscribers()

	if a.configWatcher != nil {
		if err := a.configWatcher.Start(); err != nil {
			a.logger.Error("Failed to start config watcher", "error", err)
		}
	}

	// 启动 WebSocket Hub
	a.wsHub.Start()

	// 启动 HTTP 服务器（goroutine）
	go func() {
		var err error
		if listener != nil {
			err = a.HTTPServer.Serve(listener)
		} else {
			err = a.HTTPServer.Start()
		}
		if err != nil {
			a.logger.Error("HTTP server stopped with error", "error", err)
		}
	}()

	if a.advertiser != nil {
		info := discovery.BuildServiceInfo(a.cfg.Discovery.InstanceName, a.cfg.HTTPPortNumber(), a.providerNames())
		if err := a.advertiser.Start(info); err != nil {
			a.logger.Warn("Failed to start mDNS advertiser", "error", err)
		}
	}

	a.logger.Info("ragcore backend application started successfully",
		"providers", a.providerNames(),
		"async_workers", a.pool.Size(),
	)
	return nil
}

// providerNames 当前提供方优先级名称
func (a *App) providerNames() []string {
	kinds := a.generation.Priority()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.String())
	}
	return names
}

// setupEventSubscribers 注册事件订阅者
func (a *App) setupEventSubscribers() {
	if a.eventBus == nil {
		return
	}

	// 配置重新加载后更新提供方优先级
	a.unsubscribe = append(a.unsubscribe,
		a.eventBus.Subscribe(events.ConfigReloaded, a.generation),
	)

	// 租户事件推送到 WebSocket 订阅者
	a.unsubscribe = append(a.unsubscribe,
		a.eventBus.SubscribeMultiple(websocket.SubscribedEvents(), a.wsHub),
	)

	a.logger.Info("Event subscribers registered")
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping ragcore backend application")

	if a.advertiser != nil {
		a.advertiser.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shutdown HTTP server", "error", err)
	}

	if a.configWatcher != nil {
		a.configWatcher.Stop()
	}

	for _, unsub := range a.unsubscribe {
		unsub()
	}
	if a.eventBus != nil {
		a.eventBus.Close()
	}

	// 等待异步查询完成
	a.pool.Close()
	a.wsHub.Stop()

	a.logger.Info("ragcore backend application stopped successfully")
	return nil
}
