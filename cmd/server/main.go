// @title ragcore API
// @version 1.0
// @description 多租户检索增强生成（RAG）查询编排服务
// @host localhost:19980
// @BasePath /api/v1
// @schemes http
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ragcore/backend/internal/infrastructure/config"
	applog "github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/singleton"
	"github.com/ragcore/backend/internal/wire"
)

func main() {
	// 初始化日志系统
	applog.Init(nil)

	// 加载配置获取端口
	cfg, err := config.ProvideConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 单例锁检查：尝试获取端口锁
	listener, err := singleton.CheckAndLock(cfg.Server.HTTPPort)
	if err != nil {
		log.Fatalf("单例锁检查失败: %v", err)
	}
	if listener == nil {
		// 已有实例运行，直接退出
		log.Println("检测到已有实例在运行，当前进程退出")
		os.Exit(0)
	}

	// Wire 自动生成的初始化函数
	app, cleanup, err := wire.InitializeAll()
	if err != nil {
		_ = listener.Close()
		applog.GetLogger().Error("Failed to initialize application",
			"error", err,
		)
		os.Exit(1)
	}
	defer cleanup()

	// 启动所有服务，HTTP 服务器直接使用单例锁持有的 listener
	if err := app.Start(listener); err != nil {
		applog.GetLogger().Error("Failed to start application",
			"error", err,
		)
		cleanup()
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	applog.GetLogger().Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		applog.GetLogger().Error("Error during application shutdown",
			"error", err,
		)
	}
	applog.GetLogger().Info("Application stopped")
}
