package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	debugMode     bool
	// logFile file: 输出时打开的文件，重新初始化时关闭
	logFile *os.File
)

// New 按配置创建 logger，写入 w
// 上下文中的请求 ID、租户、对话会自动附加到每条记录
func New(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{slog.String("service", serviceName(cfg))})
	return slog.New(NewContextHandler(h))
}

// Init 初始化全局日志，cfg 为 nil 时从环境变量读取
func Init(cfg *Config) {
	if cfg == nil {
		cfg = NewConfigFromEnv()
	}
	w, file := openOutput(cfg.Output)
	logger := New(cfg, w)

	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	defaultLogger = logger
	debugMode = strings.EqualFold(cfg.Level, "debug")
	mu.Unlock()

	slog.SetDefault(logger)
}

// GetLogger 全局 logger，未初始化时按环境变量初始化
func GetLogger() *slog.Logger {
	mu.RLock()
	logger := defaultLogger
	mu.RUnlock()
	if logger != nil {
		return logger
	}
	Init(nil)
	return GetLogger()
}

// With 创建带有额外字段的 logger
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

// NewModuleLogger 为特定模块创建 logger
func NewModuleLogger(module, component string) *slog.Logger {
	return GetLogger().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

// IsDebugMode 是否为 debug 级别
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

// openOutput 解析输出目标：stdout、stderr 或 file:/path/to/log
// 文件打开失败时回退到 stdout
func openOutput(output string) (io.Writer, *os.File) {
	switch {
	case output == "stderr":
		return os.Stderr, nil
	case strings.HasPrefix(output, "file:"):
		path := strings.TrimPrefix(output, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return os.Stdout, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return os.Stdout, nil
		}
		return f, f
	default:
		return os.Stdout, nil
	}
}

// parseLevel 未知级别按 info 处理
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serviceName(cfg *Config) string {
	if cfg.Service == "" {
		return "ragcore"
	}
	return cfg.Service
}
