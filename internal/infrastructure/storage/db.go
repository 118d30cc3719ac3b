package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// DBFileName 数据库文件名
const DBFileName = "ragcore.db"

// GetDBPath 获取数据库路径
// 未配置时使用数据目录下的 ragcore.db
func GetDBPath(cfg *config.DatabaseConfig) string {
	if cfg != nil && cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(config.GetDataDir(), DBFileName)
}

// OpenDB 打开数据库连接并启用 WAL
func OpenDB(dbPath string) (*sql.DB, error) {
	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL 允许读写并发，busy_timeout 避免并发写入时立即报 SQLITE_BUSY
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", p, err)
		}
	}

	return db, nil
}

// ProvideDB 提供数据库连接（Wire Provider），cleanup 关闭连接
func ProvideDB(cfg *config.DatabaseConfig) (*sql.DB, func(), error) {
	dbPath := GetDBPath(cfg)
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewModuleLogger("storage", "db")
	logger.Info("Database opened", "path", dbPath)
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}, nil
}
