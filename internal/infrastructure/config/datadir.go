package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	// EnvDataDir 数据目录环境变量名
	EnvDataDir = "RAGCORE_DATA_DIR"
	// DefaultDataDirName 默认数据目录名
	DefaultDataDirName = ".ragcore"

	envXDGDataHome = "XDG_DATA_HOME"
	xdgDirName     = "ragcore"
)

var (
	dataDirOnce sync.Once
	dataDirPath string
)

// GetDataDir 数据根目录，存放 config.yaml、ragcore.db 与密钥文件
// 解析顺序：RAGCORE_DATA_DIR、$XDG_DATA_HOME/ragcore、~/.ragcore，都不可用时使用当前目录下的 .ragcore
func GetDataDir() string {
	dataDirOnce.Do(func() {
		dataDirPath = resolveDataDir()
	})
	return dataDirPath
}

func resolveDataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	if xdg := os.Getenv(envXDGDataHome); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, xdgDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, DefaultDataDirName)
	}
	return DefaultDataDirName
}

// ResetDataDir 清除缓存的数据目录，仅测试使用
func ResetDataDir() {
	dataDirOnce = sync.Once{}
	dataDirPath = ""
}
