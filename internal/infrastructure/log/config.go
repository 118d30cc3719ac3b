package log

import (
	"os"
	"strconv"
	"strings"
)

// 环境变量前缀，未设置时回退到无前缀的 LOG_*
const envPrefix = "RAGCORE_"

// Config 日志配置
type Config struct {
	// Level debug, info, warn, error
	Level string `json:"level" env:"LOG_LEVEL"`
	// Format console, json
	Format string `json:"format" env:"LOG_FORMAT"`
	// Output stdout, stderr, file:/path/to/log
	Output    string `json:"output" env:"LOG_OUTPUT"`
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE"`
	Service   string `json:"service" env:"LOG_SERVICE"`
}

// NewConfigFromEnv 从环境变量创建配置
// 开发环境强制 debug 级别并附带源文件位置
func NewConfigFromEnv() *Config {
	cfg := &Config{
		Level:     lookupEnv("LOG_LEVEL", "info"),
		Format:    lookupEnv("LOG_FORMAT", "console"),
		Output:    lookupEnv("LOG_OUTPUT", "stdout"),
		AddSource: getEnvBool("LOG_ADD_SOURCE", false),
		Service:   lookupEnv("LOG_SERVICE", "ragcore"),
	}

	if strings.EqualFold(lookupEnv("ENV", "production"), "development") {
		cfg.Level = "debug"
		cfg.AddSource = true
	}
	return cfg
}

// lookupEnv 依次读取 RAGCORE_<key> 与 <key>
func lookupEnv(key, defaultValue string) string {
	for _, k := range []string{envPrefix + key, key} {
		if value := strings.TrimSpace(os.Getenv(k)); value != "" {
			return value
		}
	}
	return defaultValue
}

// getEnvBool 布尔型环境变量，无法解析时使用默认值
func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(lookupEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
