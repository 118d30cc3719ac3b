package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName 配置文件名
const ConfigFileName = "config.yaml"

// DefaultConfigPath 默认配置文件路径
func DefaultConfigPath() string {
	return filepath.Join(GetDataDir(), ConfigFileName)
}

// Load 加载配置：默认值 -> YAML 文件 -> 环境变量 -> 解密密钥
// 文件不存在时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		cfg.path = path
	case errors.Is(err, fs.ErrNotExist):
		// 使用默认值
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ProvideConfig 从默认路径加载配置（Wire Provider）
func ProvideConfig() (*Config, error) {
	return Load(DefaultConfigPath())
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendSQLite:
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	switch c.Search.Backend {
	case SearchBackendHTTP, SearchBackendQdrant:
	default:
		return fmt.Errorf("unsupported search backend %q", c.Search.Backend)
	}
	if len(c.LLM.Priority) == 0 {
		return fmt.Errorf("llm.priority must name at least one provider")
	}
	if c.Pipeline.AsyncWorkers <= 0 {
		return fmt.Errorf("pipeline.async_workers must be positive")
	}
	if c.Pipeline.StreamBuffer <= 0 {
		return fmt.Errorf("pipeline.stream_buffer must be positive")
	}
	return nil
}

// resolveSecrets 解密 enc: 前缀的密钥字段
func (c *Config) resolveSecrets() error {
	fields := []*string{
		&c.LLM.OpenAI.APIKey,
		&c.Search.Embedding.APIKey,
		&c.Search.Qdrant.APIKey,
		&c.Cache.Redis.Password,
	}

	var box *SecretBox
	for _, field := range fields {
		if !IsEncrypted(*field) {
			continue
		}
		if box == nil {
			var err error
			box, err = NewSecretBox(filepath.Join(GetDataDir(), SecretKeyFileName))
			if err != nil {
				return fmt.Errorf("failed to load secret key: %w", err)
			}
		}
		plain, err := box.Decrypt(*field)
		if err != nil {
			return fmt.Errorf("failed to decrypt secret: %w", err)
		}
		*field = plain
	}
	return nil
}
