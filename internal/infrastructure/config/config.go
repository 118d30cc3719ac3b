package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// 环境变量名
const (
	EnvHTTPPort      = "RAGCORE_HTTP_PORT"
	EnvCacheBackend  = "RAGCORE_CACHE_BACKEND"
	EnvRedisAddr     = "RAGCORE_REDIS_ADDR"
	EnvSearchBackend = "RAGCORE_SEARCH_BACKEND"
	EnvSearchURL     = "RAGCORE_SEARCH_URL"
	EnvQdrantHost    = "RAGCORE_QDRANT_HOST"
	EnvLLMPriority   = "RAGCORE_LLM_PRIORITY"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOllamaHost    = "OLLAMA_HOST"
)

// 缓存后端
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendSQLite = "sqlite"
)

// 检索后端
const (
	SearchBackendHTTP   = "http"
	SearchBackendQdrant = "qdrant"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Cache        CacheConfig        `yaml:"cache"`
	Search       SearchConfig       `yaml:"search"`
	LLM          LLMConfig          `yaml:"llm"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Conversation ConversationConfig `yaml:"conversation"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`

	// path 配置文件路径，未从文件加载时为空
	path string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"` // 固定端口，用于单例锁
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 为空时使用数据目录下的 ragcore.db
	Path string `yaml:"path"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// CacheConfig 响应缓存配置
type CacheConfig struct {
	Backend  string        `yaml:"backend"` // memory, redis, sqlite
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"` // 仅 memory 后端
	Redis    RedisConfig   `yaml:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SearchConfig 检索协作方配置
type SearchConfig struct {
	Backend   string          `yaml:"backend"` // http, qdrant
	URL       string          `yaml:"url"`     // 检索服务地址（http 后端）
	Timeout   time.Duration   `yaml:"timeout"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// QdrantConfig Qdrant 连接配置
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig Embedding API 配置（qdrant 后端用于向量化查询）
type EmbeddingConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// LLMConfig 生成配置
type LLMConfig struct {
	// Priority 提供方优先级，第一个为主提供方
	Priority     []string      `yaml:"priority"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
	SystemPrompt string        `yaml:"system_prompt"`
	OpenAI       OpenAIConfig  `yaml:"openai"`
	Ollama       OllamaConfig  `yaml:"ollama"`
}

// OpenAIConfig OpenAI 兼容接口配置
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OllamaConfig Ollama 配置
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// PipelineConfig 查询流水线配置
type PipelineConfig struct {
	AsyncWorkers     int           `yaml:"async_workers"`
	StreamBuffer     int           `yaml:"stream_buffer"`
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout"`
	// AsyncResultTTL 异步结果保留时间
	AsyncResultTTL time.Duration `yaml:"async_result_ttl"`
}

// ConversationConfig 对话配置
type ConversationConfig struct {
	MaxHistory    int           `yaml:"max_history"`
	ContextWindow int           `yaml:"context_window"`
	TTL           time.Duration `yaml:"ttl"`
	// Contextualize 是否用对话历史改写检索查询
	Contextualize bool `yaml:"contextualize"`
}

// DiscoveryConfig 局域网服务发现配置
type DiscoveryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	InstanceName string `yaml:"instance_name"`
}

// NewConfig 创建配置（默认值 + 环境变量）
func NewConfig() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	return cfg
}

// defaultConfig 默认配置
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19980",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Cache: CacheConfig{
			Backend:  CacheBackendMemory,
			TTL:      time.Hour,
			Capacity: 1024,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Search: SearchConfig{
			Backend: SearchBackendHTTP,
			URL:     "http://localhost:8083",
			Timeout: 10 * time.Second,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "rag_chunks",
			},
		},
		LLM: LLMConfig{
			Priority:    []string{"openai", "ollama"},
			Timeout:     30 * time.Second,
			MaxTokens:   1500,
			Temperature: 0.7,
			OpenAI: OpenAIConfig{
				Model: "gpt-4o-mini",
			},
			Ollama: OllamaConfig{
				Host:  "http://localhost:11434",
				Model: "llama3.2",
			},
		},
		Pipeline: PipelineConfig{
			AsyncWorkers:     8,
			StreamBuffer:     32,
			RetrievalTimeout: 10 * time.Second,
			AsyncResultTTL:   10 * time.Minute,
		},
		Conversation: ConversationConfig{
			MaxHistory:    20,
			ContextWindow: 5,
			TTL:           24 * time.Hour,
			Contextualize: true,
		},
		Discovery: DiscoveryConfig{
			Enabled:      false,
			InstanceName: "ragcore",
		},
	}
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	if port := os.Getenv(EnvHTTPPort); port != "" {
		c.Server.HTTPPort = port
	}
	if backend := os.Getenv(EnvCacheBackend); backend != "" {
		c.Cache.Backend = strings.ToLower(backend)
	}
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		c.Cache.Redis.Addr = addr
	}
	if backend := os.Getenv(EnvSearchBackend); backend != "" {
		c.Search.Backend = strings.ToLower(backend)
	}
	if url := os.Getenv(EnvSearchURL); url != "" {
		c.Search.URL = url
	}
	if host := os.Getenv(EnvQdrantHost); host != "" {
		c.Search.Qdrant.Host = host
	}
	if priority := os.Getenv(EnvLLMPriority); priority != "" {
		c.LLM.Priority = splitList(priority)
	}
	if key := os.Getenv(EnvOpenAIAPIKey); key != "" {
		c.LLM.OpenAI.APIKey = key
	}
	if baseURL := os.Getenv(EnvOpenAIBaseURL); baseURL != "" {
		c.LLM.OpenAI.BaseURL = baseURL
	}
	if host := os.Getenv(EnvOllamaHost); host != "" {
		if !strings.HasPrefix(host, "http") {
			host = "http://" + host
		}
		c.LLM.Ollama.Host = host
	}
}

// splitList 解析逗号分隔的列表
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Path 配置文件路径
func (c *Config) Path() string {
	return c.path
}

// HTTPPortNumber 端口号（用于服务发现）
func (c *Config) HTTPPortNumber() int {
	port := strings.TrimPrefix(c.Server.HTTPPort, ":")
	if idx := strings.LastIndex(port, ":"); idx >= 0 {
		port = port[idx+1:]
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewCacheConfig 创建缓存配置
func NewCacheConfig(cfg *Config) *CacheConfig {
	return &cfg.Cache
}

// NewSearchConfig 创建检索配置
func NewSearchConfig(cfg *Config) *SearchConfig {
	return &cfg.Search
}

// NewLLMConfig 创建生成配置
func NewLLMConfig(cfg *Config) *LLMConfig {
	return &cfg.LLM
}

// NewPipelineConfig 创建流水线配置
func NewPipelineConfig(cfg *Config) *PipelineConfig {
	return &cfg.Pipeline
}

// NewConversationConfig 创建对话配置
func NewConversationConfig(cfg *Config) *ConversationConfig {
	return &cfg.Conversation
}

// NewDiscoveryConfig 创建服务发现配置
func NewDiscoveryConfig(cfg *Config) *DiscoveryConfig {
	return &cfg.Discovery
}

// NewWebSocketConfig 创建 WebSocket 配置
func NewWebSocketConfig(cfg *Config) *WebSocketConfig {
	return &cfg.WebSocket
}
