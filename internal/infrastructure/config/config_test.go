package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv(EnvHTTPPort, "")
	t.Setenv(EnvLLMPriority, "")

	cfg := NewConfig()
	assert.Equal(t, ":19980", cfg.Server.HTTPPort)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, []string{"openai", "ollama"}, cfg.LLM.Priority)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 20, cfg.Conversation.MaxHistory)
	assert.Equal(t, 5, cfg.Conversation.ContextWindow)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_EnvOverride(t *testing.T) {
	t.Setenv(EnvHTTPPort, ":29980")
	t.Setenv(EnvCacheBackend, "REDIS")
	t.Setenv(EnvLLMPriority, "ollama, openai")
	t.Setenv(EnvOllamaHost, "gpu-box:11434")

	cfg := NewConfig()
	assert.Equal(t, ":29980", cfg.Server.HTTPPort)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, []string{"ollama", "openai"}, cfg.LLM.Priority)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.Ollama.Host)
	assert.Equal(t, 29980, cfg.HTTPPortNumber())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Path())
	assert.Equal(t, SearchBackendHTTP, cfg.Search.Backend)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	t.Setenv(EnvCacheBackend, "")
	t.Setenv(EnvLLMPriority, "")

	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
cache:
  backend: sqlite
  ttl: 15m
llm:
  priority: [ollama]
  timeout: 5s
pipeline:
  async_workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, CacheBackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"ollama"}, cfg.LLM.Priority)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2, cfg.Pipeline.AsyncWorkers)
	// 未在文件中出现的字段保持默认值
	assert.Equal(t, 32, cfg.Pipeline.StreamBuffer)
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv(EnvCacheBackend, "")

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: memcached\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "memcached")
}

func TestLoad_DecryptsSecrets(t *testing.T) {
	dataDir := t.TempDir()
	ResetDataDir()
	t.Setenv(EnvDataDir, dataDir)
	t.Setenv(EnvOpenAIAPIKey, "")
	defer ResetDataDir()

	box, err := NewSecretBox(filepath.Join(dataDir, SecretKeyFileName))
	require.NoError(t, err)
	encrypted, err := box.Encrypt("sk-test-1234")
	require.NoError(t, err)

	path := filepath.Join(dataDir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  openai:\n    api_key: \""+encrypted+"\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234", cfg.LLM.OpenAI.APIKey)
}

func TestSecretBox_RoundTripAndPlaintext(t *testing.T) {
	box, err := NewSecretBox(filepath.Join(t.TempDir(), SecretKeyFileName))
	require.NoError(t, err)

	encrypted, err := box.Encrypt("secret")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))

	plain, err := box.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	plain, err = box.Decrypt("not-encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not-encrypted", plain, "未加密的值应原样返回")
}
