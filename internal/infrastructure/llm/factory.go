package llm

import (
	"fmt"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// NewProvider 按类型创建提供方
func NewProvider(kind domainRAG.ProviderKind, cfg *config.LLMConfig) (domainRAG.Provider, error) {
	switch kind {
	case domainRAG.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	case domainRAG.ProviderOllama:
		return NewOllamaProvider(cfg.Ollama.Host, cfg.Ollama.Model)
	default:
		return nil, fmt.Errorf("unsupported provider %q", kind)
	}
}

// ProvideProviders 按配置的优先级创建全部提供方（Wire Provider）
// 返回顺序即降级顺序，未出现在优先级中的提供方追加在末尾
func ProvideProviders(cfg *config.LLMConfig) ([]domainRAG.Provider, error) {
	logger := log.NewModuleLogger("llm", "factory")

	kinds, err := ParsePriority(cfg.Priority)
	if err != nil {
		return nil, err
	}

	providers := make([]domainRAG.Provider, 0, len(kinds))
	for _, kind := range kinds {
		p, err := NewProvider(kind, cfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	logger.Info("LLM providers registered", "priority", kinds)
	return providers, nil
}

// ParsePriority 解析优先级列表，去重并补齐未列出的提供方
func ParsePriority(names []string) ([]domainRAG.ProviderKind, error) {
	seen := make(map[domainRAG.ProviderKind]bool)
	kinds := make([]domainRAG.ProviderKind, 0, len(domainRAG.AllProviderKinds))
	for _, name := range names {
		kind, err := domainRAG.ParseProviderKind(name)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	for _, kind := range domainRAG.AllProviderKinds {
		if !seen[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}
