package search

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/embedding"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// ProvideSearchClient 按配置创建检索协作方（Wire Provider）
func ProvideSearchClient(cfg *config.SearchConfig) (domainRAG.SearchClient, func(), error) {
	logger := log.NewModuleLogger("search", "factory")
	noop := func() {}

	switch cfg.Backend {
	case "", config.SearchBackendHTTP:
		logger.Info("Using HTTP search service", "url", cfg.URL)
		return NewHTTPClient(cfg.URL, cfg.Timeout), noop, nil

	case config.SearchBackendQdrant:
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Embedding.Model)
		logger.Info("Using qdrant search",
			"host", cfg.Qdrant.Host,
			"port", cfg.Qdrant.Port,
			"collection", cfg.Qdrant.Collection,
		)
		return NewQdrantClient(embedder, client, cfg.Qdrant.Collection), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close qdrant client", "error", err)
			}
		}, nil

	default:
		return nil, noop, fmt.Errorf("unknown search backend %q", cfg.Backend)
	}
}
