package config

import "github.com/google/wire"

// ProviderSet 配置 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideConfig,
	NewDatabaseConfig,
	NewServerConfig,
	NewCacheConfig,
	NewSearchConfig,
	NewLLMConfig,
	NewPipelineConfig,
	NewConversationConfig,
	NewDiscoveryConfig,
	NewWebSocketConfig,
)
