package storage

import "github.com/google/wire"

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,                 // 提供数据库连接
	NewConversationRepository, // 对话仓储
	ProvideConversationStore,  // 对话存储接口
	NewCacheRepository,        // 响应缓存仓储
)
