package cache

import "github.com/google/wire"

// ProviderSet 响应缓存后端 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideCacheStore,
)
