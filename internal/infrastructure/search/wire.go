package search

import "github.com/google/wire"

// ProviderSet 检索协作方 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideSearchClient,
)
