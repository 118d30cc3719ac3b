package llm

import "github.com/google/wire"

// ProviderSet LLM 提供方 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideProviders,
)
