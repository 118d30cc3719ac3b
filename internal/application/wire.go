package application

import (
	"github.com/google/wire"
	"github.com/ragcore/backend/internal/application/rag"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	rag.ProviderSet,
)
