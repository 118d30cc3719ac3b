package infrastructure

import (
	"github.com/google/wire"
	"github.com/ragcore/backend/internal/infrastructure/cache"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/discovery"
	"github.com/ragcore/backend/internal/infrastructure/llm"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
	"github.com/ragcore/backend/internal/infrastructure/search"
	"github.com/ragcore/backend/internal/infrastructure/storage"
	"github.com/ragcore/backend/internal/infrastructure/tokenizer"
	"github.com/ragcore/backend/internal/infrastructure/watcher"
	"github.com/ragcore/backend/internal/infrastructure/websocket"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	storage.ProviderSet,
	cache.ProviderSet,
	search.ProviderSet,
	llm.ProviderSet,
	watcher.ProviderSet,
	websocket.ProviderSet,
	discovery.ProviderSet,
	metrics.NewRecorder,
	tokenizer.NewEstimator,
)
