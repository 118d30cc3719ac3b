package rag

import "github.com/google/wire"

// ProviderSet RAG 应用层 ProviderSet
var ProviderSet = wire.NewSet(
	NewQueryOptimizer,
	NewRetriever,
	NewContextAssembler,
	NewWorkerPool,
	NewGenerationService,
	NewResponseCache,
	NewConversationManager,
	NewStatsAggregator,
	NewOrchestrator,
)
