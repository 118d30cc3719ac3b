package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

const (
	// similarExchangeThreshold 相似问答的最低 Jaccard 相似度
	similarExchangeThreshold = 0.3
	// contextResponsePreview 改写查询时每轮回答保留的字符数
	contextResponsePreview = 200
)

// ConversationManager 多轮对话管理
// 所有操作都以 (tenant, conversationId) 为键，其他租户的对话视为不存在
type ConversationManager struct {
	store         domainRAG.ConversationStore
	maxHistory    int
	contextWindow int
	ttl           time.Duration
	contextualize bool
	locks         *keyedMutex
	now           func() time.Time
	logger        *slog.Logger
}

// NewConversationManager 创建对话管理器
func NewConversationManager(store domainRAG.ConversationStore, cfg *config.ConversationConfig) *ConversationManager {
	return &ConversationManager{
		store:         store,
		maxHistory:    cfg.MaxHistory,
		contextWindow: cfg.ContextWindow,
		ttl:           cfg.TTL,
		contextualize: cfg.Contextualize,
		locks:         newKeyedMutex(),
		now:           time.Now,
		logger:        log.NewModuleLogger("rag", "conversation"),
	}
}

func conversationKey(tenantID, conversationID string) string {
	return tenantID + "\x00" + conversationID
}

// load 读取对话，过期对话会被删除并视为不存在
func (m *ConversationManager) load(ctx context.Context, tenantID, conversationID string) (*domainRAG.ConversationState, error) {
	state, err := m.store.Get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if state == nil || state.TenantID != tenantID {
		return nil, nil
	}
	if state.Expired(m.now(), m.ttl) {
		m.logger.DebugContext(ctx, "Conversation expired", "conversation_id", conversationID)
		if _, err := m.store.Delete(ctx, tenantID, conversationID); err != nil {
			m.logger.WarnContext(ctx, "Failed to delete expired conversation", "error", err)
		}
		return nil, nil
	}
	return state, nil
}

// get 读取对话，不存在时返回 NotFound
func (m *ConversationManager) get(ctx context.Context, tenantID, conversationID string) (*domainRAG.ConversationState, error) {
	state, err := m.load(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domainRAG.NewNotFoundError("conversation", conversationID)
	}
	return state, nil
}

// AppendTurn 追加一轮问答，首次使用时创建对话
// 同一对话的追加按提交顺序串行执行
func (m *ConversationManager) AppendTurn(
	ctx context.Context,
	tenantID, conversationID, query, response string,
	sources []domainRAG.ChunkMatch,
	responseTime time.Duration,
) error {
	if tenantID == "" || conversationID == "" {
		return domainRAG.NewValidationError("tenantId and conversationId are required")
	}

	unlock := m.locks.Lock(conversationKey(tenantID, conversationID))
	defer unlock()

	now := m.now()
	state, err := m.load(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if state == nil {
		state = domainRAG.NewConversationState(tenantID, conversationID, now)
	}

	docIDs := make([]string, 0, len(sources))
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if s.DocumentID != "" && !seen[s.DocumentID] {
			seen[s.DocumentID] = true
			docIDs = append(docIDs, s.DocumentID)
		}
	}

	state.AppendTurn(domainRAG.Turn{
		Query:          query,
		Response:       response,
		DocumentIDs:    docIDs,
		ResponseTimeMs: responseTime.Milliseconds(),
		Timestamp:      now,
	}, m.maxHistory)

	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	m.logger.DebugContext(ctx, "Conversation turn appended",
		"conversation_id", conversationID,
		"turns", len(state.Turns),
	)
	return nil
}

// GetSummary 对话摘要
func (m *ConversationManager) GetSummary(ctx context.Context, tenantID, conversationID string) (*domainRAG.ConversationSummary, error) {
	state, err := m.get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	summary := &domainRAG.ConversationSummary{
		ConversationID:      state.ConversationID,
		TenantID:            state.TenantID,
		TurnCount:           len(state.Turns),
		ReferencedDocuments: len(state.DocumentIDs),
		CreatedAt:           state.CreatedAt,
		LastUpdatedAt:       state.LastUpdatedAt,
	}
	if len(state.Turns) > 0 {
		summary.FirstQuery = state.Turns[0].Query
		summary.LastQuery = state.Turns[len(state.Turns)-1].Query
	}
	return summary, nil
}

// GetStats 对话统计
func (m *ConversationManager) GetStats(ctx context.Context, tenantID, conversationID string) (*domainRAG.ConversationStats, error) {
	state, err := m.get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	stats := &domainRAG.ConversationStats{
		ConversationID:            state.ConversationID,
		TotalExchanges:            len(state.Turns),
		TotalQueries:              state.TotalTurns,
		UniqueDocumentsReferenced: len(state.DocumentIDs),
	}
	if len(state.Turns) == 0 {
		return stats, nil
	}

	stats.FirstTurnAt = state.Turns[0].Timestamp
	stats.LastTurnAt = state.Turns[len(state.Turns)-1].Timestamp
	var total int64
	for _, t := range state.Turns {
		total += t.ResponseTimeMs
	}
	stats.AvgResponseTimeMs = float64(total) / float64(len(state.Turns))
	return stats, nil
}

// DeleteConversation 删除对话，返回是否存在
func (m *ConversationManager) DeleteConversation(ctx context.Context, tenantID, conversationID string) (bool, error) {
	unlock := m.locks.Lock(conversationKey(tenantID, conversationID))
	defer unlock()

	deleted, err := m.store.Delete(ctx, tenantID, conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	if deleted {
		m.logger.InfoContext(ctx, "Conversation deleted", "conversation_id", conversationID)
	}
	return deleted, nil
}

// ContextualizeQuery 结合最近几轮对话改写检索查询
// 无历史或读取失败时返回原查询
func (m *ConversationManager) ContextualizeQuery(ctx context.Context, tenantID, conversationID, query string) string {
	if !m.contextualize || conversationID == "" {
		return query
	}

	state, err := m.load(ctx, tenantID, conversationID)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to contextualize query, using original", "error", err)
		return query
	}
	if state == nil || len(state.Turns) == 0 {
		return query
	}

	var sb strings.Builder
	sb.WriteString("Given our recent conversation:\n")
	for _, turn := range state.RecentTurns(m.contextWindow) {
		sb.WriteString("User: " + turn.Query + "\n")
		sb.WriteString("Assistant: " + truncateText(turn.Response, contextResponsePreview) + "\n\n")
	}
	sb.WriteString("New question: " + query)
	return sb.String()
}

// FindSimilarExchanges 查找与查询相似的历史问答，按相似度降序
func (m *ConversationManager) FindSimilarExchanges(ctx context.Context, tenantID, conversationID, query string, limit int) ([]domainRAG.Exchange, error) {
	state, err := m.get(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	exchanges := []domainRAG.Exchange{}
	for _, turn := range state.Turns {
		similarity := jaccardSimilarity(query, turn.Query)
		if similarity > similarExchangeThreshold {
			exchanges = append(exchanges, domainRAG.Exchange{Turn: turn, Similarity: similarity})
		}
	}
	sort.SliceStable(exchanges, func(i, j int) bool {
		return exchanges[i].Similarity > exchanges[j].Similarity
	})
	if limit > 0 && len(exchanges) > limit {
		exchanges = exchanges[:limit]
	}
	return exchanges, nil
}

// jaccardSimilarity 词集合的 Jaccard 相似度
func jaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// truncateText 按字符截断并追加省略号
func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
