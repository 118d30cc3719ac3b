package rag

import "time"

// Turn 一轮问答
type Turn struct {
	Query          string    `json:"query"`
	Response       string    `json:"response"`
	DocumentIDs    []string  `json:"documentIds,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationState 多轮对话状态
// 查找键始终包含 TenantID，不跨租户共享
type ConversationState struct {
	ConversationID string          `json:"conversationId"`
	TenantID       string          `json:"tenantId"`
	Turns          []Turn          `json:"turns"`
	DocumentIDs    map[string]bool `json:"documentIds"`
	// TotalTurns 历史累计轮数，Turns 裁剪后不减少
	TotalTurns    int       `json:"totalTurns"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// NewConversationState 创建对话
func NewConversationState(tenantID, conversationID string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		TenantID:       tenantID,
		Turns:          []Turn{},
		DocumentIDs:    make(map[string]bool),
		CreatedAt:      now,
		LastUpdatedAt:  now,
	}
}

// AppendTurn 追加一轮并按 maxHistory 裁剪最早的轮次
func (c *ConversationState) AppendTurn(turn Turn, maxHistory int) {
	c.Turns = append(c.Turns, turn)
	if maxHistory > 0 && len(c.Turns) > maxHistory {
		c.Turns = append([]Turn(nil), c.Turns[len(c.Turns)-maxHistory:]...)
	}
	if c.DocumentIDs == nil {
		c.DocumentIDs = make(map[string]bool)
	}
	for _, id := range turn.DocumentIDs {
		c.DocumentIDs[id] = true
	}
	c.TotalTurns++
	c.LastUpdatedAt = turn.Timestamp
}

// RecentTurns 返回最近 n 轮
func (c *ConversationState) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.Turns) <= n {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-n:]
}

// Expired 是否超过空闲 TTL
func (c *ConversationState) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(c.LastUpdatedAt) > ttl
}

// ConversationSummary 对话摘要
type ConversationSummary struct {
	ConversationID      string    `json:"conversationId"`
	TenantID            string    `json:"tenantId"`
	TurnCount           int       `json:"turnCount"`
	FirstQuery          string    `json:"firstQuery"`
	LastQuery           string    `json:"lastQuery"`
	ReferencedDocuments int       `json:"referencedDocuments"`
	CreatedAt           time.Time `json:"createdAt"`
	LastUpdatedAt       time.Time `json:"lastUpdatedAt"`
}

// ConversationStats 对话统计
type ConversationStats struct {
	ConversationID            string    `json:"conversationId"`
	TotalExchanges            int       `json:"totalExchanges"`
	TotalQueries              int       `json:"totalQueries"`
	UniqueDocumentsReferenced int       `json:"uniqueDocumentsReferenced"`
	FirstTurnAt               time.Time `json:"firstTurnAt"`
	LastTurnAt                time.Time `json:"lastTurnAt"`
	AvgResponseTimeMs         float64   `json:"avgResponseTimeMs"`
}

// Exchange 相似历史问答
type Exchange struct {
	Turn       Turn    `json:"turn"`
	Similarity float64 `json:"similarity"`
}
