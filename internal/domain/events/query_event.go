package events

import "time"

// QueryEvent 查询完成事件
// 只携带统计信息，不包含查询原文和回答
type QueryEvent struct {
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId,omitempty"`
	Status         string    `json:"status"`
	CacheHit       bool      `json:"cacheHit"`
	Streaming      bool      `json:"streaming"`
	Provider       string    `json:"provider,omitempty"`
	ChunksUsed     int       `json:"chunksUsed"`
	TotalTimeMs    int64     `json:"totalTimeMs"`
	EventTime      time.Time `json:"eventTime"`
}

// Type 实现 Event 接口
func (e *QueryEvent) Type() EventType {
	return QueryCompleted
}

// Timestamp 实现 Event 接口
func (e *QueryEvent) Timestamp() time.Time {
	return e.EventTime
}

// Tenant 实现 TenantEvent 接口
func (e *QueryEvent) Tenant() string {
	return e.TenantID
}

// TenantChangeEvent 租户数据变更事件（对话删除、缓存清空）
type TenantChangeEvent struct {
	EventType EventType `json:"type"`
	TenantID  string    `json:"tenantId"`
	// ResourceID 对话 ID；缓存清空时为空
	ResourceID string    `json:"resourceId,omitempty"`
	Affected   int       `json:"affected"`
	EventTime  time.Time `json:"eventTime"`
}

// Type 实现 Event 接口
func (e *TenantChangeEvent) Type() EventType {
	return e.EventType
}

// Timestamp 实现 Event 接口
func (e *TenantChangeEvent) Timestamp() time.Time {
	return e.EventTime
}

// Tenant 实现 TenantEvent 接口
func (e *TenantChangeEvent) Tenant() string {
	return e.TenantID
}

// ConfigEvent 配置重新加载事件
type ConfigEvent struct {
	Path string
	// ProviderPriority 重新加载后的提供方优先级
	ProviderPriority []string
	EventTime        time.Time
}

// Type 实现 Event 接口
func (e *ConfigEvent) Type() EventType {
	return ConfigReloaded
}

// Timestamp 实现 Event 接口
func (e *ConfigEvent) Timestamp() time.Time {
	return e.EventTime
}
