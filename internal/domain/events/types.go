// Package events 定义领域事件类型和接口
// 用于系统内部的事件驱动通信
package events

import "time"

// EventType 事件类型标识
type EventType string

// 查询流水线相关事件类型
const (
	// QueryCompleted 查询处理完成（任意终态）
	QueryCompleted EventType = "query.completed"
	// CacheInvalidated 租户缓存被清空
	CacheInvalidated EventType = "cache.invalidated"
)

// 对话相关事件类型
const (
	// ConversationDeleted 对话被删除
	ConversationDeleted EventType = "conversation.deleted"
)

// 配置相关事件类型
const (
	// ConfigReloaded 配置文件重新加载
	ConfigReloaded EventType = "config.reloaded"
)

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}

// TenantEvent 归属于某个租户的事件
type TenantEvent interface {
	Event
	// Tenant 返回租户 ID
	Tenant() string
}

// Handler 事件处理器
// 返回的 error 只记录日志，不重试
type Handler interface {
	HandleEvent(event Event) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(event Event) error

// HandleEvent 实现 Handler 接口
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

// EventBus 进程内事件总线
type EventBus interface {
	// Subscribe 订阅事件，返回取消订阅函数
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
	// SubscribeMultiple 订阅多个事件类型
	SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func())
	// Publish 异步分发事件
	Publish(event Event)
	// Close 停止接收新事件并等待已分发的事件处理完成
	Close()
}
