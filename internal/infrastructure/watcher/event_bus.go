package watcher

import (
	"log/slog"
	"sync"

	"github.com/ragcore/backend/internal/domain/events"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// subscription 单个订阅
type subscription struct {
	id      uint64
	handler events.Handler
}

// eventBusImpl 进程内事件总线
// 每个处理器在独立 goroutine 中执行，处理器 panic 不影响其他订阅者
type eventBusImpl struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]subscription
	nextID   uint64
	closed   bool
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewEventBus 创建事件总线
func NewEventBus() events.EventBus {
	return &eventBusImpl{
		handlers: make(map[events.EventType][]subscription),
		logger:   log.NewModuleLogger("watcher", "event_bus"),
	}
}

// Subscribe 订阅事件
func (b *eventBusImpl) Subscribe(eventType events.EventType, handler events.Handler) func() {
	return b.SubscribeMultiple([]events.EventType{eventType}, handler)
}

// SubscribeMultiple 订阅多个事件类型，返回的函数一次性取消全部订阅
func (b *eventBusImpl) SubscribeMultiple(eventTypes []events.EventType, handler events.Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], subscription{id: id, handler: handler})
	}
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed", "event_types", eventTypes, "subscription_id", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(id, eventTypes)
		})
	}
}

// unsubscribe 按订阅 ID 移除处理器
func (b *eventBusImpl) unsubscribe(id uint64, eventTypes []events.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, et := range eventTypes {
		subs := b.handlers[et]
		kept := subs[:0]
		for _, s := range subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.handlers, et)
			continue
		}
		b.handlers[et] = kept
	}
}

// Publish 异步分发事件，总线关闭后丢弃
func (b *eventBusImpl) Publish(event events.Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Warn("Event bus closed, dropping event", "event_type", event.Type())
		return
	}
	subs := append([]subscription(nil), b.handlers[event.Type()]...)
	// 在读锁内 Add，保证 Close 的 Wait 能看到所有已分发的处理器
	b.wg.Add(len(subs))
	b.mu.RUnlock()

	for _, s := range subs {
		go b.dispatch(s, event)
	}
}

// dispatch 执行单个处理器
func (b *eventBusImpl) dispatch(s subscription, event events.Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				"event_type", event.Type(),
				"subscription_id", s.id,
				"panic", r,
			)
		}
	}()

	if err := s.handler.HandleEvent(event); err != nil {
		b.logger.Warn("Event handler failed",
			"event_type", event.Type(),
			"subscription_id", s.id,
			"error", err,
		)
	}
}

// Close 停止接收新事件并等待处理中的事件完成
func (b *eventBusImpl) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}
