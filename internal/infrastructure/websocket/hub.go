// Package websocket 按租户分组推送查询流水线事件
package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ragcore/backend/internal/domain/events"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxReadBytes = 4096
)

// ErrHubStopped Hub 已停止
var ErrHubStopped = errors.New("websocket hub stopped")

// Hub WebSocket 连接管理中心
// 所有连接按租户分组，事件只推送给所属租户
type Hub struct {
	tenants    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	stopCh     chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// Client 单个订阅连接
type Client struct {
	TenantID string
	Send     chan []byte
	conn     *websocket.Conn
}

// Message 待广播的消息
type Message struct {
	TenantID string
	Data     []byte
}

// Envelope 推送给客户端的事件格式
type Envelope struct {
	Type      events.EventType `json:"type"`
	TenantID  string           `json:"tenantId"`
	Data      any              `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewHub 创建 Hub
func NewHub(cfg *config.WebSocketConfig) *Hub {
	readSize, writeSize := 1024, 1024
	if cfg != nil {
		if cfg.ReadBufferSize > 0 {
			readSize = cfg.ReadBufferSize
		}
		if cfg.WriteBufferSize > 0 {
			writeSize = cfg.WriteBufferSize
		}
	}
	return &Hub{
		tenants:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, sendBuffer),
		stopCh:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readSize,
			WriteBufferSize: writeSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.NewModuleLogger("websocket", "hub"),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case <-h.stopCh:
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.tenants[c.TenantID] == nil {
				h.tenants[c.TenantID] = make(map[*Client]bool)
			}
			h.tenants[c.TenantID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.tenants[msg.TenantID] {
				select {
				case c.Send <- msg.Data:
				default:
					h.logger.Warn("Send buffer full, dropping client", "tenant_id", msg.TenantID)
					h.remove(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove 调用方持有写锁
func (h *Hub) remove(c *Client) {
	group, ok := h.tenants[c.TenantID]
	if !ok || !group[c] {
		return
	}
	delete(group, c)
	close(c.Send)
	if len(group) == 0 {
		delete(h.tenants, c.TenantID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, group := range h.tenants {
		for c := range group {
			close(c.Send)
		}
	}
	h.tenants = make(map[string]map[*Client]bool)
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Stop 停止 Hub 并关闭所有连接的发送通道
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// stopped 是否已调用 Stop
func (h *Hub) stopped() bool {
	select {
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

// Register 注册连接
func (h *Hub) Register(c *Client) error {
	if h.stopped() {
		return ErrHubStopped
	}
	select {
	case h.register <- c:
		return nil
	case <-h.stopCh:
		return ErrHubStopped
	}
}

// Unregister 注销连接
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopCh:
	}
}

// BroadcastToTenant 向指定租户广播消息
func (h *Hub) BroadcastToTenant(tenantID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if h.stopped() {
		return ErrHubStopped
	}
	select {
	case h.broadcast <- &Message{TenantID: tenantID, Data: payload}:
		return nil
	case <-h.stopCh:
		return ErrHubStopped
	}
}

// ClientCount 租户当前连接数
func (h *Hub) ClientCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}

// HandleEvent 实现 events.Handler，只转发带租户的事件
func (h *Hub) HandleEvent(event events.Event) error {
	te, ok := event.(events.TenantEvent)
	if !ok {
		return nil
	}
	if h.ClientCount(te.Tenant()) == 0 {
		return nil
	}
	return h.BroadcastToTenant(te.Tenant(), &Envelope{
		Type:      event.Type(),
		TenantID:  te.Tenant(),
		Data:      event,
		Timestamp: event.Timestamp(),
	})
}

// SubscribedEvents Hub 订阅的事件类型
func SubscribedEvents() []events.EventType {
	return []events.EventType{
		events.QueryCompleted,
		events.CacheInvalidated,
		events.ConversationDeleted,
	}
}

// Upgrade 升级 HTTP 连接
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

// ServeTenant 升级连接并订阅租户事件，连接断开后自动注销
func (h *Hub) ServeTenant(w http.ResponseWriter, r *http.Request, tenantID string) error {
	conn, err := h.Upgrade(w, r)
	if err != nil {
		return err
	}

	c := &Client{
		TenantID: tenantID,
		Send:     make(chan []byte, sendBuffer),
		conn:     conn,
	}
	if err := h.Register(c); err != nil {
		_ = conn.Close()
		return err
	}

	h.logger.Info("Event subscriber connected", "tenant_id", tenantID)

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// readPump 只处理控制帧，客户端消息被丢弃
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Connection read error", "tenant_id", c.TenantID, "error", err)
			}
			return
		}
	}
}

// writePump 发送通道关闭后写入关闭帧
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("Failed to write message", "tenant_id", c.TenantID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
