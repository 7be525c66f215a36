package sse

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// 通知级别
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice 前端的非阻塞提示
type Notice struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
	OrderID int64  `json:"order_id,omitempty"`
	Target  string `json:"target,omitempty"`
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates a new SSE Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Info("SSE client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)),
	)
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Info("SSE client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.deliver(client, event)
	}
}

// SendToUser 给特定用户发送事件（而非广播），返回送达的连接数
func (h *Hub) SendToUser(userID string, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, client := range h.clients {
		if client.UserID == userID && h.deliver(client, event) {
			n++
		}
	}
	return n
}

func (h *Hub) deliver(client *Client, event Event) bool {
	select {
	case client.Events <- event:
		return true
	default:
		h.logger.Warn("SSE client buffer full, event dropped",
			zap.String("client_id", client.ID),
			zap.String("event", event.EventType),
		)
		return false
	}
}

// Notify 发送提示；用户不在线时记日志，不静默丢弃
func (h *Hub) Notify(userID string, n Notice) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("marshal notice failed", zap.Error(err))
		return
	}
	delivered := h.SendToUser(userID, Event{EventType: "notice", Data: string(data)})
	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("level", n.Level),
		zap.String("title", n.Title),
		zap.String("message", n.Message),
		zap.Int("delivered", delivered),
	}
	if n.Level == LevelError {
		h.logger.Warn("notice", fields...)
		return
	}
	h.logger.Debug("notice", fields...)
}

// PublishOrderChanged 订单变更广播，前端据此刷新表格
func (h *Hub) PublishOrderChanged(orderIDs []int64, action string) {
	data, _ := json.Marshal(map[string]interface{}{
		"order_ids": orderIDs,
		"action":    action,
	})
	h.Broadcast(Event{EventType: "sales_order_update", Data: string(data)})
}
