// Package hub 维护面板客户端连接并推送实时更新
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noisysource/house-dashboard/internal/config"
	"github.com/noisysource/house-dashboard/internal/metrics"
	"github.com/noisysource/house-dashboard/internal/model"
)

// Conn 客户端连接（*websocket.Conn 的最小子集）
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client 已注册的面板客户端
type Client struct {
	ID   string
	conn Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend 非阻塞投递；连接已关闭或缓冲区满时返回 false
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close 关闭发送通道与底层连接，幂等
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.conn.Close()
}

// SnapshotFunc 实时状态快照来源
type SnapshotFunc func() model.Snapshot

// Hub 广播中心
//
// 单个订阅者的投递失败只会剔除该订阅者，不影响其他客户端，
// 也不会阻塞摄入路径。
type Hub struct {
	snapshot SnapshotFunc
	cfg      config.HubConfig
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub 创建广播中心
func NewHub(snapshot SnapshotFunc, cfg config.HubConfig, logger *zap.Logger) *Hub {
	return &Hub{
		snapshot: snapshot,
		cfg:      cfg,
		logger:   logger,
		clients:  make(map[string]*Client),
	}
}

// Register 注册客户端并立即推送初始快照
//
// 新客户端在收到任何增量更新之前一定先收到 initial_data，
// 面板不会出现空白状态。
func (h *Hub) Register(conn Conn) *Client {
	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.cfg.MessageBufferSize),
	}

	initial := model.WebSocketMessage{
		Type: model.MessageTypeInitialData,
		Data: h.snapshot(),
	}
	if data, err := initial.ToJSON(); err == nil {
		// 发送缓冲区刚创建，投递必然成功，且先于一切广播
		client.trySend(data)
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	metrics.ActiveSubscribers.Inc()

	go h.writePump(client)

	h.logger.Debug("Client registered", zap.String("client_id", client.ID))
	return client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
	}
	h.mu.Unlock()

	if ok {
		metrics.ActiveSubscribers.Dec()
		client.close()
		h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
	}
}

// Broadcast 向所有客户端推送快照
//
// 对每个客户端独立投递：缓冲区满只丢弃该客户端的本条消息。
func (h *Hub) Broadcast(snapshot model.Snapshot) {
	message := model.WebSocketMessage{
		Type: model.MessageTypePowerUpdate,
		Data: snapshot,
	}
	data, err := message.ToJSON()
	if err != nil {
		h.logger.Error("Failed to serialize snapshot", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.trySend(data) {
			h.logger.Warn("Client buffer full, dropping update",
				zap.String("client_id", client.ID),
			)
		}
	}

	metrics.BroadcastsSent.Inc()
	metrics.TotalPower.Set(snapshot.TotalPower)
}

// ClientCount 当前客户端数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown 关闭所有客户端连接
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		metrics.ActiveSubscribers.Dec()
		client.close()
	}
}

// writePump 客户端写协程
//
// 写失败视为连接已断开，剔除该客户端。
func (h *Hub) writePump(client *Client) {
	for data := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			metrics.SubscribersPruned.Inc()
			h.logger.Info("Delivery failed, pruning client",
				zap.String("client_id", client.ID),
				zap.Error(err),
			)
			h.Unregister(client)
			return
		}
	}
}
