package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub 管理全部在线连接并负责投递。对单个连接的发送永不阻塞：
// 发送缓冲打满的连接被视为失联，当场剔除，不影响其余投递。
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		delete(h.clients, connID)
		close(c.send)
	}
}

// Count 当前连接数。
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// SendTo 向单个连接投递一条消息。
func (h *Hub) SendTo(connID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound message")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, b)
	}
}

// SendToMany 向一组连接投递同一条消息，逐个独立，互不拖累。
func (h *Hub) SendToMany(connIDs []string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound message")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			h.deliver(c, b)
		}
	}
}

// BroadcastAll 向全部在线连接投递。
func (h *Hub) BroadcastAll(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal outbound message")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.deliver(c, b)
	}
}

// sendRaw 投递已编码好的帧。
func (h *Hub) sendRaw(connID string, b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		h.deliver(c, b)
	}
}

// deliver 非阻塞投递，调用方持有 h.mu。
func (h *Hub) deliver(c *Client, b []byte) {
	select {
	case c.send <- b:
	default:
		delete(h.clients, c.id)
		close(c.send)
		log.Warn().Str("conn_id", c.id).Msg("send buffer full, dropping client")
	}
}
