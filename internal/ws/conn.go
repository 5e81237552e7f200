package ws

import (
	"net/http"
	"time"

	"github.com/WIZARD3022/Crown-Fight/internal/auth"
	"github.com/WIZARD3022/Crown-Fight/internal/config"
	"github.com/WIZARD3022/Crown-Fight/internal/metrics"
	"github.com/WIZARD3022/Crown-Fight/internal/session"
	"github.com/WIZARD3022/Crown-Fight/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Dispatcher 由消息路由实现，接收入站帧与断连事件。
type Dispatcher interface {
	Dispatch(connID string, data []byte)
	Disconnected(connID string)
}

// Client 一条 WebSocket 连接，读写各占一个 goroutine。
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// rateLimitedFrame 读循环内限流时直接回写的固定错误帧。
var rateLimitedFrame = []byte(`{"action":"error","status":"error","message":"Too many requests"}`)

// Gateway 接入层：升级连接、登记会话、驱动读写循环。
type Gateway struct {
	hub        *Hub
	registry   *session.Registry
	store      store.Store
	cfg        config.Config
	dispatcher Dispatcher
}

func NewGateway(hub *Hub, registry *session.Registry, st store.Store, cfg config.Config, d Dispatcher) *Gateway {
	return &Gateway{hub: hub, registry: registry, store: st, cfg: cfg, dispatcher: d}
}

// Serve 处理 /ws 升级请求。携带有效会话令牌的连接直接绑定用户名，
// 客户端重连后无需再发一次 sign_in。
func (g *Gateway) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		connID := uuid.NewString()
		g.registry.Register(connID)

		if token := c.Query("token"); token != "" {
			if claims, err := auth.ParseSessionToken(token, g.cfg.JWTSecret); err == nil {
				if user, err := g.store.FindUserByLogin(c.Request.Context(), claims.Username); err == nil && user.Username == claims.Username {
					g.registry.Authenticate(connID, user.Username)
					log.Info().Str("conn_id", connID).Str("username", user.Username).Msg("session resumed from token")
				}
			}
		}

		client := &Client{id: connID, conn: conn, send: make(chan []byte, 256)}
		g.hub.Register(client)
		metrics.Connections.Inc()
		log.Info().Str("conn_id", connID).Str("remote", conn.RemoteAddr().String()).Msg("client connected")

		go client.writePump()
		g.readPump(client)
	}
}

func (g *Gateway) readPump(c *Client) {
	defer func() {
		g.hub.Unregister(c.id)
		metrics.Connections.Dec()
		g.dispatcher.Disconnected(c.id)
		_ = c.conn.Close()
		log.Info().Str("conn_id", c.id).Msg("client disconnected")
	}()
	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	limiter := rate.NewLimiter(rate.Every(time.Second/20), 40)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if !limiter.Allow() {
			g.hub.sendRaw(c.id, rateLimitedFrame)
			continue
		}
		g.dispatcher.Dispatch(c.id, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
