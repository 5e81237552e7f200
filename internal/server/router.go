package server

import (
	"net/http"
	"time"

	"github.com/WIZARD3022/Crown-Fight/internal/config"
	"github.com/WIZARD3022/Crown-Fight/internal/metrics"
	"github.com/WIZARD3022/Crown-Fight/internal/mw"
	"github.com/WIZARD3022/Crown-Fight/internal/router"
	"github.com/WIZARD3022/Crown-Fight/internal/service"
	"github.com/WIZARD3022/Crown-Fight/internal/session"
	"github.com/WIZARD3022/Crown-Fight/internal/store"
	"github.com/WIZARD3022/Crown-Fight/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 组装全部运行时组件并初始化 Gin 路由。
// 业务流量全部走 /ws 一个端点，HTTP 侧只保留健康检查与指标。
func SetupRouter(cfg config.Config, st store.Store) *gin.Engine {
	hub := ws.NewHub()
	registry := session.NewRegistry()
	users := service.NewUserService(st)
	rooms := service.NewRoomService(st, cfg.RoomCapacity)
	dispatcher := router.New(users, rooms, registry, hub, cfg)
	gateway := ws.NewGateway(hub, registry, st, cfg, dispatcher)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 握手级限速，防止单 IP 刷连接。
	r.Use(mw.RateLimit(rate.Every(time.Second/10), 20))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Count()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", gateway.Serve())

	return r
}
