package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lobby_connections",
		Help: "Current number of active client connections",
	})
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lobby_active_rooms",
		Help: "Current number of active rooms",
	})
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lobby_actions_total",
		Help: "Total number of protocol actions processed",
	}, []string{"action", "status"})
	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lobby_broadcasts_total",
		Help: "Total number of server-pushed broadcast messages",
	}, []string{"kind"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(Connections, ActiveRooms, ActionsTotal, BroadcastsTotal, HttpRequestsTotal)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		HttpRequestsTotal.With(prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}).Inc()
	}
}
