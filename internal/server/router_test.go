package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WIZARD3022/Crown-Fight/internal/config"
	"github.com/WIZARD3022/Crown-Fight/internal/store"
	"github.com/gin-gonic/gin"
)

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Env: "dev", JWTSecret: "secret", SessionTokenTTLMinutes: 60, RoomCapacity: 4}
	return SetupRouter(cfg, store.NewMemoryStore())
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestEngine()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestWSRequiresUpgrade(t *testing.T) {
	engine := newTestEngine()

	// 普通 GET 不是合法的 WebSocket 握手
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		t.Errorf("plain GET /ws returned %d, want handshake failure", w.Code)
	}
}
