package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"bosun/pkg/logging"
	"bosun/pkg/monitoring"
)

func TestSetupServiceRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger()
	hc := monitoring.NewHealthChecker("svc", "test")
	mc := monitoring.NewMetricsCollector("svc_server_test", "test", "none")

	r := SetupServiceRouter(logger, "svc", hc, mc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected healthy service, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected metrics endpoint, got %d", w.Code)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	cfg := DefaultConfig("svc", "8080")
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	t.Setenv("SERVER_PORT", "9999")
	cfg = DefaultConfig("svc", "8080")
	if cfg.Port != "9999" {
		t.Fatalf("expected env port, got %s", cfg.Port)
	}
}
