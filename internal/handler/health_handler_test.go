package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/lurnify/backend-payment/internal/gateway"
)

func healthRouter(registry *gateway.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(nil, nil, registry)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	return router
}

func TestHealthAlwaysUp(t *testing.T) {
	router := healthRouter(nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("Expected status healthy, got %s", body.Status)
	}
}

func TestReadyReportsGateways(t *testing.T) {
	registry := gateway.NewRegistry()
	registry.Register(&namedAdapter{Adapter: gateway.NewMockAdapter(nil), name: "paystack"}, gateway.FeeSchedule{})
	registry.Register(&namedAdapter{Adapter: gateway.NewMockAdapter(nil), name: "stripe"}, gateway.FeeSchedule{})
	router := healthRouter(registry)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ready", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "ready" {
		t.Errorf("Expected status ready, got %s", body.Status)
	}
	if body.Components["gateways"] != "paystack,stripe" {
		t.Errorf("Expected gateways paystack,stripe, got %s", body.Components["gateways"])
	}
	if body.Components["database"] != "not configured" {
		t.Errorf("Expected database not configured, got %s", body.Components["database"])
	}
}

func TestReadyFailsWithoutGateways(t *testing.T) {
	router := healthRouter(gateway.NewRegistry())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ready", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	var body ReadyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "not ready" {
		t.Errorf("Expected status not ready, got %s", body.Status)
	}
	if body.Components["gateways"] != "none registered" {
		t.Errorf("Expected gateways none registered, got %s", body.Components["gateways"])
	}
}
