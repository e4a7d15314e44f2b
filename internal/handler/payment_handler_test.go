package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/audit"
	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/dto"
	"github.com/lurnify/backend-payment/internal/gateway"
	"github.com/lurnify/backend-payment/internal/repository"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/response"
)

// namedAdapter lets the mock answer for a named gateway family
type namedAdapter struct {
	gateway.Adapter
	name string
}

func (n *namedAdapter) Name() string { return n.name }

type noopDispatcher struct{}

func (noopDispatcher) Notify(ctx context.Context, event *service.PaymentEvent) {}

type fixture struct {
	router  *gin.Engine
	service service.PaymentService
	repo    *repository.MemoryPaymentRepository
	adapter *gateway.MockAdapter
}

func setupFixture(t *testing.T, mockCfg *gateway.MockConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if mockCfg == nil {
		mockCfg = &gateway.MockConfig{SuccessRate: 1.0, DelayMs: 0, PendingPolls: 1000}
	}
	adapter := gateway.NewMockAdapter(mockCfg)

	registry := gateway.NewRegistry()
	registry.Register(&namedAdapter{Adapter: adapter, name: "paystack"}, gateway.FeeSchedule{
		Flat:    decimal.NewFromInt(100),
		Percent: decimal.NewFromFloat(1.5),
	})

	items := service.NewMemoryItemRegistry()
	items.Put(&service.Item{
		Type:     domain.ItemTypeCourse,
		ID:       "course-1",
		Title:    "Intro to Distributed Systems",
		Price:    decimal.NewFromInt(5000),
		Currency: "NGN",
		Active:   true,
	})

	repo := repository.NewMemoryPaymentRepository()
	logs := repository.NewMemoryPaymentLogRepository()
	entitlements := service.NewMemoryEntitlementStore()
	svc := service.NewPaymentService(repo, registry, items, entitlements, noopDispatcher{}, audit.NewRecorder(logs))
	resolver := service.NewAccessResolver(repo, items, entitlements, registry)

	paymentHandler := NewPaymentHandler(svc, resolver, nil)
	webhookHandler := NewWebhookHandler(svc, registry)

	router := gin.New()
	payments := router.Group("/api/v1/payments")
	{
		payments.POST("", paymentHandler.InitializePayment)
		payments.POST("/charge", paymentHandler.ChargeSavedMethod)
		payments.GET("/access", paymentHandler.CheckAccess)
		payments.GET("/user/:userId", paymentHandler.GetUserPayments)
		payments.GET("/:id", paymentHandler.GetPayment)
		payments.POST("/:id/verify", paymentHandler.VerifyPayment)
		payments.POST("/:id/refund", paymentHandler.RefundPayment)
		payments.GET("/:id/logs", paymentHandler.GetPaymentLogs)
	}
	router.POST("/webhooks/:provider", webhookHandler.Handle)

	return &fixture{router: router, service: svc, repo: repo, adapter: adapter}
}

func doJSON(t *testing.T, f *fixture, method, path string, body any, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func initializePayment(t *testing.T, f *fixture, userID string) *dto.InitializePaymentResponse {
	t.Helper()
	w := doJSON(t, f, "POST", "/api/v1/payments", dto.InitializePaymentRequest{
		ItemType: domain.ItemTypeCourse,
		ItemID:   "course-1",
		Method:   domain.PaymentMethodPaystack,
		Email:    "user@example.com",
	}, userID)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var envelope struct {
		Success bool                           `json:"success"`
		Data    *dto.InitializePaymentResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return envelope.Data
}

func TestInitializePayment(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	if result.Payment.Status != domain.PaymentStatusPending {
		t.Errorf("Expected status pending, got %s", result.Payment.Status)
	}
	if result.AuthorizationURL == "" {
		t.Error("Expected authorization URL in response")
	}
	if result.Existing {
		t.Error("Expected a fresh payment, got existing")
	}
}

func TestInitializePaymentNoUserID(t *testing.T) {
	f := setupFixture(t, nil)
	w := doJSON(t, f, "POST", "/api/v1/payments", dto.InitializePaymentRequest{
		ItemType: domain.ItemTypeCourse,
		ItemID:   "course-1",
		Method:   domain.PaymentMethodPaystack,
		Email:    "user@example.com",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestInitializePaymentUnknownItem(t *testing.T) {
	f := setupFixture(t, nil)
	w := doJSON(t, f, "POST", "/api/v1/payments", dto.InitializePaymentRequest{
		ItemType: domain.ItemTypeCourse,
		ItemID:   "missing-course",
		Method:   domain.PaymentMethodPaystack,
		Email:    "user@example.com",
	}, "user-1")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d: %s", http.StatusNotFound, w.Code, w.Body.String())
	}
}

func TestInitializePaymentResumesExisting(t *testing.T) {
	f := setupFixture(t, nil)
	first := initializePayment(t, f, "user-1")

	w := doJSON(t, f, "POST", "/api/v1/payments", dto.InitializePaymentRequest{
		ItemType: domain.ItemTypeCourse,
		ItemID:   "course-1",
		Method:   domain.PaymentMethodPaystack,
		Email:    "user@example.com",
	}, "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d for resumed payment, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var envelope struct {
		Data *dto.InitializePaymentResponse `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if !envelope.Data.Existing {
		t.Error("Expected existing=true on the resumed payment")
	}
	if envelope.Data.Payment.ID != first.Payment.ID {
		t.Errorf("Expected the same payment ID %s, got %s", first.Payment.ID, envelope.Data.Payment.ID)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	f := setupFixture(t, nil)
	w := doJSON(t, f, "GET", "/api/v1/payments/does-not-exist", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestVerifyPaymentCompletes(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")
	f.adapter.Resolve(result.Payment.ID, gateway.VerificationSuccess, "")

	w := doJSON(t, f, "POST", "/api/v1/payments/"+result.Payment.ID+"/verify", nil, "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var envelope struct {
		Data *dto.PaymentResponse `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Data.Status != domain.PaymentStatusCompleted {
		t.Errorf("Expected status completed, got %s", envelope.Data.Status)
	}
}

func TestRefundPendingPaymentRejected(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	w := doJSON(t, f, "POST", "/api/v1/payments/"+result.Payment.ID+"/refund", nil, "user-1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for pending refund, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestRefundCompletedPayment(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")
	f.adapter.Resolve(result.Payment.ID, gateway.VerificationSuccess, "")
	if _, err := f.service.Verify(context.Background(), result.Payment.ID, nil); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	w := doJSON(t, f, "POST", "/api/v1/payments/"+result.Payment.ID+"/refund", dto.RefundPaymentRequest{
		Reason: "duplicate purchase",
	}, "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var envelope struct {
		Data *dto.PaymentResponse `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Data.Status != domain.PaymentStatusRefunded {
		t.Errorf("Expected status refunded, got %s", envelope.Data.Status)
	}
}

func TestGetUserPayments(t *testing.T) {
	f := setupFixture(t, nil)
	initializePayment(t, f, "user-1")

	w := doJSON(t, f, "GET", "/api/v1/payments/user/user-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var envelope struct {
		Data *dto.PaymentListResponse `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Data.Total != 1 {
		t.Errorf("Expected 1 payment, got %d", envelope.Data.Total)
	}
}

func TestCheckAccess(t *testing.T) {
	f := setupFixture(t, nil)

	w := doJSON(t, f, "GET", "/api/v1/payments/access?item_type=course&item_id=course-1&method=paystack", nil, "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var envelope struct {
		Data *service.AccessStatus `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Data.HasAccess {
		t.Error("Expected no access before payment")
	}
	if !envelope.Data.PaymentRequired {
		t.Error("Expected payment_required=true")
	}
	want := decimal.NewFromInt(5175)
	if !envelope.Data.PriceWithFees.Equal(want) {
		t.Errorf("Expected price with fees %s, got %s", want, envelope.Data.PriceWithFees)
	}
}

func TestCheckAccessMissingParams(t *testing.T) {
	f := setupFixture(t, nil)
	w := doJSON(t, f, "GET", "/api/v1/payments/access", nil, "user-1")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetPaymentLogs(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	w := doJSON(t, f, "GET", "/api/v1/payments/"+result.Payment.ID+"/logs", nil, "user-1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var envelope struct {
		Data *dto.PaymentLogListResponse `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &envelope)
	if envelope.Data.Total == 0 {
		t.Error("Expected at least one audit entry after initialization")
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	f := setupFixture(t, nil)
	w := doJSON(t, f, "GET", "/api/v1/payments/does-not-exist", nil, "")

	var envelope response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode error envelope: %v", err)
	}
	if envelope.Success {
		t.Error("Expected success=false on error response")
	}
	if envelope.Error == nil || envelope.Error.Code == "" {
		t.Error("Expected a populated error code")
	}
}
