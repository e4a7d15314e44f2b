package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/lurnify/backend-payment/internal/domain"
)

func TestRegistryForMethod(t *testing.T) {
	registry := NewRegistry()
	mock := NewMockAdapter(&MockConfig{DelayMs: 0})
	registry.adapters["paystack"] = mock
	registry.fees["paystack"] = FeeSchedule{Percent: decimal.NewFromFloat(1.5)}

	tests := []struct {
		method  domain.PaymentMethod
		wantErr error
	}{
		{domain.PaymentMethodPaystack, nil},
		{domain.PaymentMethodPaystackUSSD, nil},
		{domain.PaymentMethodPaystackMobileMoney, nil},
		{domain.PaymentMethodStripe, domain.ErrGatewayNotConfigured},
		{domain.PaymentMethod("cash"), domain.ErrUnsupportedGateway},
	}

	for _, tt := range tests {
		_, err := registry.ForMethod(tt.method)
		if err != tt.wantErr {
			t.Errorf("ForMethod(%s): expected %v, got %v", tt.method, tt.wantErr, err)
		}
	}
}

func TestFeeScheduleApply(t *testing.T) {
	fees := FeeSchedule{
		Flat:    decimal.NewFromInt(100),
		Percent: decimal.NewFromFloat(1.5),
	}

	total := fees.Apply(decimal.NewFromInt(10000))
	expected := decimal.NewFromInt(10250) // 10000 + 150 + 100
	if !total.Equal(expected) {
		t.Errorf("Expected total %s, got %s", expected, total)
	}
}

func TestClassifyDecline(t *testing.T) {
	tests := []struct {
		providerCode string
		wantKind     domain.ErrorKind
		wantCode     string
	}{
		{"insufficient_funds", domain.ErrorKindCardDecline, "insufficient_funds"},
		{"do_not_honor", domain.ErrorKindCardDecline, "card_declined"},
		{"card_expired", domain.ErrorKindCardDecline, "expired_card"},
		{"incorrect_cvc", domain.ErrorKindCardDecline, "invalid_cvc"},
		{"something_else", domain.ErrorKindProcessing, "CHARGE_FAILED"},
	}

	for _, tt := range tests {
		pe := ClassifyDecline(tt.providerCode, "declined")
		if pe.Kind != tt.wantKind {
			t.Errorf("ClassifyDecline(%s): expected kind %s, got %s", tt.providerCode, tt.wantKind, pe.Kind)
		}
		if pe.Code != tt.wantCode {
			t.Errorf("ClassifyDecline(%s): expected code %s, got %s", tt.providerCode, tt.wantCode, pe.Code)
		}
	}
}

func TestPaystackVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/pay-1" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_abc" {
			t.Errorf("Unexpected authorization header: %s", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"id": 12345,
				"reference": "pay-1",
				"status": "success",
				"amount": 500000,
				"currency": "NGN"
			}
		}`))
	}))
	defer server.Close()

	adapter, err := NewPaystackAdapter(&Config{SecretKey: "sk_test_abc", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewPaystackAdapter failed: %v", err)
	}

	resp, err := adapter.Verify(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationSuccess {
		t.Errorf("Expected status %s, got %s", VerificationSuccess, resp.Status)
	}
	if resp.TransactionID != "12345" {
		t.Errorf("Expected transaction ID 12345, got %s", resp.TransactionID)
	}
	if !resp.Amount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Expected amount 5000, got %s", resp.Amount)
	}
}

func TestPaystackVerifyFailedMapsDecline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"id": 99,
				"reference": "pay-2",
				"status": "failed",
				"gateway_response": "insufficient_funds",
				"amount": 100000,
				"currency": "NGN"
			}
		}`))
	}))
	defer server.Close()

	adapter, _ := NewPaystackAdapter(&Config{SecretKey: "sk_test_abc", BaseURL: server.URL})
	resp, err := adapter.Verify(context.Background(), "pay-2")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationFailed {
		t.Errorf("Expected status %s, got %s", VerificationFailed, resp.Status)
	}
	if resp.DeclineCode != "insufficient_funds" {
		t.Errorf("Expected decline code insufficient_funds, got %s", resp.DeclineCode)
	}
}

func TestPaystackAbandonedIsPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": true, "message": "ok", "data": {"id": 7, "status": "abandoned", "amount": 1000, "currency": "NGN"}}`))
	}))
	defer server.Close()

	adapter, _ := NewPaystackAdapter(&Config{SecretKey: "sk_test_abc", BaseURL: server.URL})
	resp, err := adapter.Verify(context.Background(), "pay-3")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationPending {
		t.Errorf("Expected status %s, got %s", VerificationPending, resp.Status)
	}
}

func TestPaystackAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter, _ := NewPaystackAdapter(&Config{SecretKey: "sk_bad", BaseURL: server.URL})
	_, err := adapter.Verify(context.Background(), "pay-1")
	if !domain.IsGatewayError(err) {
		t.Errorf("Expected gateway error, got %v", err)
	}
}

func TestPaystackWebhookSignature(t *testing.T) {
	adapter, _ := NewPaystackAdapter(&Config{SecretKey: "sk_test_abc"})
	payload := []byte(`{"event":"charge.success"}`)

	mac := hmac.New(sha512.New, []byte("sk_test_abc"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	if err := adapter.VerifyWebhookSignature(payload, valid); err != nil {
		t.Errorf("Expected valid signature to be accepted, got %v", err)
	}
	if err := adapter.VerifyWebhookSignature(payload, "deadbeef"); err == nil {
		t.Error("Expected signature mismatch error")
	}
}

func TestRazorpayVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/order_1/payments" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		user, pass, _ := r.BasicAuth()
		if user != "rzp_key" || pass != "rzp_secret" {
			t.Errorf("Unexpected basic auth: %s/%s", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"count": 2,
			"items": [
				{"id": "pay_old", "status": "failed", "amount": 50000, "currency": "INR", "error_reason": "card_declined"},
				{"id": "pay_new", "status": "captured", "amount": 50000, "currency": "INR"}
			]
		}`))
	}))
	defer server.Close()

	adapter, err := NewRazorpayAdapter(&Config{PublicKey: "rzp_key", SecretKey: "rzp_secret", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewRazorpayAdapter failed: %v", err)
	}

	resp, err := adapter.Verify(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationSuccess {
		t.Errorf("Expected status %s, got %s", VerificationSuccess, resp.Status)
	}
	if resp.TransactionID != "pay_new" {
		t.Errorf("Expected newest payment pay_new, got %s", resp.TransactionID)
	}
}

func TestRazorpayVerifyNoPaymentsIsPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 0, "items": []}`))
	}))
	defer server.Close()

	adapter, _ := NewRazorpayAdapter(&Config{PublicKey: "rzp_key", SecretKey: "rzp_secret", BaseURL: server.URL})
	resp, err := adapter.Verify(context.Background(), "order_2")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationPending {
		t.Errorf("Expected status %s, got %s", VerificationPending, resp.Status)
	}
}

func TestMockAdapterPendingThenResolves(t *testing.T) {
	adapter := NewMockAdapter(&MockConfig{
		SuccessRate:  1.0,
		DelayMs:      0,
		PendingPolls: 1,
	})

	ctx := context.Background()
	_, err := adapter.Initialize(ctx, &InitializeRequest{
		Reference: "pay-1",
		Email:     "user@example.com",
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	resp, err := adapter.Verify(ctx, "pay-1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationPending {
		t.Errorf("Expected first verify to be pending, got %s", resp.Status)
	}

	resp, err = adapter.Verify(ctx, "pay-1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationSuccess {
		t.Errorf("Expected second verify to succeed, got %s", resp.Status)
	}
}

func TestStripeErrorWrapping(t *testing.T) {
	adapter := &StripeAdapter{}

	err := adapter.wrapError(&stripe.Error{HTTPStatusCode: http.StatusUnauthorized, Msg: "invalid api key"})
	if !domain.IsGatewayError(err) {
		t.Errorf("Expected gateway error for 401, got %v", err)
	}
	if pe, _ := domain.AsPaymentError(err); pe.Code != "GATEWAY_AUTH" {
		t.Errorf("Expected code GATEWAY_AUTH, got %s", pe.Code)
	}

	err = adapter.wrapError(&stripe.Error{Type: stripe.ErrorTypeCard, DeclineCode: "insufficient_funds", Msg: "declined"})
	if !domain.IsCardDecline(err) {
		t.Errorf("Expected card decline for card error, got %v", err)
	}
	if pe, _ := domain.AsPaymentError(err); pe.Code != "insufficient_funds" {
		t.Errorf("Expected code insufficient_funds, got %s", pe.Code)
	}

	err = adapter.wrapError(&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "no such intent"})
	if pe, ok := domain.AsPaymentError(err); !ok || pe.Kind != domain.ErrorKindProcessing {
		t.Errorf("Expected processing error for invalid request, got %v", err)
	}

	err = adapter.wrapError(errors.New("connection reset"))
	if !domain.IsGatewayError(err) {
		t.Errorf("Expected gateway error for transport failure, got %v", err)
	}
	if pe, _ := domain.AsPaymentError(err); pe.Code != "GATEWAY_CONNECTION" {
		t.Errorf("Expected code GATEWAY_CONNECTION, got %s", pe.Code)
	}
}

func TestMockAdapterResolveForces(t *testing.T) {
	adapter := NewMockAdapter(&MockConfig{SuccessRate: 1.0, DelayMs: 0, PendingPolls: 10})
	ctx := context.Background()
	_, _ = adapter.Initialize(ctx, &InitializeRequest{Reference: "pay-2", Amount: decimal.NewFromInt(100), Currency: "NGN"})

	adapter.Resolve("pay-2", VerificationFailed, "expired_card")

	resp, err := adapter.Verify(ctx, "pay-2")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if resp.Status != VerificationFailed {
		t.Errorf("Expected forced failure, got %s", resp.Status)
	}
	if resp.DeclineCode != "expired_card" {
		t.Errorf("Expected decline code expired_card, got %s", resp.DeclineCode)
	}
}
