package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/gateway"
)

func postWebhook(f *fixture, provider, signature string, payload []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/webhooks/"+provider, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader(provider), signature)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWebhookUnknownProvider(t *testing.T) {
	f := setupFixture(t, nil)
	w := postWebhook(f, "squarepay", "sig", []byte(`{}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":12345,"reference":"%s"}}`, result.Payment.ID))
	w := postWebhook(f, "paystack", "", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for missing signature, got %d", http.StatusBadRequest, w.Code)
	}

	payment, err := f.repo.GetByID(context.Background(), result.Payment.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Errorf("Expected rejected webhook to leave payment pending, got %s", payment.Status)
	}
}

func TestWebhookCompletesPayment(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":12345,"reference":"%s","status":"success"}}`, result.Payment.ID))
	w := postWebhook(f, "paystack", "valid-signature", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	payment, err := f.repo.GetByID(context.Background(), result.Payment.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("Expected status completed, got %s", payment.Status)
	}
	if payment.TransactionID != "12345" {
		t.Errorf("Expected transaction ID 12345, got %q", payment.TransactionID)
	}
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":12345,"reference":"%s"}}`, result.Payment.ID))
	for i := 0; i < 2; i++ {
		w := postWebhook(f, "paystack", "valid-signature", payload)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d on delivery %d, got %d", http.StatusOK, i+1, w.Code)
		}
	}

	payment, err := f.repo.GetByID(context.Background(), result.Payment.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("Expected status completed after redelivery, got %s", payment.Status)
	}
}

func TestWebhookFailureMarksPaymentFailed(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	payload := []byte(fmt.Sprintf(`{"event":"charge.failed","data":{"id":12345,"reference":"%s","gateway_response":"insufficient_funds"}}`, result.Payment.ID))
	w := postWebhook(f, "paystack", "valid-signature", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	payment, err := f.repo.GetByID(context.Background(), result.Payment.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if payment.Status != domain.PaymentStatusFailed {
		t.Errorf("Expected status failed, got %s", payment.Status)
	}
	if payment.FailureReason != "insufficient_funds" {
		t.Errorf("Expected failure reason insufficient_funds, got %q", payment.FailureReason)
	}
}

func TestWebhookIgnoresUnhandledEvent(t *testing.T) {
	f := setupFixture(t, nil)
	result := initializePayment(t, f, "user-1")

	payload := []byte(`{"event":"subscription.create","data":{}}`)
	w := postWebhook(f, "paystack", "valid-signature", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	payment, _ := f.repo.GetByID(context.Background(), result.Payment.ID)
	if payment.Status != domain.PaymentStatusPending {
		t.Errorf("Expected unhandled event to leave payment pending, got %s", payment.Status)
	}
}

func TestParseStripeEvent(t *testing.T) {
	payload := []byte(`{
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_123", "last_payment_error": {"decline_code": "insufficient_funds", "code": "card_declined"}}}
	}`)
	result, err := parseStripeEvent(payload)
	if err != nil {
		t.Fatalf("parseStripeEvent failed: %v", err)
	}
	if !result.handled {
		t.Fatal("Expected payment_intent.payment_failed to be handled")
	}
	if result.reference != "pi_123" {
		t.Errorf("Expected reference pi_123, got %q", result.reference)
	}
	if result.status != gateway.VerificationFailed {
		t.Errorf("Expected failed status, got %s", result.status)
	}
	if result.declineCode != "insufficient_funds" {
		t.Errorf("Expected decline code insufficient_funds, got %q", result.declineCode)
	}
}

func TestParseRazorpayEvent(t *testing.T) {
	payload := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": "pay_9", "order_id": "order_7"}}}
	}`)
	result, err := parseRazorpayEvent(payload)
	if err != nil {
		t.Fatalf("parseRazorpayEvent failed: %v", err)
	}
	if !result.handled {
		t.Fatal("Expected payment.captured to be handled")
	}
	if result.reference != "order_7" {
		t.Errorf("Expected reference order_7, got %q", result.reference)
	}
	if result.transactionID != "pay_9" {
		t.Errorf("Expected transaction ID pay_9, got %q", result.transactionID)
	}
	if result.status != gateway.VerificationSuccess {
		t.Errorf("Expected success status, got %s", result.status)
	}
}
