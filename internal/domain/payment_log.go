package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogStatus marks whether the logged step succeeded or errored
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusError   LogStatus = "error"
)

// Audit event types. One row is appended per lifecycle step; rows are
// never updated or deleted.
const (
	EventPaymentInitialized = "payment_initialized"
	EventPaymentInitFailed  = "payment_initialization_failed"
	EventPaymentVerified    = "payment_verified"
	EventPaymentCompleted   = "payment_completed"
	EventPaymentFailed      = "payment_failed"
	EventPaymentRefunded    = "payment_refunded"
	EventPollingError       = "polling_error"
	EventPollingExpired     = "polling_expired"
	EventWebhookReceived    = "webhook_received"
	EventWebhookRejected    = "webhook_rejected"
	EventSavedMethodCharge  = "saved_method_charge"
)

// PaymentLog is one append-only audit row for a payment
type PaymentLog struct {
	ID              string         `json:"id"`
	PaymentID       string         `json:"payment_id"`
	EventType       string         `json:"event_type"`
	Status          LogStatus      `json:"status"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RequestIP       string         `json:"request_ip,omitempty"`
	UserAgent       string         `json:"user_agent,omitempty"`
	ProcessedAt     time.Time      `json:"processed_at"`
}

// NewPaymentLog creates an audit row stamped with the current time
func NewPaymentLog(paymentID, eventType string, status LogStatus) *PaymentLog {
	return &PaymentLog{
		ID:          uuid.New().String(),
		PaymentID:   paymentID,
		EventType:   eventType,
		Status:      status,
		ProcessedAt: time.Now().UTC(),
	}
}
