package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/domain"
)

// InitializePaymentRequest starts a payment for an item
type InitializePaymentRequest struct {
	ItemType domain.ItemType      `json:"item_type" binding:"required"`
	ItemID   string               `json:"item_id" binding:"required"`
	Method   domain.PaymentMethod `json:"method" binding:"required"`
	Email    string               `json:"email" binding:"required,email"`
}

// ChargeSavedMethodRequest charges a stored payment method
type ChargeSavedMethodRequest struct {
	ItemType           domain.ItemType      `json:"item_type" binding:"required"`
	ItemID             string               `json:"item_id" binding:"required"`
	Method             domain.PaymentMethod `json:"method" binding:"required"`
	Email              string               `json:"email" binding:"required,email"`
	AuthorizationToken string               `json:"authorization_token" binding:"required"`
	CustomerID         string               `json:"customer_id,omitempty"`
}

// RefundPaymentRequest asks for a refund. Omitting amount refunds in full.
type RefundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                      string               `json:"id"`
	UserID                  string               `json:"user_id"`
	ItemType                domain.ItemType      `json:"item_type"`
	ItemID                  string               `json:"item_id"`
	Amount                  decimal.Decimal      `json:"amount"`
	Currency                string               `json:"currency"`
	Method                  domain.PaymentMethod `json:"method"`
	Status                  domain.PaymentStatus `json:"status"`
	TransactionID           string               `json:"transaction_id,omitempty"`
	FailureReason           string               `json:"failure_reason,omitempty"`
	PollCount               int                  `json:"poll_count"`
	AutoVerificationEnabled bool                 `json:"auto_verification_enabled"`
	CreatedAt               time.Time            `json:"created_at"`
	UpdatedAt               time.Time            `json:"updated_at"`
}

// FromPayment converts a domain Payment to PaymentResponse
func FromPayment(p *domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                      p.ID,
		UserID:                  p.UserID,
		ItemType:                p.ItemType,
		ItemID:                  p.ItemID,
		Amount:                  p.Amount,
		Currency:                p.Currency,
		Method:                  p.Method,
		Status:                  p.Status,
		TransactionID:           p.TransactionID,
		FailureReason:           p.FailureReason,
		PollCount:               p.PollCount,
		AutoVerificationEnabled: p.AutoVerificationEnabled,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

// InitializePaymentResponse carries the new payment plus what the
// client needs to finish checkout with the gateway.
type InitializePaymentResponse struct {
	Payment          *PaymentResponse `json:"payment"`
	AuthorizationURL string           `json:"authorization_url,omitempty"`
	AccessCode       string           `json:"access_code,omitempty"`
	ClientSecret     string           `json:"client_secret,omitempty"`
	Existing         bool             `json:"existing"`
}

// PaymentListResponse represents a list of payments
type PaymentListResponse struct {
	Payments []*PaymentResponse `json:"payments"`
	Total    int                `json:"total"`
}

// PaymentLogResponse represents one audit trail entry
type PaymentLogResponse struct {
	ID           string         `json:"id"`
	PaymentID    string         `json:"payment_id"`
	EventType    string         `json:"event_type"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Response     map[string]any `json:"response,omitempty"`
	ProcessedAt  time.Time      `json:"processed_at"`
}

// FromPaymentLog converts a domain PaymentLog to PaymentLogResponse
func FromPaymentLog(l *domain.PaymentLog) *PaymentLogResponse {
	return &PaymentLogResponse{
		ID:           l.ID,
		PaymentID:    l.PaymentID,
		EventType:    l.EventType,
		Status:       string(l.Status),
		ErrorMessage: l.ErrorMessage,
		Response:     l.GatewayResponse,
		ProcessedAt:  l.ProcessedAt,
	}
}

// PaymentLogListResponse represents a payment's audit trail
type PaymentLogListResponse struct {
	Logs  []*PaymentLogResponse `json:"logs"`
	Total int                   `json:"total"`
}
