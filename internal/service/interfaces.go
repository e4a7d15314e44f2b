package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/audit"
	"github.com/lurnify/backend-payment/internal/domain"
)

// Item is a purchasable as the catalog knows it
type Item struct {
	Type     domain.ItemType
	ID       string
	Title    string
	Price    decimal.Decimal
	Currency string
	Free     bool
	Active   bool
}

// ItemRegistry resolves item references against the catalog
type ItemRegistry interface {
	Lookup(ctx context.Context, itemType domain.ItemType, itemID string) (*Item, error)
}

// EntitlementStore records what a user owns. Grant must be safe to
// call at most once per completed payment; the orchestrator gates it
// on winning the status swap.
type EntitlementStore interface {
	Grant(ctx context.Context, userID string, itemType domain.ItemType, itemID, paymentID string) error
	HasAccess(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (bool, error)
}

// PaymentEvent is the shape published on lifecycle transitions
type PaymentEvent struct {
	Type       string          `json:"type"`
	PaymentID  string          `json:"payment_id"`
	UserID     string          `json:"user_id"`
	ItemType   domain.ItemType `json:"item_type"`
	ItemID     string          `json:"item_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Method     string          `json:"method"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Payment event types published to the notification dispatcher
const (
	EventTypeInitialized = "payment.initialized"
	EventTypeCompleted   = "payment.completed"
	EventTypeFailed      = "payment.failed"
	EventTypeRefunded    = "payment.refunded"
)

// NotificationDispatcher publishes lifecycle events. Dispatch is
// fire-and-forget from the orchestrator's perspective.
type NotificationDispatcher interface {
	Notify(ctx context.Context, event *PaymentEvent)
}

// InitializeInput starts a payment for one (user, item) pair
type InitializeInput struct {
	UserID   string
	ItemType domain.ItemType
	ItemID   string
	Method   domain.PaymentMethod
	Email    string
	Request  *audit.RequestInfo
}

// InitializeResult carries the record plus whatever the client needs
// to complete checkout.
type InitializeResult struct {
	Payment          *domain.Payment
	AuthorizationURL string
	AccessCode       string
	ClientSecret     string
	// Existing is true when an earlier pending payment was returned
	// instead of creating a new one.
	Existing bool
}

// SavedChargeInput charges a stored payment method without user action
type SavedChargeInput struct {
	UserID             string
	ItemType           domain.ItemType
	ItemID             string
	Method             domain.PaymentMethod
	Email              string
	AuthorizationToken string
	CustomerID         string
	Request            *audit.RequestInfo
}

// RefundInput asks for a refund of a completed payment. Zero Amount
// means full refund.
type RefundInput struct {
	PaymentID string
	Amount    decimal.Decimal
	Reason    string
	Request   *audit.RequestInfo
}

// PaymentService orchestrates the payment lifecycle
type PaymentService interface {
	Initialize(ctx context.Context, input *InitializeInput) (*InitializeResult, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetUserPayments(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error)

	// Verify polls the gateway for the payment's current state and
	// applies the resulting transition. Safe to call on terminal
	// payments; they are returned unchanged.
	Verify(ctx context.Context, id string, req *audit.RequestInfo) (*domain.Payment, error)

	Refund(ctx context.Context, input *RefundInput) (*domain.Payment, error)
	ChargeSavedMethod(ctx context.Context, input *SavedChargeInput) (*domain.Payment, error)

	// ApplyGatewayResult applies an externally observed verification
	// outcome (webhook deliveries) to the referenced payment.
	ApplyGatewayResult(ctx context.Context, reference string, status string, transactionID, declineCode string, raw map[string]any, req *audit.RequestInfo) error

	// RecordWebhookRejection audits a webhook delivery whose signature
	// did not verify, keyed by the gateway reference when one could be
	// extracted from the payload.
	RecordWebhookRejection(ctx context.Context, reference, provider, reason string, req *audit.RequestInfo)

	// ExpirePayment forces a pending payment whose polling window has
	// passed into failed.
	ExpirePayment(ctx context.Context, id string) error

	// ForceFail moves a pending payment to failed with the given reason
	ForceFail(ctx context.Context, id, reason string) error

	Logs(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error)
}
