package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle status of a payment (matches DB ENUM)
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethod identifies the gateway (and sub-mode) used to collect a payment
type PaymentMethod string

const (
	PaymentMethodPaystack             PaymentMethod = "paystack"
	PaymentMethodPaystackUSSD         PaymentMethod = "paystack_ussd"
	PaymentMethodPaystackBankTransfer PaymentMethod = "paystack_bank_transfer"
	PaymentMethodPaystackMobileMoney  PaymentMethod = "paystack_mobile_money"
	PaymentMethodStripe               PaymentMethod = "stripe"
	PaymentMethodRazorpay             PaymentMethod = "razorpay"
)

// ItemType identifies what kind of purchasable a payment targets.
// A payment references exactly one item.
type ItemType string

const (
	ItemTypeCourse  ItemType = "course"
	ItemTypeBatch   ItemType = "batch"
	ItemTypeProgram ItemType = "program"
)

// Polling limits. A pending payment is confirmed asynchronously by a
// bounded chain of verification attempts; these two values are the
// circuit breaker on gateway calls per payment.
const (
	MaxPollCount  = 60
	PollingWindow = 30 * time.Minute
)

// Payment represents one purchase attempt and its lifecycle state
type Payment struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	ItemType        ItemType        `json:"item_type"`
	ItemID          string          `json:"item_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Method          PaymentMethod   `json:"method"`
	Status          PaymentStatus   `json:"status"`
	// GatewayReference is what verification polls against: the
	// transaction reference for Paystack, the intent ID for Stripe,
	// the order ID for Razorpay.
	GatewayReference string         `json:"gateway_reference,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	GatewayResponse map[string]any  `json:"gateway_response,omitempty"`

	PollCount               int        `json:"poll_count"`
	LastPolledAt            *time.Time `json:"last_polled_at,omitempty"`
	PollingExpiresAt        *time.Time `json:"polling_expires_at,omitempty"`
	AutoVerificationEnabled bool       `json:"auto_verification_enabled"`

	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewPayment creates a pending payment for one (user, item) pair.
// Polling metadata is initialized here so a record is pollable the
// moment it is persisted.
func NewPayment(userID string, itemType ItemType, itemID string, amount decimal.Decimal, currency string, method PaymentMethod) (*Payment, error) {
	if userID == "" {
		return nil, NewValidationError("INVALID_USER", "user_id is required")
	}
	if itemID == "" {
		return nil, NewValidationError("INVALID_ITEM", "item_id is required")
	}
	switch itemType {
	case ItemTypeCourse, ItemTypeBatch, ItemTypeProgram:
	default:
		return nil, NewValidationError("INVALID_ITEM_TYPE", "item_type must be course, batch or program")
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("INVALID_AMOUNT", "amount must be positive")
	}
	if currency == "" {
		return nil, NewValidationError("INVALID_CURRENCY", "currency is required")
	}
	if method.GatewayType() == "" {
		return nil, ErrUnsupportedGateway
	}

	now := time.Now().UTC()
	expiresAt := now.Add(PollingWindow)
	return &Payment{
		ID:                      uuid.New().String(),
		UserID:                  userID,
		ItemType:                itemType,
		ItemID:                  itemID,
		Amount:                  amount,
		Currency:                currency,
		Method:                  method,
		Status:                  PaymentStatusPending,
		PollingExpiresAt:        &expiresAt,
		AutoVerificationEnabled: true,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// Complete marks the payment as completed
func (p *Payment) Complete(transactionID string) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidPaymentStatus
	}
	p.Status = PaymentStatusCompleted
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	p.AutoVerificationEnabled = false
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the payment as failed with a reason
func (p *Payment) Fail(reason string) error {
	if p.Status != PaymentStatusPending {
		return ErrInvalidPaymentStatus
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.AutoVerificationEnabled = false
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Refund marks the payment as refunded. Only completed payments can be
// refunded; one refund (full or partial) per payment.
func (p *Payment) Refund() error {
	if p.Status != PaymentStatusCompleted {
		return ErrInvalidPaymentStatus
	}
	p.Status = PaymentStatusRefunded
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal returns true when no further polling or transition may
// occur, except the single completed->refunded edge.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted ||
		p.Status == PaymentStatusFailed ||
		p.Status == PaymentStatusRefunded
}

// PollingExpired returns true once the wall-clock verification window has passed
func (p *Payment) PollingExpired(now time.Time) bool {
	return p.PollingExpiresAt != nil && now.After(*p.PollingExpiresAt)
}

// Pollable reports whether a scheduled verification attempt is still
// allowed to do gateway work for this record.
func (p *Payment) Pollable(now time.Time) bool {
	if p.IsTerminal() {
		return false
	}
	if !p.AutoVerificationEnabled {
		return false
	}
	if p.PollCount >= MaxPollCount {
		return false
	}
	return !p.PollingExpired(now)
}

// GatewayType maps a payment method onto its adapter family. Paystack
// sub-modes (USSD, bank transfer, mobile money) share one adapter.
func (m PaymentMethod) GatewayType() string {
	switch m {
	case PaymentMethodPaystack, PaymentMethodPaystackUSSD,
		PaymentMethodPaystackBankTransfer, PaymentMethodPaystackMobileMoney:
		return "paystack"
	case PaymentMethodStripe:
		return "stripe"
	case PaymentMethodRazorpay:
		return "razorpay"
	default:
		return ""
	}
}

// Channel returns the provider sub-mode for methods that carry one
func (m PaymentMethod) Channel() string {
	switch m {
	case PaymentMethodPaystackUSSD:
		return "ussd"
	case PaymentMethodPaystackBankTransfer:
		return "bank_transfer"
	case PaymentMethodPaystackMobileMoney:
		return "mobile_money"
	default:
		return ""
	}
}
