package repository

import (
	"context"
	"time"

	"github.com/lurnify/backend-payment/internal/domain"
)

// StatusUpdate carries the fields written alongside a conditional
// status transition.
type StatusUpdate struct {
	TransactionID   string
	FailureReason   string
	GatewayResponse map[string]any
}

// SweepCriteria selects pending payments due for a batch verification
// pass.
type SweepCriteria struct {
	CreatedWithin  time.Duration // only payments created in this window
	NotPolledSince time.Duration // skip records polled more recently
	Limit          int
}

// PaymentRepository defines payment persistence.
//
// UpdateStatusIf is the only way a status changes: it swaps from->to
// atomically and reports whether this caller won the swap. Callers
// that act on a transition (granting access, dispatching events) must
// gate on the returned bool.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetActiveByUserItem returns the single non-terminal payment for a
	// (user, item) pair, or ErrPaymentNotFound.
	GetActiveByUserItem(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (*domain.Payment, error)

	// GetByGatewayReference resolves a provider-side reference back to
	// its payment (webhook deliveries identify payments this way).
	GetByGatewayReference(ctx context.Context, reference string) (*domain.Payment, error)

	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error)
	GetLatestByUserItem(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (*domain.Payment, error)

	// UpdateGatewayInit stores the provider-side reference and raw
	// response captured when a transaction is opened.
	UpdateGatewayInit(ctx context.Context, id string, reference string, response map[string]any) error

	// UpdateStatusIf performs the compare-and-swap transition. The
	// returned bool is false when the record was not in the expected
	// prior status (someone else already moved it).
	UpdateStatusIf(ctx context.Context, id string, from, to domain.PaymentStatus, update StatusUpdate) (bool, error)

	// RecordPollAttempt increments poll_count and stamps last_polled_at
	RecordPollAttempt(ctx context.Context, id string, polledAt time.Time) error

	// DisableAutoVerification turns off scheduled polling for a record
	DisableAutoVerification(ctx context.Context, id string) error

	// ListPollable returns pending, auto-enabled, unexpired payments
	// matching the sweep criteria.
	ListPollable(ctx context.Context, now time.Time, criteria SweepCriteria) ([]*domain.Payment, error)

	// ListExpired returns pending payments whose polling window has
	// passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error)
}

// PaymentLogRepository is the append-only audit store. Rows are never
// updated or deleted.
type PaymentLogRepository interface {
	Append(ctx context.Context, log *domain.PaymentLog) error
	GetByPaymentID(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error)
}
