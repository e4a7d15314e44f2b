package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/gateway"
	"github.com/lurnify/backend-payment/internal/repository"
)

// AccessStatus is the read-only projection a client needs to decide
// whether to show content, a pay button, or a pending notice.
type AccessStatus struct {
	HasAccess         bool            `json:"has_access"`
	IsPaid            bool            `json:"is_paid"`
	PaymentRequired   bool            `json:"payment_required"`
	Price             decimal.Decimal `json:"price"`
	PriceWithFees     decimal.Decimal `json:"price_with_fees,omitempty"`
	Currency          string          `json:"currency"`
	LastPaymentStatus string          `json:"last_payment_status,omitempty"`
}

// AccessResolver answers access questions without mutating anything
type AccessResolver struct {
	repo         repository.PaymentRepository
	items        ItemRegistry
	entitlements EntitlementStore
	gateways     *gateway.Registry
}

// NewAccessResolver creates an access resolver
func NewAccessResolver(
	repo repository.PaymentRepository,
	items ItemRegistry,
	entitlements EntitlementStore,
	gateways *gateway.Registry,
) *AccessResolver {
	return &AccessResolver{
		repo:         repo,
		items:        items,
		entitlements: entitlements,
		gateways:     gateways,
	}
}

// Resolve projects entitlement, catalog and payment history into one
// answer. A non-empty method adds the gateway fee to the price quote.
func (r *AccessResolver) Resolve(ctx context.Context, userID string, itemType domain.ItemType, itemID string, method domain.PaymentMethod) (*AccessStatus, error) {
	item, err := r.items.Lookup(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}

	status := &AccessStatus{
		Price:    item.Price,
		Currency: item.Currency,
	}

	if item.Free {
		status.HasAccess = true
		status.PaymentRequired = false
		return status, nil
	}
	status.PaymentRequired = true

	if method != "" {
		if fees, ok := r.gateways.FeesFor(method); ok {
			status.PriceWithFees = fees.Apply(item.Price)
		}
	}

	owned, err := r.entitlements.HasAccess(ctx, userID, itemType, itemID)
	if err != nil {
		return nil, err
	}

	last, err := r.repo.GetLatestByUserItem(ctx, userID, itemType, itemID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}
	if last != nil {
		status.LastPaymentStatus = string(last.Status)
		status.IsPaid = last.Status == domain.PaymentStatusCompleted
	}

	status.HasAccess = owned
	if owned {
		status.PaymentRequired = false
	}
	return status, nil
}
