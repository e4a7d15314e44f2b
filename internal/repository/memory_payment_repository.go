package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lurnify/backend-payment/internal/domain"
)

// MemoryPaymentRepository implements PaymentRepository in memory for
// development and tests. The mutex plays the role the conditional
// UPDATE plays in postgres.
type MemoryPaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]*domain.Payment
}

// NewMemoryPaymentRepository creates an in-memory payment repository
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*domain.Payment),
	}
}

// Create stores a new payment, enforcing the one-pending-per-item rule
func (r *MemoryPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.payments {
		if existing.UserID == payment.UserID &&
			existing.ItemType == payment.ItemType &&
			existing.ItemID == payment.ItemID &&
			existing.Status == domain.PaymentStatusPending {
			return domain.ErrPaymentAlreadyExists
		}
	}

	copied := *payment
	r.payments[payment.ID] = &copied
	return nil
}

// GetByID retrieves a payment by its ID
func (r *MemoryPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

// GetByGatewayReference resolves a provider-side reference to a payment
func (r *MemoryPaymentRepository) GetByGatewayReference(ctx context.Context, reference string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if payment, ok := r.payments[reference]; ok {
		copied := *payment
		return &copied, nil
	}
	for _, payment := range r.payments {
		if payment.GatewayReference == reference {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

// GetActiveByUserItem returns the pending payment for a (user, item) pair
func (r *MemoryPaymentRepository) GetActiveByUserItem(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, payment := range r.payments {
		if payment.UserID == userID &&
			payment.ItemType == itemType &&
			payment.ItemID == itemID &&
			payment.Status == domain.PaymentStatusPending {
			copied := *payment
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

// GetByUserID retrieves payments for a user, newest first
func (r *MemoryPaymentRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Payment
	for _, payment := range r.payments {
		if payment.UserID == userID {
			copied := *payment
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetLatestByUserItem retrieves the newest payment for a (user, item) pair
func (r *MemoryPaymentRepository) GetLatestByUserItem(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Payment
	for _, payment := range r.payments {
		if payment.UserID != userID || payment.ItemType != itemType || payment.ItemID != itemID {
			continue
		}
		if latest == nil || payment.CreatedAt.After(latest.CreatedAt) {
			latest = payment
		}
	}
	if latest == nil {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *latest
	return &copied, nil
}

// UpdateStatusIf swaps status from->to under the lock
func (r *MemoryPaymentRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.PaymentStatus, update StatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return false, domain.ErrPaymentNotFound
	}
	if payment.Status != from {
		return false, nil
	}

	payment.Status = to
	if update.TransactionID != "" {
		payment.TransactionID = update.TransactionID
	}
	if update.FailureReason != "" {
		payment.FailureReason = update.FailureReason
	}
	if update.GatewayResponse != nil {
		payment.GatewayResponse = update.GatewayResponse
	}
	payment.AutoVerificationEnabled = false
	payment.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ReplaceForTest swaps a stored record wholesale. Test support only;
// production mutations go through UpdateStatusIf.
func (r *MemoryPaymentRepository) ReplaceForTest(payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[payment.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	copied := *payment
	r.payments[payment.ID] = &copied
	return nil
}

// UpdateGatewayInit stores the provider-side reference and raw
// response captured when a transaction is opened.
func (r *MemoryPaymentRepository) UpdateGatewayInit(ctx context.Context, id string, reference string, response map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	payment.GatewayReference = reference
	payment.GatewayResponse = response
	payment.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordPollAttempt increments poll_count and stamps last_polled_at
func (r *MemoryPaymentRepository) RecordPollAttempt(ctx context.Context, id string, polledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	payment.PollCount++
	payment.LastPolledAt = &polledAt
	payment.UpdatedAt = polledAt
	return nil
}

// DisableAutoVerification turns off scheduled polling for a record
func (r *MemoryPaymentRepository) DisableAutoVerification(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	payment.AutoVerificationEnabled = false
	payment.UpdatedAt = time.Now().UTC()
	return nil
}

// ListPollable returns pending auto-enabled payments matching the sweep criteria
func (r *MemoryPaymentRepository) ListPollable(ctx context.Context, now time.Time, criteria SweepCriteria) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	createdAfter := now.Add(-criteria.CreatedWithin)
	polledBefore := now.Add(-criteria.NotPolledSince)

	var result []*domain.Payment
	for _, payment := range r.payments {
		if payment.Status != domain.PaymentStatusPending {
			continue
		}
		if !payment.AutoVerificationEnabled {
			continue
		}
		if payment.PollCount >= domain.MaxPollCount {
			continue
		}
		if !payment.CreatedAt.After(createdAfter) {
			continue
		}
		if payment.LastPolledAt != nil && !payment.LastPolledAt.Before(polledBefore) {
			continue
		}
		if payment.PollingExpired(now) {
			continue
		}
		copied := *payment
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].LastPolledAt, result[j].LastPolledAt
		if a == nil {
			return true
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})

	if criteria.Limit > 0 && len(result) > criteria.Limit {
		result = result[:criteria.Limit]
	}
	return result, nil
}

// ListExpired returns pending payments whose polling window has passed
func (r *MemoryPaymentRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Payment
	for _, payment := range r.payments {
		if payment.Status != domain.PaymentStatusPending {
			continue
		}
		if !payment.PollingExpired(now) {
			continue
		}
		copied := *payment
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PollingExpiresAt.Before(*result[j].PollingExpiresAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
