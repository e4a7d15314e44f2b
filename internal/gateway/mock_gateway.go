package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/domain"
)

// MockAdapter implements Adapter for development and load testing
type MockAdapter struct {
	config       *MockConfig
	transactions sync.Map
	mu           sync.RWMutex
}

// MockConfig holds configuration for the mock adapter
type MockConfig struct {
	// SuccessRate is the probability a verification resolves to
	// success (0.0 to 1.0)
	SuccessRate float64

	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int

	// DeclineCodes is the pool of failure codes drawn from on decline
	DeclineCodes []string

	// PendingPolls is how many Verify calls a transaction stays
	// pending before resolving
	PendingPolls int
}

// DefaultMockConfig returns default configuration
func DefaultMockConfig() *MockConfig {
	return &MockConfig{
		SuccessRate: 0.95,
		DelayMs:     50,
		DeclineCodes: []string{
			"insufficient_funds",
			"card_declined",
			"expired_card",
			"invalid_cvc",
		},
		PendingPolls: 2,
	}
}

type mockTransaction struct {
	id       string
	amount   decimal.Decimal
	currency string
	polls    int
	resolved VerificationStatus
	decline  string
}

// NewMockAdapter creates a mock adapter
func NewMockAdapter(config *MockConfig) *MockAdapter {
	if config == nil {
		config = DefaultMockConfig()
	}
	if config.SuccessRate < 0 {
		config.SuccessRate = 0
	}
	if config.SuccessRate > 1 {
		config.SuccessRate = 1
	}
	return &MockAdapter{config: config}
}

// Name returns the gateway name
func (a *MockAdapter) Name() string {
	return "mock"
}

// Initialize records a pending mock transaction
func (a *MockAdapter) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	if err := a.delay(ctx); err != nil {
		return nil, err
	}

	txn := &mockTransaction{
		id:       fmt.Sprintf("mock_txn_%s", uuid.New().String()[:8]),
		amount:   req.Amount,
		currency: req.Currency,
	}
	a.transactions.Store(req.Reference, txn)

	return &InitializeResponse{
		Reference:        req.Reference,
		AuthorizationURL: fmt.Sprintf("https://checkout.mock.test/%s", req.Reference),
		AccessCode:       uuid.New().String()[:12],
		Raw:              map[string]any{"reference": req.Reference},
	}, nil
}

// Verify resolves the transaction after the configured pending polls
func (a *MockAdapter) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	if err := a.delay(ctx); err != nil {
		return nil, err
	}

	value, ok := a.transactions.Load(reference)
	if !ok {
		return nil, domain.NewProcessingError("MOCK_NOT_FOUND", fmt.Sprintf("transaction not found: %s", reference), nil)
	}
	txn := value.(*mockTransaction)

	a.mu.Lock()
	defer a.mu.Unlock()

	if txn.resolved == "" {
		txn.polls++
		if txn.polls <= a.config.PendingPolls {
			return &VerifyResponse{
				Status:   VerificationPending,
				Amount:   txn.amount,
				Currency: txn.currency,
				Raw:      map[string]any{"status": "pending", "polls": txn.polls},
			}, nil
		}
		if rand.Float64() < a.config.SuccessRate {
			txn.resolved = VerificationSuccess
		} else {
			txn.resolved = VerificationFailed
			if len(a.config.DeclineCodes) > 0 {
				txn.decline = a.config.DeclineCodes[rand.Intn(len(a.config.DeclineCodes))]
			} else {
				txn.decline = "card_declined"
			}
		}
	}

	return &VerifyResponse{
		Status:        txn.resolved,
		TransactionID: txn.id,
		Amount:        txn.amount,
		Currency:      txn.currency,
		DeclineCode:   txn.decline,
		Raw:           map[string]any{"status": string(txn.resolved)},
	}, nil
}

// Refund marks a resolved transaction refunded
func (a *MockAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	if err := a.delay(ctx); err != nil {
		return nil, err
	}

	found := false
	a.transactions.Range(func(_, value any) bool {
		if txn := value.(*mockTransaction); txn.id == req.TransactionID {
			found = true
			return false
		}
		return true
	})
	if !found {
		return nil, domain.NewRefundError("MOCK_REFUND", fmt.Sprintf("transaction not found: %s", req.TransactionID), nil)
	}

	return &RefundResponse{
		RefundID: fmt.Sprintf("mock_rfnd_%s", uuid.New().String()[:8]),
		Status:   "processed",
	}, nil
}

// ChargeSavedMethod resolves immediately by success rate
func (a *MockAdapter) ChargeSavedMethod(ctx context.Context, req *SavedMethodRequest) (*VerifyResponse, error) {
	if err := a.delay(ctx); err != nil {
		return nil, err
	}

	resp := &VerifyResponse{
		TransactionID: fmt.Sprintf("mock_txn_%s", uuid.New().String()[:8]),
		Amount:        req.Amount,
		Currency:      req.Currency,
	}
	if rand.Float64() < a.config.SuccessRate {
		resp.Status = VerificationSuccess
	} else {
		resp.Status = VerificationFailed
		resp.DeclineCode = "card_declined"
	}
	return resp, nil
}

// VerifyWebhookSignature accepts any non-empty signature
func (a *MockAdapter) VerifyWebhookSignature(payload []byte, signature string) error {
	if signature == "" {
		return domain.ErrWebhookValidation
	}
	return nil
}

// Resolve forces a transaction into a terminal state (for testing)
func (a *MockAdapter) Resolve(reference string, status VerificationStatus, declineCode string) {
	if value, ok := a.transactions.Load(reference); ok {
		a.mu.Lock()
		txn := value.(*mockTransaction)
		txn.resolved = status
		txn.decline = declineCode
		a.mu.Unlock()
	}
}

// SetSuccessRate updates the success rate (for testing)
func (a *MockAdapter) SetSuccessRate(rate float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	a.config.SuccessRate = rate
}

func (a *MockAdapter) delay(ctx context.Context) error {
	if a.config.DelayMs <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(a.config.DelayMs) * time.Millisecond):
		return nil
	}
}
