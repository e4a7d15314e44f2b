package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/repository"
)

// failingLogRepo always fails Append
type failingLogRepo struct{}

func (f *failingLogRepo) Append(ctx context.Context, log *domain.PaymentLog) error {
	return errors.New("disk full")
}

func (f *failingLogRepo) GetByPaymentID(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error) {
	return nil, nil
}

func TestRecorderSwallowsWriteFailures(t *testing.T) {
	recorder := NewRecorder(&failingLogRepo{})

	// Must not panic or surface the error
	recorder.Success(context.Background(), "pay-1", domain.EventPaymentCompleted, nil, nil)
	recorder.Error(context.Background(), "pay-1", domain.EventPollingError, "gateway timeout", nil, nil)
}

func TestRecorderAppendsRows(t *testing.T) {
	repo := repository.NewMemoryPaymentLogRepository()
	recorder := NewRecorder(repo)
	ctx := context.Background()

	recorder.Success(ctx, "pay-1", domain.EventPaymentInitialized, map[string]any{"reference": "pay-1"}, &RequestInfo{
		IP:        "203.0.113.9",
		UserAgent: "test-agent",
	})
	recorder.Error(ctx, "pay-1", domain.EventPollingError, "timeout", nil, nil)

	logs, err := recorder.Trail(ctx, "pay-1", 10, 0)
	if err != nil {
		t.Fatalf("Trail failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("Expected 2 audit rows, got %d", len(logs))
	}

	var initRow *domain.PaymentLog
	for _, log := range logs {
		if log.EventType == domain.EventPaymentInitialized {
			initRow = log
		}
	}
	if initRow == nil {
		t.Fatal("Expected payment_initialized row")
	}
	if initRow.Status != domain.LogStatusSuccess {
		t.Errorf("Expected status %s, got %s", domain.LogStatusSuccess, initRow.Status)
	}
	if initRow.RequestIP != "203.0.113.9" {
		t.Errorf("Expected request IP recorded, got %s", initRow.RequestIP)
	}
}
