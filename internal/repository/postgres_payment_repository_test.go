package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/pkg/database"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run.")
	}
}

func setupTestDB(t *testing.T) *database.PostgresDB {
	ctx := context.Background()

	cfg := &database.PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            5432,
		User:            getEnv("POSTGRES_USER", "postgres"),
		Password:        getEnv("POSTGRES_PASSWORD", ""),
		Database:        getEnv("POSTGRES_DB", "payment_db"),
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 1 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
	}

	db, err := database.NewPostgres(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	// Create tables if not exists
	_, err = db.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			item_type VARCHAR(20) NOT NULL,
			item_id VARCHAR(64) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'NGN',
			method VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			gateway_reference VARCHAR(255),
			transaction_id VARCHAR(255),
			gateway_response JSONB,
			poll_count INT NOT NULL DEFAULT 0,
			last_polled_at TIMESTAMP WITH TIME ZONE,
			polling_expires_at TIMESTAMP WITH TIME ZONE,
			auto_verification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			failure_reason TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create payments table: %v", err)
	}

	_, err = db.Pool().Exec(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_pending_user_item
		ON payments (user_id, item_type, item_id)
		WHERE status = 'pending'
	`)
	if err != nil {
		t.Fatalf("Failed to create pending unique index: %v", err)
	}

	_, err = db.Pool().Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_payments_gateway_reference
		ON payments (gateway_reference)
	`)
	if err != nil {
		t.Fatalf("Failed to create gateway_reference index: %v", err)
	}

	_, err = db.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS payment_logs (
			id VARCHAR(36) PRIMARY KEY,
			payment_id VARCHAR(36) NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			gateway_response JSONB,
			error_message TEXT,
			request_ip VARCHAR(45),
			user_agent TEXT,
			processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create payment_logs table: %v", err)
	}

	return db
}

func cleanupTestData(t *testing.T, db *database.PostgresDB) {
	ctx := context.Background()
	if _, err := db.Pool().Exec(ctx, `DELETE FROM payment_logs WHERE payment_id IN (SELECT id FROM payments WHERE user_id LIKE 'itest-%')`); err != nil {
		t.Logf("Warning: failed to cleanup payment logs: %v", err)
	}
	if _, err := db.Pool().Exec(ctx, "DELETE FROM payments WHERE user_id LIKE 'itest-%'"); err != nil {
		t.Logf("Warning: failed to cleanup test data: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newTestPayment(t *testing.T, userID, itemID string) *domain.Payment {
	t.Helper()
	payment, err := domain.NewPayment(userID, domain.ItemTypeCourse, itemID, decimal.NewFromInt(5000), "NGN", domain.PaymentMethodPaystack)
	if err != nil {
		t.Fatalf("Failed to build payment: %v", err)
	}
	return payment
}

func TestPostgresPaymentRepository_CreateAndGet(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	defer cleanupTestData(t, db)

	repo := NewPostgresPaymentRepository(db)
	ctx := context.Background()

	payment := newTestPayment(t, "itest-user-create", "course-1")
	if err := repo.Create(ctx, payment); err != nil {
		t.Fatalf("Failed to create payment in DB: %v", err)
	}

	found, err := repo.GetByID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}

	if found.ID != payment.ID {
		t.Errorf("Expected ID %s, got %s", payment.ID, found.ID)
	}
	if found.Status != domain.PaymentStatusPending {
		t.Errorf("Expected status pending, got %s", found.Status)
	}
	if !found.Amount.Equal(payment.Amount) {
		t.Errorf("Expected amount %s, got %s", payment.Amount, found.Amount)
	}
	if !found.AutoVerificationEnabled {
		t.Error("Expected auto verification enabled on a new payment")
	}
}

func TestPostgresPaymentRepository_PendingUniqueness(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	defer cleanupTestData(t, db)

	repo := NewPostgresPaymentRepository(db)
	ctx := context.Background()

	first := newTestPayment(t, "itest-user-dup", "course-1")
	second := newTestPayment(t, "itest-user-dup", "course-1")

	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Failed to create first payment: %v", err)
	}

	err := repo.Create(ctx, second)
	if !errors.Is(err, domain.ErrPaymentAlreadyExists) {
		t.Errorf("Expected ErrPaymentAlreadyExists, got %v", err)
	}
}

func TestPostgresPaymentRepository_UpdateStatusIf(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	defer cleanupTestData(t, db)

	repo := NewPostgresPaymentRepository(db)
	ctx := context.Background()

	payment := newTestPayment(t, "itest-user-cas", "course-1")
	if err := repo.Create(ctx, payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	swapped, err := repo.UpdateStatusIf(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, StatusUpdate{
		TransactionID: "txn_123",
	})
	if err != nil {
		t.Fatalf("UpdateStatusIf failed: %v", err)
	}
	if !swapped {
		t.Fatal("Expected first transition to win")
	}

	// A second caller racing the same transition must lose cleanly
	swapped, err = repo.UpdateStatusIf(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, StatusUpdate{
		FailureReason: "card_declined",
	})
	if err != nil {
		t.Fatalf("UpdateStatusIf failed: %v", err)
	}
	if swapped {
		t.Error("Expected losing transition to report swapped=false")
	}

	found, err := repo.GetByID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if found.Status != domain.PaymentStatusCompleted {
		t.Errorf("Expected status completed, got %s", found.Status)
	}
	if found.TransactionID != "txn_123" {
		t.Errorf("Expected transaction ID txn_123, got %q", found.TransactionID)
	}
	if found.AutoVerificationEnabled {
		t.Error("Expected auto verification disabled after a terminal transition")
	}
}

func TestPostgresPaymentRepository_RecordPollAttempt(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	defer cleanupTestData(t, db)

	repo := NewPostgresPaymentRepository(db)
	ctx := context.Background()

	payment := newTestPayment(t, "itest-user-poll", "course-1")
	if err := repo.Create(ctx, payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := repo.RecordPollAttempt(ctx, payment.ID, now); err != nil {
			t.Fatalf("RecordPollAttempt failed: %v", err)
		}
	}

	found, err := repo.GetByID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if found.PollCount != 3 {
		t.Errorf("Expected poll count 3, got %d", found.PollCount)
	}
	if found.LastPolledAt == nil {
		t.Error("Expected last_polled_at to be set")
	}
}

func TestPostgresPaymentRepository_ListExpired(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	defer cleanupTestData(t, db)

	repo := NewPostgresPaymentRepository(db)
	ctx := context.Background()

	payment := newTestPayment(t, "itest-user-expired", "course-1")
	if err := repo.Create(ctx, payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	// Push the polling window into the past
	_, err := db.Pool().Exec(ctx, "UPDATE payments SET polling_expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1", payment.ID)
	if err != nil {
		t.Fatalf("Failed to backdate polling window: %v", err)
	}

	expired, err := repo.ListExpired(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}

	foundIt := false
	for _, p := range expired {
		if p.ID == payment.ID {
			foundIt = true
		}
	}
	if !foundIt {
		t.Error("Expected backdated payment in expired list")
	}
}

func TestPostgresPaymentLogRepository_AppendAndGet(t *testing.T) {
	skipIfNoIntegration(t)

	db := setupTestDB(t)
	defer db.Close()
	defer cleanupTestData(t, db)

	payments := NewPostgresPaymentRepository(db)
	logs := NewPostgresPaymentLogRepository(db)
	ctx := context.Background()

	payment := newTestPayment(t, "itest-user-logs", "course-1")
	if err := payments.Create(ctx, payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	entry := domain.NewPaymentLog(payment.ID, domain.EventPaymentInitialized, domain.LogStatusSuccess)
	entry.RequestIP = "203.0.113.9"
	if err := logs.Append(ctx, entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := logs.GetByPaymentID(ctx, payment.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetByPaymentID failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(got))
	}
	if got[0].EventType != domain.EventPaymentInitialized {
		t.Errorf("Expected event payment_initialized, got %s", got[0].EventType)
	}
	if got[0].RequestIP != "203.0.113.9" {
		t.Errorf("Expected request IP to round-trip, got %q", got[0].RequestIP)
	}
}
