package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/pkg/database"
)

// PostgreSQL error code for unique violation
const pgUniqueViolationCode = "23505"

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	db *database.PostgresDB
}

// NewPostgresPaymentRepository creates a new PostgreSQL payment repository
func NewPostgresPaymentRepository(db *database.PostgresDB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// selectColumns defines the columns to select for payment queries
const selectColumns = `
	id, user_id, item_type, item_id, amount, currency, method, status,
	gateway_reference, transaction_id, gateway_response, poll_count,
	last_polled_at, polling_expires_at, auto_verification_enabled,
	failure_reason, created_at, updated_at
`

// Create inserts a new payment record. The partial unique index on
// (user_id, item_type, item_id) WHERE status = 'pending' turns a
// concurrent duplicate into ErrPaymentAlreadyExists.
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, user_id, item_type, item_id, amount, currency, method, status,
			gateway_reference, transaction_id, gateway_response, poll_count,
			last_polled_at, polling_expires_at, auto_verification_enabled,
			failure_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	gatewayResponseJSON, err := json.Marshal(payment.GatewayResponse)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway_response: %w", err)
	}

	_, err = r.db.Pool().Exec(ctx, query,
		payment.ID,
		payment.UserID,
		string(payment.ItemType),
		payment.ItemID,
		payment.Amount,
		payment.Currency,
		string(payment.Method),
		string(payment.Status),
		nullString(payment.GatewayReference),
		nullString(payment.TransactionID),
		gatewayResponseJSON,
		payment.PollCount,
		payment.LastPolledAt,
		payment.PollingExpiresAt,
		payment.AutoVerificationEnabled,
		nullString(payment.FailureReason),
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return domain.ErrPaymentAlreadyExists
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// nullString returns nil if string is empty, otherwise returns pointer to string
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetByID retrieves a payment by its ID
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.db.Pool().QueryRow(ctx, query, id))
}

// GetByGatewayReference resolves a provider-side reference to a payment
func (r *PostgresPaymentRepository) GetByGatewayReference(ctx context.Context, reference string) (*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE gateway_reference = $1 OR id = $1 LIMIT 1`
	return scanPayment(r.db.Pool().QueryRow(ctx, query, reference))
}

// GetActiveByUserItem retrieves the single non-terminal payment for a
// (user, item) pair.
func (r *PostgresPaymentRepository) GetActiveByUserItem(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments
		WHERE user_id = $1 AND item_type = $2 AND item_id = $3 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`
	return scanPayment(r.db.Pool().QueryRow(ctx, query, userID, string(itemType), itemID))
}

// GetByUserID retrieves payments for a user, newest first
func (r *PostgresPaymentRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.queryPayments(ctx, query, userID, limit, offset)
}

// GetLatestByUserItem retrieves the newest payment for a (user, item)
// pair regardless of status.
func (r *PostgresPaymentRepository) GetLatestByUserItem(ctx context.Context, userID string, itemType domain.ItemType, itemID string) (*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments
		WHERE user_id = $1 AND item_type = $2 AND item_id = $3
		ORDER BY created_at DESC LIMIT 1`
	return scanPayment(r.db.Pool().QueryRow(ctx, query, userID, string(itemType), itemID))
}

// UpdateStatusIf swaps status from->to in one statement. RowsAffected
// tells us whether this caller won; zero rows with an existing record
// means someone else moved it first.
func (r *PostgresPaymentRepository) UpdateStatusIf(ctx context.Context, id string, from, to domain.PaymentStatus, update StatusUpdate) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3,
		    transaction_id = COALESCE($4, transaction_id),
		    failure_reason = COALESCE($5, failure_reason),
		    gateway_response = COALESCE($6, gateway_response),
		    auto_verification_enabled = FALSE,
		    updated_at = $7
		WHERE id = $1 AND status = $2`

	var gatewayResponseJSON []byte
	if update.GatewayResponse != nil {
		var err error
		gatewayResponseJSON, err = json.Marshal(update.GatewayResponse)
		if err != nil {
			return false, fmt.Errorf("failed to marshal gateway_response: %w", err)
		}
	}

	result, err := r.db.Pool().Exec(ctx, query,
		id,
		string(from),
		string(to),
		nullString(update.TransactionID),
		nullString(update.FailureReason),
		gatewayResponseJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a lost race from a missing record
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// UpdateGatewayInit stores the provider-side reference and raw
// response captured when a transaction is opened.
func (r *PostgresPaymentRepository) UpdateGatewayInit(ctx context.Context, id string, reference string, response map[string]any) error {
	query := `
		UPDATE payments
		SET gateway_reference = $2,
		    gateway_response = $3,
		    updated_at = $4
		WHERE id = $1`

	responseJSON, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway_response: %w", err)
	}

	result, err := r.db.Pool().Exec(ctx, query, id, reference, responseJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update gateway init: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// RecordPollAttempt increments poll_count and stamps last_polled_at
func (r *PostgresPaymentRepository) RecordPollAttempt(ctx context.Context, id string, polledAt time.Time) error {
	query := `
		UPDATE payments
		SET poll_count = poll_count + 1,
		    last_polled_at = $2,
		    updated_at = $2
		WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, polledAt)
	if err != nil {
		return fmt.Errorf("failed to record poll attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// DisableAutoVerification turns off scheduled polling for a record
func (r *PostgresPaymentRepository) DisableAutoVerification(ctx context.Context, id string) error {
	query := `UPDATE payments SET auto_verification_enabled = FALSE, updated_at = $2 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to disable auto verification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// ListPollable returns pending auto-enabled payments matching the
// sweep criteria, oldest poll first.
func (r *PostgresPaymentRepository) ListPollable(ctx context.Context, now time.Time, criteria SweepCriteria) ([]*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments
		WHERE status = 'pending'
		  AND auto_verification_enabled = TRUE
		  AND poll_count < $1
		  AND created_at > $2
		  AND (last_polled_at IS NULL OR last_polled_at < $3)
		  AND (polling_expires_at IS NULL OR polling_expires_at > $4)
		ORDER BY last_polled_at ASC NULLS FIRST
		LIMIT $5`

	return r.queryPayments(ctx, query,
		domain.MaxPollCount,
		now.Add(-criteria.CreatedWithin),
		now.Add(-criteria.NotPolledSince),
		now,
		criteria.Limit,
	)
}

// ListExpired returns pending payments whose polling window has passed
func (r *PostgresPaymentRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error) {
	query := `SELECT ` + selectColumns + ` FROM payments
		WHERE status = 'pending' AND polling_expires_at IS NOT NULL AND polling_expires_at < $1
		ORDER BY polling_expires_at ASC
		LIMIT $2`
	return r.queryPayments(ctx, query, now, limit)
}

func (r *PostgresPaymentRepository) queryPayments(ctx context.Context, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// scanPayment scans a single payment from a row
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var payment domain.Payment
	var itemType, method, status string
	var gatewayReference, transactionID, failureReason *string
	var gatewayResponseJSON []byte

	err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&itemType,
		&payment.ItemID,
		&payment.Amount,
		&payment.Currency,
		&method,
		&status,
		&gatewayReference,
		&transactionID,
		&gatewayResponseJSON,
		&payment.PollCount,
		&payment.LastPolledAt,
		&payment.PollingExpiresAt,
		&payment.AutoVerificationEnabled,
		&failureReason,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	payment.ItemType = domain.ItemType(itemType)
	payment.Method = domain.PaymentMethod(method)
	payment.Status = domain.PaymentStatus(status)
	if gatewayReference != nil {
		payment.GatewayReference = *gatewayReference
	}
	if transactionID != nil {
		payment.TransactionID = *transactionID
	}
	if failureReason != nil {
		payment.FailureReason = *failureReason
	}

	if len(gatewayResponseJSON) > 0 {
		if err := json.Unmarshal(gatewayResponseJSON, &payment.GatewayResponse); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gateway_response: %w", err)
		}
	}

	return &payment, nil
}
