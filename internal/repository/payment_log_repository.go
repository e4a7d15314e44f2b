package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/pkg/database"
)

// PostgresPaymentLogRepository implements PaymentLogRepository using
// PostgreSQL. Inserts only; the table carries no update path.
type PostgresPaymentLogRepository struct {
	db *database.PostgresDB
}

// NewPostgresPaymentLogRepository creates a new PostgreSQL log repository
func NewPostgresPaymentLogRepository(db *database.PostgresDB) *PostgresPaymentLogRepository {
	return &PostgresPaymentLogRepository{db: db}
}

// Append inserts one audit row
func (r *PostgresPaymentLogRepository) Append(ctx context.Context, log *domain.PaymentLog) error {
	query := `
		INSERT INTO payment_logs (
			id, payment_id, event_type, status, gateway_response,
			error_message, request_ip, user_agent, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	gatewayResponseJSON, err := json.Marshal(log.GatewayResponse)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway_response: %w", err)
	}

	_, err = r.db.Pool().Exec(ctx, query,
		log.ID,
		log.PaymentID,
		log.EventType,
		string(log.Status),
		gatewayResponseJSON,
		nullString(log.ErrorMessage),
		nullString(log.RequestIP),
		nullString(log.UserAgent),
		log.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment log: %w", err)
	}
	return nil
}

// GetByPaymentID retrieves audit rows for a payment, newest first
func (r *PostgresPaymentLogRepository) GetByPaymentID(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error) {
	query := `
		SELECT id, payment_id, event_type, status, gateway_response,
		       error_message, request_ip, user_agent, processed_at
		FROM payment_logs
		WHERE payment_id = $1
		ORDER BY processed_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, paymentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.PaymentLog
	for rows.Next() {
		log, err := scanPaymentLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment logs: %w", err)
	}
	return logs, nil
}

func scanPaymentLog(row pgx.Row) (*domain.PaymentLog, error) {
	var log domain.PaymentLog
	var status string
	var gatewayResponseJSON []byte
	var errorMessage, requestIP, userAgent *string

	err := row.Scan(
		&log.ID,
		&log.PaymentID,
		&log.EventType,
		&status,
		&gatewayResponseJSON,
		&errorMessage,
		&requestIP,
		&userAgent,
		&log.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment log: %w", err)
	}

	log.Status = domain.LogStatus(status)
	if errorMessage != nil {
		log.ErrorMessage = *errorMessage
	}
	if requestIP != nil {
		log.RequestIP = *requestIP
	}
	if userAgent != nil {
		log.UserAgent = *userAgent
	}
	if len(gatewayResponseJSON) > 0 {
		if err := json.Unmarshal(gatewayResponseJSON, &log.GatewayResponse); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gateway_response: %w", err)
		}
	}
	return &log, nil
}

// MemoryPaymentLogRepository implements PaymentLogRepository in memory
type MemoryPaymentLogRepository struct {
	mu   sync.RWMutex
	logs []*domain.PaymentLog
}

// NewMemoryPaymentLogRepository creates an in-memory log repository
func NewMemoryPaymentLogRepository() *MemoryPaymentLogRepository {
	return &MemoryPaymentLogRepository{}
}

// Append stores one audit row
func (r *MemoryPaymentLogRepository) Append(ctx context.Context, log *domain.PaymentLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *log
	r.logs = append(r.logs, &copied)
	return nil
}

// GetByPaymentID retrieves audit rows for a payment, newest first
func (r *MemoryPaymentLogRepository) GetByPaymentID(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.PaymentLog
	for _, log := range r.logs {
		if log.PaymentID == paymentID {
			copied := *log
			result = append(result, &copied)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ProcessedAt.After(result[j].ProcessedAt)
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
