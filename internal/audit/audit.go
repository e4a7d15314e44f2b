package audit

import (
	"context"
	"fmt"

	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/metrics"
	"github.com/lurnify/backend-payment/internal/repository"
	"github.com/lurnify/backend-payment/pkg/logger"
)

// RequestInfo carries HTTP request attribution into audit rows
type RequestInfo struct {
	IP        string
	UserAgent string
}

// Recorder appends audit rows. Write failures are logged and counted
// but never returned: an audit miss must not break a payment flow.
type Recorder struct {
	repo repository.PaymentLogRepository
}

// NewRecorder creates an audit recorder
func NewRecorder(repo repository.PaymentLogRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Success appends a success row for an event
func (r *Recorder) Success(ctx context.Context, paymentID, eventType string, gatewayResponse map[string]any, req *RequestInfo) {
	log := domain.NewPaymentLog(paymentID, eventType, domain.LogStatusSuccess)
	log.GatewayResponse = gatewayResponse
	r.apply(log, req)
	r.append(ctx, log)
}

// Error appends an error row for an event
func (r *Recorder) Error(ctx context.Context, paymentID, eventType, errorMessage string, gatewayResponse map[string]any, req *RequestInfo) {
	log := domain.NewPaymentLog(paymentID, eventType, domain.LogStatusError)
	log.ErrorMessage = errorMessage
	log.GatewayResponse = gatewayResponse
	r.apply(log, req)
	r.append(ctx, log)
}

func (r *Recorder) apply(log *domain.PaymentLog, req *RequestInfo) {
	if req != nil {
		log.RequestIP = req.IP
		log.UserAgent = req.UserAgent
	}
}

func (r *Recorder) append(ctx context.Context, log *domain.PaymentLog) {
	if err := r.repo.Append(ctx, log); err != nil {
		logger.Get().Error(fmt.Sprintf("Failed to append audit log: payment_id=%s, event=%s: %v",
			log.PaymentID, log.EventType, err))
		metrics.RecordAuditWriteFailure(ctx, log.EventType)
	}
}

// Trail returns the audit rows for a payment, newest first
func (r *Recorder) Trail(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error) {
	return r.repo.GetByPaymentID(ctx, paymentID, limit, offset)
}
