package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lurnify/backend-payment/internal/audit"
	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/gateway"
	"github.com/lurnify/backend-payment/internal/metrics"
	"github.com/lurnify/backend-payment/internal/repository"
	"github.com/lurnify/backend-payment/pkg/logger"
)

// Failure reasons written by the lifecycle engine itself
const (
	ReasonPollingExhausted = "Max polling attempts reached"
	ReasonPollingExpired   = "Payment verification timed out"
)

// paymentService implements PaymentService
type paymentService struct {
	repo         repository.PaymentRepository
	gateways     *gateway.Registry
	items        ItemRegistry
	entitlements EntitlementStore
	notifier     NotificationDispatcher
	recorder     *audit.Recorder
}

// NewPaymentService creates the payment orchestrator
func NewPaymentService(
	repo repository.PaymentRepository,
	gateways *gateway.Registry,
	items ItemRegistry,
	entitlements EntitlementStore,
	notifier NotificationDispatcher,
	recorder *audit.Recorder,
) PaymentService {
	return &paymentService{
		repo:         repo,
		gateways:     gateways,
		items:        items,
		entitlements: entitlements,
		notifier:     notifier,
		recorder:     recorder,
	}
}

// Initialize starts a payment. At most one pending payment exists per
// (user, item): a repeat call returns the earlier record, and a unique
// violation from a concurrent create resolves to the winner's record.
func (s *paymentService) Initialize(ctx context.Context, input *InitializeInput) (*InitializeResult, error) {
	item, err := s.items.Lookup(ctx, input.ItemType, input.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, domain.NewValidationError("ITEM_INACTIVE", "item is not available for purchase")
	}
	if item.Free {
		return nil, domain.NewValidationError("ITEM_FREE", "item does not require payment")
	}

	owned, err := s.entitlements.HasAccess(ctx, input.UserID, input.ItemType, input.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to check entitlement: %w", err)
	}
	if owned {
		return nil, domain.NewValidationError("ALREADY_OWNED", "user already has access to this item")
	}

	if existing, err := s.repo.GetActiveByUserItem(ctx, input.UserID, input.ItemType, input.ItemID); err == nil {
		return s.resumeExisting(existing), nil
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}

	payment, err := domain.NewPayment(input.UserID, input.ItemType, input.ItemID, item.Price, item.Currency, input.Method)
	if err != nil {
		return nil, err
	}

	adapter, err := s.gateways.ForMethod(input.Method)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrPaymentAlreadyExists) {
			// Lost the creation race; the winner's record is the answer
			if winner, getErr := s.repo.GetActiveByUserItem(ctx, input.UserID, input.ItemType, input.ItemID); getErr == nil {
				return s.resumeExisting(winner), nil
			}
		}
		return nil, err
	}

	initResp, err := adapter.Initialize(ctx, &gateway.InitializeRequest{
		Reference: payment.ID,
		Email:     input.Email,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Channel:   input.Method.Channel(),
		Metadata: map[string]string{
			"user_id":   input.UserID,
			"item_type": string(input.ItemType),
			"item_id":   input.ItemID,
		},
	})
	if err != nil {
		// The slot is claimed but the gateway never opened a
		// transaction; release it so the user can retry.
		s.failPayment(ctx, payment, domain.EventPaymentInitFailed, fmt.Sprintf("gateway initialization failed: %v", err), nil, input.Request)
		return nil, err
	}

	if err := s.repo.UpdateGatewayInit(ctx, payment.ID, initResp.Reference, initResp.Raw); err != nil {
		logger.Get().Error(fmt.Sprintf("Failed to persist gateway reference: payment_id=%s: %v", payment.ID, err))
	}
	payment.GatewayReference = initResp.Reference
	payment.GatewayResponse = initResp.Raw

	s.recorder.Success(ctx, payment.ID, domain.EventPaymentInitialized, initResp.Raw, input.Request)
	metrics.RecordPaymentInitialized(ctx, string(payment.Method), payment.Currency, payment.Amount.InexactFloat64())
	s.notify(ctx, EventTypeInitialized, payment, "")

	return &InitializeResult{
		Payment:          payment,
		AuthorizationURL: initResp.AuthorizationURL,
		AccessCode:       initResp.AccessCode,
		ClientSecret:     initResp.ClientSecret,
	}, nil
}

func (s *paymentService) resumeExisting(payment *domain.Payment) *InitializeResult {
	result := &InitializeResult{Payment: payment, Existing: true}
	if payment.GatewayResponse != nil {
		if url, ok := payment.GatewayResponse["authorization_url"].(string); ok {
			result.AuthorizationURL = url
		}
		if code, ok := payment.GatewayResponse["access_code"].(string); ok {
			result.AccessCode = code
		}
		if secret, ok := payment.GatewayResponse["client_secret"].(string); ok {
			result.ClientSecret = secret
		}
	}
	return result
}

// GetPayment retrieves a payment by ID
func (s *paymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUserPayments retrieves a user's payments, newest first
func (s *paymentService) GetUserPayments(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.GetByUserID(ctx, userID, limit, offset)
}

// Verify polls the gateway and applies the resulting transition
func (s *paymentService) Verify(ctx context.Context, id string, req *audit.RequestInfo) (*domain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.IsTerminal() {
		return payment, nil
	}

	adapter, err := s.gateways.ForMethod(payment.Method)
	if err != nil {
		return nil, err
	}

	reference := payment.GatewayReference
	if reference == "" {
		reference = payment.ID
	}

	if err := s.repo.RecordPollAttempt(ctx, payment.ID, time.Now().UTC()); err != nil {
		logger.Get().Warn(fmt.Sprintf("Failed to record poll attempt: payment_id=%s: %v", payment.ID, err))
	}

	started := time.Now()
	result, err := adapter.Verify(ctx, reference)
	metrics.RecordPollAttempt(ctx, payment.Method.GatewayType(), time.Since(started).Seconds())
	if err != nil {
		s.recorder.Error(ctx, payment.ID, domain.EventPollingError, err.Error(), nil, req)
		metrics.RecordPollingError(ctx, payment.Method.GatewayType())
		return nil, err
	}

	if err := s.applyVerification(ctx, payment, result, req); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// applyVerification turns a canonical gateway result into a transition
func (s *paymentService) applyVerification(ctx context.Context, payment *domain.Payment, result *gateway.VerifyResponse, req *audit.RequestInfo) error {
	switch result.Status {
	case gateway.VerificationSuccess:
		return s.completePayment(ctx, payment, result.TransactionID, result.Raw, req)
	case gateway.VerificationFailed:
		declineErr := gateway.ClassifyDecline(result.DeclineCode, "payment was declined")
		s.failPayment(ctx, payment, domain.EventPaymentFailed, declineErr.Code, result.Raw, req)
		return nil
	default:
		// Still pending at the provider; nothing to record beyond the
		// poll attempt itself.
		return nil
	}
}

// completePayment swaps pending->completed and, only on winning the
// swap, grants the entitlement and fans out events.
func (s *paymentService) completePayment(ctx context.Context, payment *domain.Payment, transactionID string, raw map[string]any, req *audit.RequestInfo) error {
	swapped, err := s.repo.UpdateStatusIf(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted, repository.StatusUpdate{
		TransactionID:   transactionID,
		GatewayResponse: raw,
	})
	if err != nil {
		return err
	}
	if !swapped {
		// Another path (webhook, poller, manual verify) won; entitlement
		// was granted there.
		return nil
	}

	s.recorder.Success(ctx, payment.ID, domain.EventPaymentVerified, raw, req)

	if err := s.entitlements.Grant(ctx, payment.UserID, payment.ItemType, payment.ItemID, payment.ID); err != nil {
		// The payment is completed either way; access repair is an
		// operational follow-up, not a rollback.
		logger.Get().Error(fmt.Sprintf("Failed to grant entitlement: payment_id=%s, user_id=%s: %v",
			payment.ID, payment.UserID, err))
		s.recorder.Error(ctx, payment.ID, domain.EventPaymentCompleted, fmt.Sprintf("entitlement grant failed: %v", err), raw, req)
	} else {
		s.recorder.Success(ctx, payment.ID, domain.EventPaymentCompleted, raw, req)
	}

	metrics.RecordPaymentCompleted(ctx, string(payment.Method))
	s.notify(ctx, EventTypeCompleted, payment, "")
	return nil
}

// failPayment swaps pending->failed and fans out on winning the swap
func (s *paymentService) failPayment(ctx context.Context, payment *domain.Payment, eventType, reason string, raw map[string]any, req *audit.RequestInfo) {
	swapped, err := s.repo.UpdateStatusIf(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, repository.StatusUpdate{
		FailureReason:   reason,
		GatewayResponse: raw,
	})
	if err != nil {
		logger.Get().Error(fmt.Sprintf("Failed to mark payment failed: payment_id=%s: %v", payment.ID, err))
		return
	}
	if !swapped {
		return
	}

	s.recorder.Error(ctx, payment.ID, eventType, reason, raw, req)
	metrics.RecordPaymentFailed(ctx, string(payment.Method), reason)
	s.notify(ctx, EventTypeFailed, payment, reason)
}

// Refund moves a completed payment to refunded via the gateway
func (s *paymentService) Refund(ctx context.Context, input *RefundInput) (*domain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s, only completed payments can be refunded",
			domain.ErrRefundFailed, payment.Status)
	}
	if input.Amount.IsNegative() || input.Amount.GreaterThan(payment.Amount) {
		return nil, domain.NewValidationError("INVALID_REFUND_AMOUNT", "refund amount must be between zero and the payment amount")
	}

	adapter, err := s.gateways.ForMethod(payment.Method)
	if err != nil {
		return nil, err
	}

	refundResp, err := adapter.Refund(ctx, &gateway.RefundRequest{
		TransactionID: payment.TransactionID,
		Amount:        input.Amount,
		Currency:      payment.Currency,
		Reason:        input.Reason,
	})
	if err != nil {
		// Gateway said no; the record stays completed
		s.recorder.Error(ctx, payment.ID, domain.EventPaymentRefunded, err.Error(), nil, input.Request)
		return nil, fmt.Errorf("%w: %v", domain.ErrRefundFailed, err)
	}

	swapped, err := s.repo.UpdateStatusIf(ctx, payment.ID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, repository.StatusUpdate{
		GatewayResponse: refundResp.Raw,
	})
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, domain.ErrInvalidPaymentStatus
	}

	s.recorder.Success(ctx, payment.ID, domain.EventPaymentRefunded, refundResp.Raw, input.Request)
	metrics.RecordPaymentRefunded(ctx, string(payment.Method))
	s.notify(ctx, EventTypeRefunded, payment, input.Reason)

	return s.repo.GetByID(ctx, input.PaymentID)
}

// ChargeSavedMethod creates a payment and charges a stored method in
// one pass. The charge may still resolve asynchronously, in which case
// the record stays pending and enters the polling chain.
func (s *paymentService) ChargeSavedMethod(ctx context.Context, input *SavedChargeInput) (*domain.Payment, error) {
	item, err := s.items.Lookup(ctx, input.ItemType, input.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, domain.NewValidationError("ITEM_INACTIVE", "item is not available for purchase")
	}
	if item.Free {
		return nil, domain.NewValidationError("ITEM_FREE", "item does not require payment")
	}

	owned, err := s.entitlements.HasAccess(ctx, input.UserID, input.ItemType, input.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to check entitlement: %w", err)
	}
	if owned {
		return nil, domain.NewValidationError("ALREADY_OWNED", "user already has access to this item")
	}

	// A saved-method charge cannot resume a checkout the way Initialize
	// does; an open pending record blocks it instead.
	if _, err := s.repo.GetActiveByUserItem(ctx, input.UserID, input.ItemType, input.ItemID); err == nil {
		return nil, domain.NewValidationError("PAYMENT_IN_PROGRESS", "a pending payment already exists for this item")
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}

	payment, err := domain.NewPayment(input.UserID, input.ItemType, input.ItemID, item.Price, item.Currency, input.Method)
	if err != nil {
		return nil, err
	}

	adapter, err := s.gateways.ForMethod(input.Method)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrPaymentAlreadyExists) {
			return nil, domain.NewValidationError("PAYMENT_IN_PROGRESS", "a pending payment already exists for this item")
		}
		return nil, err
	}

	result, err := adapter.ChargeSavedMethod(ctx, &gateway.SavedMethodRequest{
		Reference:          payment.ID,
		Email:              input.Email,
		AuthorizationToken: input.AuthorizationToken,
		CustomerID:         input.CustomerID,
		Amount:             payment.Amount,
		Currency:           payment.Currency,
		Metadata: map[string]string{
			"user_id": input.UserID,
			"item_id": input.ItemID,
		},
	})
	if err != nil {
		reason := err.Error()
		if pe, ok := domain.AsPaymentError(err); ok && pe.Kind == domain.ErrorKindCardDecline {
			reason = pe.Code
		}
		s.failPayment(ctx, payment, domain.EventPaymentFailed, reason, nil, input.Request)
		return nil, err
	}

	s.recorder.Success(ctx, payment.ID, domain.EventSavedMethodCharge, result.Raw, input.Request)
	if err := s.applyVerification(ctx, payment, result, input.Request); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, payment.ID)
}

// ApplyGatewayResult applies a webhook-delivered outcome
func (s *paymentService) ApplyGatewayResult(ctx context.Context, reference string, status string, transactionID, declineCode string, raw map[string]any, req *audit.RequestInfo) error {
	payment, err := s.repo.GetByGatewayReference(ctx, reference)
	if err != nil {
		return err
	}

	s.recorder.Success(ctx, payment.ID, domain.EventWebhookReceived, raw, req)

	if payment.IsTerminal() {
		return nil
	}

	result := &gateway.VerifyResponse{
		Status:        gateway.VerificationStatus(status),
		TransactionID: transactionID,
		DeclineCode:   declineCode,
		Raw:           raw,
	}
	return s.applyVerification(ctx, payment, result, req)
}

// ExpirePayment forces a pending payment past its window into failed
func (s *paymentService) ExpirePayment(ctx context.Context, id string) error {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if payment.IsTerminal() {
		return nil
	}
	if !payment.PollingExpired(time.Now().UTC()) {
		return nil
	}

	swapped, err := s.repo.UpdateStatusIf(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, repository.StatusUpdate{
		FailureReason: ReasonPollingExpired,
	})
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	s.recorder.Error(ctx, payment.ID, domain.EventPollingExpired, ReasonPollingExpired, nil, nil)
	metrics.RecordPaymentExpired(ctx, string(payment.Method))
	s.notify(ctx, EventTypeFailed, payment, ReasonPollingExpired)
	return nil
}

// ForceFail moves a pending payment to failed with the given reason
func (s *paymentService) ForceFail(ctx context.Context, id, reason string) error {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if payment.IsTerminal() {
		return nil
	}
	s.failPayment(ctx, payment, domain.EventPaymentFailed, reason, nil, nil)
	return nil
}

// RecordWebhookRejection audits a webhook delivery that failed
// signature verification. The reference may be absent or unknown when
// the payload itself is garbage; in that case only the log line exists.
func (s *paymentService) RecordWebhookRejection(ctx context.Context, reference, provider, reason string, req *audit.RequestInfo) {
	if reference == "" {
		return
	}
	payment, err := s.repo.GetByGatewayReference(ctx, reference)
	if err != nil {
		return
	}
	s.recorder.Error(ctx, payment.ID, domain.EventWebhookRejected,
		fmt.Sprintf("%s webhook rejected: %s", provider, reason), nil, req)
}

// Logs returns the audit trail for a payment
func (s *paymentService) Logs(ctx context.Context, paymentID string, limit, offset int) ([]*domain.PaymentLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.repo.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.recorder.Trail(ctx, paymentID, limit, offset)
}

func (s *paymentService) notify(ctx context.Context, eventType string, payment *domain.Payment, reason string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, &PaymentEvent{
		Type:       eventType,
		PaymentID:  payment.ID,
		UserID:     payment.UserID,
		ItemType:   payment.ItemType,
		ItemID:     payment.ItemID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Method:     string(payment.Method),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}
