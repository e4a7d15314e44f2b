package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lurnify/backend-payment/internal/audit"
	"github.com/lurnify/backend-payment/internal/domain"
	"github.com/lurnify/backend-payment/internal/dto"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/response"
)

// PollScheduler kicks off a verification chain for a fresh payment.
// Nil-able; the sweeper picks up anything the API instance misses.
type PollScheduler interface {
	Schedule(payment *domain.Payment) bool
}

// PaymentHandler handles payment HTTP endpoints
type PaymentHandler struct {
	paymentService service.PaymentService
	accessResolver *service.AccessResolver
	scheduler      PollScheduler
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService service.PaymentService, accessResolver *service.AccessResolver, scheduler PollScheduler) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		accessResolver: accessResolver,
		scheduler:      scheduler,
	}
}

func requestInfo(c *gin.Context) *audit.RequestInfo {
	return &audit.RequestInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// userID resolves the caller from the auth middleware or gateway header
func userID(c *gin.Context) string {
	if id := c.GetString("user_id"); id != "" {
		return id
	}
	return c.GetHeader("X-User-ID")
}

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		response.NotFound(c, "payment not found")
	case errors.Is(err, domain.ErrItemNotFound):
		response.NotFound(c, "item not found")
	case errors.Is(err, domain.ErrPaymentAlreadyExists):
		response.Error(c, http.StatusConflict, "PAYMENT_EXISTS", "a pending payment already exists for this item", "")
	case errors.Is(err, domain.ErrInvalidPaymentStatus):
		response.Error(c, http.StatusBadRequest, "INVALID_STATUS", "payment cannot change state this way in its current status", "")
	case errors.Is(err, domain.ErrUnsupportedGateway), errors.Is(err, domain.ErrGatewayNotConfigured):
		response.Error(c, http.StatusBadRequest, "UNSUPPORTED_GATEWAY", err.Error(), "")
	case errors.Is(err, domain.ErrRefundFailed):
		response.Error(c, http.StatusBadRequest, "REFUND_FAILED", err.Error(), "")
	case domain.IsValidationError(err):
		paymentErr, _ := domain.AsPaymentError(err)
		response.Error(c, http.StatusBadRequest, paymentErr.Code, paymentErr.Message, "")
	case domain.IsCardDecline(err):
		response.Error(c, http.StatusPaymentRequired, "CARD_DECLINED", err.Error(), "")
	case domain.IsGatewayError(err):
		response.Error(c, http.StatusBadGateway, "GATEWAY_ERROR", err.Error(), "")
	default:
		response.InternalError(c, err)
	}
}

// InitializePayment handles POST /api/v1/payments
func (h *PaymentHandler) InitializePayment(c *gin.Context) {
	var req dto.InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
		return
	}

	uid := userID(c)
	if uid == "" {
		response.Unauthorized(c, "user identity is required")
		return
	}

	result, err := h.paymentService.Initialize(c.Request.Context(), &service.InitializeInput{
		UserID:   uid,
		ItemType: req.ItemType,
		ItemID:   req.ItemID,
		Method:   req.Method,
		Email:    req.Email,
		Request:  requestInfo(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if h.scheduler != nil && !result.Existing {
		h.scheduler.Schedule(result.Payment)
	}

	body := &dto.InitializePaymentResponse{
		Payment:          dto.FromPayment(result.Payment),
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		ClientSecret:     result.ClientSecret,
		Existing:         result.Existing,
	}
	if result.Existing {
		response.Success(c, body)
		return
	}
	response.Created(c, body)
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.FromPayment(payment))
}

// GetUserPayments handles GET /api/v1/payments/user/:userId
func (h *PaymentHandler) GetUserPayments(c *gin.Context) {
	uid := c.Param("userId")
	if uid == "" {
		response.BadRequest(c, "user_id is required")
		return
	}

	limit := 20
	offset := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	payments, err := h.paymentService.GetUserPayments(c.Request.Context(), uid, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*dto.PaymentResponse, len(payments))
	for i, p := range payments {
		items[i] = dto.FromPayment(p)
	}
	response.Paginated(c, &dto.PaymentListResponse{Payments: items, Total: len(items)},
		&response.PageMeta{Limit: limit, Offset: offset, Count: len(items)})
}

// VerifyPayment handles POST /api/v1/payments/:id/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	payment, err := h.paymentService.Verify(c.Request.Context(), c.Param("id"), requestInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.FromPayment(payment))
}

// RefundPayment handles POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req dto.RefundPaymentRequest
	// Body is optional; an empty body means a full refund
	_ = c.ShouldBindJSON(&req)

	reason := req.Reason
	if reason == "" {
		reason = "customer_request"
	}

	payment, err := h.paymentService.Refund(c.Request.Context(), &service.RefundInput{
		PaymentID: c.Param("id"),
		Amount:    req.Amount,
		Reason:    reason,
		Request:   requestInfo(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.FromPayment(payment))
}

// ChargeSavedMethod handles POST /api/v1/payments/charge
func (h *PaymentHandler) ChargeSavedMethod(c *gin.Context) {
	var req dto.ChargeSavedMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), "")
		return
	}

	uid := userID(c)
	if uid == "" {
		response.Unauthorized(c, "user identity is required")
		return
	}

	payment, err := h.paymentService.ChargeSavedMethod(c.Request.Context(), &service.SavedChargeInput{
		UserID:             uid,
		ItemType:           req.ItemType,
		ItemID:             req.ItemID,
		Method:             req.Method,
		Email:              req.Email,
		AuthorizationToken: req.AuthorizationToken,
		CustomerID:         req.CustomerID,
		Request:            requestInfo(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, dto.FromPayment(payment))
}

// CheckAccess handles GET /api/v1/payments/access
func (h *PaymentHandler) CheckAccess(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.Unauthorized(c, "user identity is required")
		return
	}

	itemType := domain.ItemType(c.Query("item_type"))
	itemID := c.Query("item_id")
	if itemType == "" || itemID == "" {
		response.BadRequest(c, "item_type and item_id are required")
		return
	}
	method := domain.PaymentMethod(c.Query("method"))

	status, err := h.accessResolver.Resolve(c.Request.Context(), uid, itemType, itemID, method)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, status)
}

// GetPaymentLogs handles GET /api/v1/payments/:id/logs
func (h *PaymentHandler) GetPaymentLogs(c *gin.Context) {
	limit := 50
	offset := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	logs, err := h.paymentService.Logs(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]*dto.PaymentLogResponse, len(logs))
	for i, l := range logs {
		items[i] = dto.FromPaymentLog(l)
	}
	response.Paginated(c, &dto.PaymentLogListResponse{Logs: items, Total: len(items)},
		&response.PageMeta{Limit: limit, Offset: offset, Count: len(items)})
}
