package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lurnify/backend-payment/internal/audit"
	"github.com/lurnify/backend-payment/internal/gateway"
	"github.com/lurnify/backend-payment/internal/metrics"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/logger"
)

// Signature headers per provider
const (
	headerPaystackSignature = "X-Paystack-Signature"
	headerStripeSignature   = "Stripe-Signature"
	headerRazorpaySignature = "X-Razorpay-Signature"
)

// WebhookHandler receives gateway callbacks. Webhooks and polling feed
// the same transition path, so a delivery racing a poll is harmless.
type WebhookHandler struct {
	paymentService service.PaymentService
	gateways       *gateway.Registry
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(paymentService service.PaymentService, gateways *gateway.Registry) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		gateways:       gateways,
	}
}

// webhookResult is what provider-specific parsing boils an event down to
type webhookResult struct {
	reference     string
	status        gateway.VerificationStatus
	transactionID string
	declineCode   string
	raw           map[string]any
	// handled is false for event types we acknowledge but ignore
	handled bool
}

// Handle processes POST /webhooks/:provider
func (h *WebhookHandler) Handle(c *gin.Context) {
	log := logger.Get()
	provider := c.Param("provider")

	adapter, err := h.gateways.ForName(provider)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error(fmt.Sprintf("Failed to read webhook body: %v", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader(signatureHeader(provider))
	if err := adapter.VerifyWebhookSignature(payload, signature); err != nil {
		log.Warn(fmt.Sprintf("Rejected %s webhook: invalid signature from %s", provider, c.ClientIP()))
		metrics.RecordWebhookRejected(c.Request.Context(), provider)
		// Best-effort: tie the rejection to a payment's audit trail if
		// the payload names a reference we know.
		if parsed, parseErr := h.parse(provider, payload); parseErr == nil && parsed.reference != "" {
			h.paymentService.RecordWebhookRejection(c.Request.Context(), parsed.reference, provider,
				"invalid signature", &audit.RequestInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	result, err := h.parse(provider, payload)
	if err != nil {
		log.Error(fmt.Sprintf("Failed to parse %s webhook: %v", provider, err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse event"})
		return
	}
	if !result.handled {
		c.JSON(http.StatusOK, gin.H{"received": true, "message": "event type not handled"})
		return
	}

	metrics.RecordWebhookReceived(c.Request.Context(), provider, string(result.status))

	req := &audit.RequestInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	if err := h.paymentService.ApplyGatewayResult(c.Request.Context(), result.reference,
		string(result.status), result.transactionID, result.declineCode, result.raw, req); err != nil {
		// Acknowledge anyway; the polling chain re-checks the gateway
		log.Error(fmt.Sprintf("Failed to apply %s webhook for reference %s: %v", provider, result.reference, err))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func signatureHeader(provider string) string {
	switch provider {
	case "paystack":
		return headerPaystackSignature
	case "stripe":
		return headerStripeSignature
	case "razorpay":
		return headerRazorpaySignature
	default:
		return ""
	}
}

func (h *WebhookHandler) parse(provider string, payload []byte) (*webhookResult, error) {
	switch provider {
	case "paystack":
		return parsePaystackEvent(payload)
	case "stripe":
		return parseStripeEvent(payload)
	case "razorpay":
		return parseRazorpayEvent(payload)
	default:
		return &webhookResult{}, nil
	}
}

func parsePaystackEvent(payload []byte) (*webhookResult, error) {
	var event struct {
		Event string `json:"event"`
		Data  struct {
			ID              json.Number `json:"id"`
			Reference       string      `json:"reference"`
			Status          string      `json:"status"`
			GatewayResponse string      `json:"gateway_response"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &webhookResult{
		reference:     event.Data.Reference,
		transactionID: event.Data.ID.String(),
	}
	switch event.Event {
	case "charge.success":
		result.status = gateway.VerificationSuccess
		result.handled = true
	case "charge.failed":
		result.status = gateway.VerificationFailed
		result.declineCode = event.Data.GatewayResponse
		result.handled = true
	}
	if result.handled {
		raw := map[string]any{}
		_ = json.Unmarshal(payload, &raw)
		result.raw = raw
	}
	return result, nil
}

func parseStripeEvent(payload []byte) (*webhookResult, error) {
	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID               string `json:"id"`
				LastPaymentError *struct {
					DeclineCode string `json:"decline_code"`
					Code        string `json:"code"`
				} `json:"last_payment_error"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &webhookResult{
		reference:     event.Data.Object.ID,
		transactionID: event.Data.Object.ID,
	}
	switch event.Type {
	case "payment_intent.succeeded":
		result.status = gateway.VerificationSuccess
		result.handled = true
	case "payment_intent.payment_failed":
		result.status = gateway.VerificationFailed
		if lpe := event.Data.Object.LastPaymentError; lpe != nil {
			result.declineCode = lpe.DeclineCode
			if result.declineCode == "" {
				result.declineCode = lpe.Code
			}
		}
		result.handled = true
	}
	if result.handled {
		raw := map[string]any{}
		_ = json.Unmarshal(payload, &raw)
		result.raw = raw
	}
	return result, nil
}

func parseRazorpayEvent(payload []byte) (*webhookResult, error) {
	var event struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID          string `json:"id"`
					OrderID     string `json:"order_id"`
					ErrorReason string `json:"error_reason"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &webhookResult{
		reference:     event.Payload.Payment.Entity.OrderID,
		transactionID: event.Payload.Payment.Entity.ID,
	}
	switch event.Event {
	case "payment.captured":
		result.status = gateway.VerificationSuccess
		result.handled = true
	case "payment.failed":
		result.status = gateway.VerificationFailed
		result.declineCode = event.Payload.Payment.Entity.ErrorReason
		result.handled = true
	}
	if result.handled {
		raw := map[string]any{}
		_ = json.Unmarshal(payload, &raw)
		result.raw = raw
	}
	return result, nil
}
