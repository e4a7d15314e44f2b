package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/lurnify/backend-payment/internal/domain"
)

// StripeAdapter implements Adapter on payment intents
type StripeAdapter struct {
	webhookSecret string
}

// NewStripeAdapter creates a Stripe adapter
func NewStripeAdapter(cfg *Config) (*StripeAdapter, error) {
	if cfg == nil || cfg.SecretKey == "" {
		return nil, domain.NewConfigurationError("STRIPE_CONFIG", "stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = cfg.SecretKey

	return &StripeAdapter{
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// Name returns the gateway name
func (a *StripeAdapter) Name() string {
	return "stripe"
}

// Initialize creates a payment intent and returns its client secret
func (a *StripeAdapter) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toSubunits(req.Amount)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{"reference": req.Reference},
	}
	params.Context = ctx
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	return &InitializeResponse{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Raw:          intentSnapshot(pi),
	}, nil
}

// Verify fetches a payment intent and maps its status
func (a *StripeAdapter) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(reference, params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	resp := &VerifyResponse{
		TransactionID: pi.ID,
		Amount:        fromSubunits(pi.Amount),
		Currency:      string(pi.Currency),
		Raw:           intentSnapshot(pi),
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		resp.Status = VerificationSuccess
	case stripe.PaymentIntentStatusCanceled:
		resp.Status = VerificationFailed
		if pi.LastPaymentError != nil {
			resp.DeclineCode = string(pi.LastPaymentError.DeclineCode)
		}
	default:
		// requires_payment_method, requires_confirmation,
		// requires_action, processing, requires_capture
		resp.Status = VerificationPending
	}
	return resp, nil
}

// Refund refunds a payment intent. Zero amount refunds in full.
func (a *StripeAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
	}
	params.Context = ctx
	if !req.Amount.IsZero() {
		params.Amount = stripe.Int64(toSubunits(req.Amount))
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}

	r, err := refund.New(params)
	if err != nil {
		return nil, domain.NewRefundError("STRIPE_REFUND", "stripe refund request failed", err)
	}

	return &RefundResponse{
		RefundID: r.ID,
		Status:   string(r.Status),
		Raw:      map[string]any{"id": r.ID, "status": string(r.Status)},
	}, nil
}

// ChargeSavedMethod confirms an off-session intent against a saved
// payment method.
func (a *StripeAdapter) ChargeSavedMethod(ctx context.Context, req *SavedMethodRequest) (*VerifyResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toSubunits(req.Amount)),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.AuthorizationToken),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Metadata:      map[string]string{"reference": req.Reference},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	resp := &VerifyResponse{
		TransactionID: pi.ID,
		Amount:        fromSubunits(pi.Amount),
		Currency:      string(pi.Currency),
		Raw:           intentSnapshot(pi),
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		resp.Status = VerificationSuccess
	case stripe.PaymentIntentStatusCanceled:
		resp.Status = VerificationFailed
	default:
		resp.Status = VerificationPending
	}
	return resp, nil
}

// VerifyWebhookSignature validates the Stripe-Signature header
func (a *StripeAdapter) VerifyWebhookSignature(payload []byte, signature string) error {
	if _, err := webhook.ConstructEvent(payload, signature, a.webhookSecret); err != nil {
		return domain.NewWebhookError("STRIPE_SIGNATURE", "stripe webhook signature mismatch", err)
	}
	return nil
}

// wrapError converts a stripe-go error into the domain taxonomy.
// Transport failures never carry a *stripe.Error; they fall through to
// the connection wrapper.
func (a *StripeAdapter) wrapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return domain.NewGatewayAuthError("stripe")
		}
		if stripeErr.Type == stripe.ErrorTypeCard {
			code := string(stripeErr.DeclineCode)
			if code == "" {
				code = string(stripeErr.Code)
			}
			return ClassifyDecline(code, stripeErr.Msg)
		}
		return domain.NewProcessingError("STRIPE_ERROR", stripeErr.Msg, err)
	}
	return domain.NewGatewayConnectionError("stripe", err)
}

// intentSnapshot flattens a payment intent into an audit-friendly map
func intentSnapshot(pi *stripe.PaymentIntent) map[string]any {
	encoded, err := json.Marshal(pi)
	if err != nil {
		return map[string]any{"id": pi.ID, "status": string(pi.Status)}
	}
	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return map[string]any{"id": pi.ID, "status": string(pi.Status)}
	}
	return raw
}
