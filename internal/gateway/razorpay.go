package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lurnify/backend-payment/internal/domain"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayAdapter talks to the Razorpay REST API over basic auth.
// Initialize creates an order; Verify inspects the payments attempted
// against that order.
type RazorpayAdapter struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

// NewRazorpayAdapter creates a Razorpay adapter
func NewRazorpayAdapter(cfg *Config) (*RazorpayAdapter, error) {
	if cfg == nil || cfg.SecretKey == "" || cfg.PublicKey == "" {
		return nil, domain.NewConfigurationError("RAZORPAY_CONFIG", "razorpay key id and secret are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = razorpayBaseURL
	}
	return &RazorpayAdapter{
		keyID:         cfg.PublicKey,
		keySecret:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the gateway name
func (a *RazorpayAdapter) Name() string {
	return "razorpay"
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayPayment struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	OrderID          string `json:"order_id"`
	ErrorCode        string `json:"error_code"`
	ErrorReason      string `json:"error_reason"`
	ErrorDescription string `json:"error_description"`
}

// Initialize creates an order; the returned reference is the order ID
// the client checkout must pay against.
func (a *RazorpayAdapter) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	body := map[string]any{
		"amount":   toSubunits(req.Amount),
		"currency": req.Currency,
		"receipt":  req.Reference,
	}
	if len(req.Metadata) > 0 {
		body["notes"] = req.Metadata
	}

	var order razorpayOrder
	raw, err := a.call(ctx, http.MethodPost, "/orders", body, &order)
	if err != nil {
		return nil, err
	}

	return &InitializeResponse{
		Reference: order.ID,
		Raw:       raw,
	}, nil
}

// Verify fetches payments for an order and maps the newest attempt
func (a *RazorpayAdapter) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	var payments struct {
		Count int               `json:"count"`
		Items []razorpayPayment `json:"items"`
	}
	raw, err := a.call(ctx, http.MethodGet, "/orders/"+reference+"/payments", nil, &payments)
	if err != nil {
		return nil, err
	}

	resp := &VerifyResponse{Raw: raw}
	if payments.Count == 0 {
		resp.Status = VerificationPending
		return resp, nil
	}

	// Items are oldest-first; the newest attempt decides
	latest := payments.Items[len(payments.Items)-1]
	resp.TransactionID = latest.ID
	resp.Amount = fromSubunits(latest.Amount)
	resp.Currency = latest.Currency

	switch latest.Status {
	case "captured":
		resp.Status = VerificationSuccess
	case "failed":
		resp.Status = VerificationFailed
		resp.DeclineCode = latest.ErrorReason
	default:
		// created, authorized, refunded handled elsewhere
		resp.Status = VerificationPending
	}
	return resp, nil
}

// Refund refunds a captured payment. Zero amount refunds in full.
func (a *RazorpayAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	body := map[string]any{}
	if !req.Amount.IsZero() {
		body["amount"] = toSubunits(req.Amount)
	}
	if req.Reason != "" {
		body["notes"] = map[string]string{"reason": req.Reason}
	}

	var data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := a.call(ctx, http.MethodPost, "/payments/"+req.TransactionID+"/refund", body, &data)
	if err != nil {
		return nil, domain.NewRefundError("RAZORPAY_REFUND", "razorpay refund request failed", err)
	}

	return &RefundResponse{
		RefundID: data.ID,
		Status:   data.Status,
		Raw:      raw,
	}, nil
}

// ChargeSavedMethod charges a saved card token as a recurring payment
func (a *RazorpayAdapter) ChargeSavedMethod(ctx context.Context, req *SavedMethodRequest) (*VerifyResponse, error) {
	body := map[string]any{
		"amount":      toSubunits(req.Amount),
		"currency":    req.Currency,
		"customer_id": req.CustomerID,
		"token":       req.AuthorizationToken,
		"email":       req.Email,
		"recurring":   "1",
	}
	if len(req.Metadata) > 0 {
		body["notes"] = req.Metadata
	}

	var payment razorpayPayment
	raw, err := a.call(ctx, http.MethodPost, "/payments/create/recurring", body, &payment)
	if err != nil {
		return nil, err
	}

	resp := &VerifyResponse{
		TransactionID: payment.ID,
		Amount:        fromSubunits(payment.Amount),
		Currency:      payment.Currency,
		Raw:           raw,
	}
	switch payment.Status {
	case "captured":
		resp.Status = VerificationSuccess
	case "failed":
		resp.Status = VerificationFailed
		resp.DeclineCode = payment.ErrorReason
	default:
		resp.Status = VerificationPending
	}
	return resp, nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header: an
// HMAC-SHA256 of the raw body keyed with the webhook secret, hex encoded.
func (a *RazorpayAdapter) VerifyWebhookSignature(payload []byte, signature string) error {
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrWebhookValidation
	}
	return nil
}

func (a *RazorpayAdapter) call(ctx context.Context, method, path string, body any, out any) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.keyID, a.keySecret)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewGatewayConnectionError("razorpay", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, domain.NewGatewayConnectionError("razorpay", err)
	}

	if httpResp.StatusCode == http.StatusUnauthorized {
		return nil, domain.NewGatewayAuthError("razorpay")
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		msg := apiErr.Error.Description
		if msg == "" {
			msg = fmt.Sprintf("razorpay returned status %d", httpResp.StatusCode)
		}
		return nil, domain.NewProcessingError("RAZORPAY_ERROR", msg, nil)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, domain.NewGatewayConnectionError("razorpay", fmt.Errorf("malformed response: %w", err))
		}
	}

	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)
	return raw, nil
}
