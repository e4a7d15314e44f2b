package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/domain"
)

const paystackBaseURL = "https://api.paystack.co"

// PaystackAdapter talks to the Paystack REST API. There is no official
// Go SDK, so this is a thin JSON client over net/http.
type PaystackAdapter struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewPaystackAdapter creates a Paystack adapter
func NewPaystackAdapter(cfg *Config) (*PaystackAdapter, error) {
	if cfg == nil || cfg.SecretKey == "" {
		return nil, domain.NewConfigurationError("PAYSTACK_CONFIG", "paystack secret key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = paystackBaseURL
	}
	return &PaystackAdapter{
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the gateway name
func (a *PaystackAdapter) Name() string {
	return "paystack"
}

// paystackEnvelope is the common response wrapper
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID              int64          `json:"id"`
	Reference       string         `json:"reference"`
	Status          string         `json:"status"`
	GatewayResponse string         `json:"gateway_response"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Channel         string         `json:"channel"`
	AuthorizationURL string        `json:"authorization_url"`
	AccessCode      string         `json:"access_code"`
	Metadata        map[string]any `json:"metadata"`
}

// Initialize starts a Paystack transaction. The channel restricts the
// checkout to one sub-mode when the method carries one.
func (a *PaystackAdapter) Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    toSubunits(req.Amount),
		"currency":  req.Currency,
		"reference": req.Reference,
	}
	if req.Channel != "" {
		body["channels"] = []string{req.Channel}
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var txn paystackTransaction
	raw, err := a.call(ctx, http.MethodPost, "/transaction/initialize", body, &txn)
	if err != nil {
		return nil, err
	}

	return &InitializeResponse{
		Reference:        req.Reference,
		AuthorizationURL: txn.AuthorizationURL,
		AccessCode:       txn.AccessCode,
		Raw:              raw,
	}, nil
}

// Verify fetches the current state of a transaction by reference
func (a *PaystackAdapter) Verify(ctx context.Context, reference string) (*VerifyResponse, error) {
	var txn paystackTransaction
	raw, err := a.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &txn)
	if err != nil {
		return nil, err
	}

	resp := &VerifyResponse{
		TransactionID: fmt.Sprintf("%d", txn.ID),
		Amount:        fromSubunits(txn.Amount),
		Currency:      txn.Currency,
		Raw:           raw,
	}

	switch txn.Status {
	case "success":
		resp.Status = VerificationSuccess
	case "failed", "reversed":
		resp.Status = VerificationFailed
		resp.DeclineCode = txn.GatewayResponse
	default:
		// abandoned, ongoing, pending, processing, queued
		resp.Status = VerificationPending
	}
	return resp, nil
}

// Refund asks Paystack to refund a transaction. Zero amount refunds in full.
func (a *PaystackAdapter) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	body := map[string]any{
		"transaction": req.TransactionID,
	}
	if !req.Amount.IsZero() {
		body["amount"] = toSubunits(req.Amount)
	}
	if req.Reason != "" {
		body["merchant_note"] = req.Reason
	}

	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	raw, err := a.call(ctx, http.MethodPost, "/refund", body, &data)
	if err != nil {
		return nil, domain.NewRefundError("PAYSTACK_REFUND", "paystack refund request failed", err)
	}

	return &RefundResponse{
		RefundID: fmt.Sprintf("%d", data.ID),
		Status:   data.Status,
		Raw:      raw,
	}, nil
}

// ChargeSavedMethod charges a stored authorization without user action
func (a *PaystackAdapter) ChargeSavedMethod(ctx context.Context, req *SavedMethodRequest) (*VerifyResponse, error) {
	body := map[string]any{
		"authorization_code": req.AuthorizationToken,
		"email":              req.Email,
		"amount":             toSubunits(req.Amount),
		"currency":           req.Currency,
		"reference":          req.Reference,
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var txn paystackTransaction
	raw, err := a.call(ctx, http.MethodPost, "/transaction/charge_authorization", body, &txn)
	if err != nil {
		return nil, err
	}

	resp := &VerifyResponse{
		TransactionID: fmt.Sprintf("%d", txn.ID),
		Amount:        fromSubunits(txn.Amount),
		Currency:      txn.Currency,
		Raw:           raw,
	}
	switch txn.Status {
	case "success":
		resp.Status = VerificationSuccess
	case "failed":
		resp.Status = VerificationFailed
		resp.DeclineCode = txn.GatewayResponse
	default:
		resp.Status = VerificationPending
	}
	return resp, nil
}

// VerifyWebhookSignature checks the x-paystack-signature header: an
// HMAC-SHA512 of the raw body keyed with the secret key, hex encoded.
func (a *PaystackAdapter) VerifyWebhookSignature(payload []byte, signature string) error {
	mac := hmac.New(sha512.New, []byte(a.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrWebhookValidation
	}
	return nil
}

// call issues one request and decodes the envelope into out, returning
// the raw data map for audit snapshots.
func (a *PaystackAdapter) call(ctx context.Context, method, path string, body any, out any) (map[string]any, error) {
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
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewGatewayConnectionError("paystack", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, domain.NewGatewayConnectionError("paystack", err)
	}

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		return nil, domain.NewGatewayAuthError("paystack")
	}

	var envelope paystackEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, domain.NewGatewayConnectionError("paystack", fmt.Errorf("malformed response: %w", err))
	}
	if !envelope.Status {
		return nil, domain.NewProcessingError("PAYSTACK_ERROR", envelope.Message, nil)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, domain.NewGatewayConnectionError("paystack", fmt.Errorf("malformed data: %w", err))
		}
	}

	var raw map[string]any
	_ = json.Unmarshal(envelope.Data, &raw)
	return raw, nil
}

// toSubunits converts a major-unit decimal amount to provider subunits
func toSubunits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// fromSubunits converts provider subunits back to a major-unit decimal
func fromSubunits(subunits int64) decimal.Decimal {
	return decimal.NewFromInt(subunits).Div(decimal.NewFromInt(100))
}
