package gateway

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/domain"
)

// VerificationStatus is the canonical status an adapter reports after
// mapping a provider-specific transaction state.
type VerificationStatus string

const (
	VerificationSuccess VerificationStatus = "success"
	VerificationFailed  VerificationStatus = "failed"
	VerificationPending VerificationStatus = "pending"
)

// InitializeRequest starts a new transaction with a provider
type InitializeRequest struct {
	Reference string // payment ID, used as the provider-side reference
	Email     string
	Amount    decimal.Decimal
	Currency  string
	Channel   string // provider sub-mode: ussd, bank_transfer, mobile_money
	Metadata  map[string]string
}

// InitializeResponse carries what the client needs to complete payment
type InitializeResponse struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
	ClientSecret     string // Stripe payment intents
	Raw              map[string]any
}

// VerifyResponse is the adapter's canonical view of a transaction
type VerifyResponse struct {
	Status        VerificationStatus
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	DeclineCode   string // provider decline code when Status is failed
	Raw           map[string]any
}

// RefundRequest asks the provider to return funds for a transaction.
// A zero Amount means a full refund.
type RefundRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Reason        string
}

// RefundResponse reports the provider-side refund record
type RefundResponse struct {
	RefundID string
	Status   string
	Raw      map[string]any
}

// SavedMethodRequest charges a previously authorized payment method
// without user interaction.
type SavedMethodRequest struct {
	Reference          string
	Email              string
	AuthorizationToken string // Paystack authorization_code / Stripe payment method ID
	CustomerID         string // Stripe customer the method belongs to
	Amount             decimal.Decimal
	Currency           string
	Metadata           map[string]string
}

// Adapter is the provider-neutral surface the orchestrator talks to.
// Implementations wrap connection and credential failures into
// domain.PaymentError before returning.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResponse, error)
	Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error)
	ChargeSavedMethod(ctx context.Context, req *SavedMethodRequest) (*VerifyResponse, error)
	VerifyWebhookSignature(payload []byte, signature string) error
}

// FeeSchedule is the flat + percentage fee a gateway charges per
// transaction, used for price quotes.
type FeeSchedule struct {
	Flat    decimal.Decimal
	Percent decimal.Decimal // e.g. 1.5 means 1.5%
}

// Apply returns amount plus the gateway fee, rounded to 2 places
func (f FeeSchedule) Apply(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(f.Percent).Div(decimal.NewFromInt(100)).Add(f.Flat)
	return amount.Add(fee).Round(2)
}

// Config holds one provider's credentials and fee schedule
type Config struct {
	Enabled       bool
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	BaseURL       string // override for tests; providers have defaults
	Fees          FeeSchedule
}

// Registry resolves payment methods to configured adapters
type Registry struct {
	adapters map[string]Adapter
	fees     map[string]FeeSchedule
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		fees:     make(map[string]FeeSchedule),
	}
}

// Register adds an adapter under its gateway name
func (r *Registry) Register(adapter Adapter, fees FeeSchedule) {
	r.adapters[adapter.Name()] = adapter
	r.fees[adapter.Name()] = fees
}

// ForMethod returns the adapter serving a payment method. Paystack
// sub-modes resolve to the paystack adapter.
func (r *Registry) ForMethod(method domain.PaymentMethod) (Adapter, error) {
	name := method.GatewayType()
	if name == "" {
		return nil, domain.ErrUnsupportedGateway
	}
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, domain.ErrGatewayNotConfigured
	}
	return adapter, nil
}

// ForName returns the adapter registered under a gateway name
func (r *Registry) ForName(name string) (Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, domain.ErrGatewayNotConfigured
	}
	return adapter, nil
}

// Names returns the registered gateway names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FeesFor returns the fee schedule for a payment method's gateway
func (r *Registry) FeesFor(method domain.PaymentMethod) (FeeSchedule, bool) {
	fees, ok := r.fees[method.GatewayType()]
	return fees, ok
}

// declineCodes maps provider decline reasons onto the canonical set
var declineCodes = map[string]string{
	"card_declined":        "card_declined",
	"declined":             "card_declined",
	"do_not_honor":         "card_declined",
	"transaction_declined": "card_declined",
	"expired_card":         "expired_card",
	"card_expired":         "expired_card",
	"invalid_cvc":          "invalid_cvc",
	"incorrect_cvc":        "invalid_cvc",
	"invalid_cvv":          "invalid_cvc",
	"insufficient_funds":   "insufficient_funds",
	"insufficient_balance": "insufficient_funds",
}

// ClassifyDecline maps a provider decline code to a canonical card
// decline error, or a generic processing failure when unrecognized.
func ClassifyDecline(providerCode, message string) *domain.PaymentError {
	if canonical, ok := declineCodes[providerCode]; ok {
		return domain.NewCardDeclineError(canonical, message)
	}
	return domain.NewProcessingError("CHARGE_FAILED", message, nil)
}
