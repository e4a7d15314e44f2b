package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the payment domain
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists for this item")
	ErrInvalidPaymentStatus = errors.New("invalid payment status transition")
	ErrRefundFailed         = errors.New("refund failed")
	ErrGatewayNotConfigured = errors.New("gateway not configured")
	ErrUnsupportedGateway   = errors.New("unsupported payment gateway")
	ErrWebhookValidation    = errors.New("webhook signature validation failed")
	ErrItemNotFound         = errors.New("item not found")
)

// ErrorKind classifies a PaymentError for handler mapping and metrics
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindProcessing    ErrorKind = "processing"
	ErrorKindCardDecline   ErrorKind = "card_decline"
	ErrorKindRefund        ErrorKind = "refund"
	ErrorKindWebhook       ErrorKind = "webhook"
	ErrorKindGateway       ErrorKind = "gateway"
)

// PaymentError carries a kind, a machine code and a human message.
// Gateway adapters wrap provider failures into this before returning.
type PaymentError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation-kind error
func NewValidationError(code, message string) *PaymentError {
	return &PaymentError{Kind: ErrorKindValidation, Code: code, Message: message}
}

// NewConfigurationError creates a configuration-kind error
func NewConfigurationError(code, message string) *PaymentError {
	return &PaymentError{Kind: ErrorKindConfiguration, Code: code, Message: message}
}

// NewProcessingError creates a processing-kind error wrapping the cause
func NewProcessingError(code, message string, err error) *PaymentError {
	return &PaymentError{Kind: ErrorKindProcessing, Code: code, Message: message, Err: err}
}

// NewCardDeclineError creates a card_decline-kind error from a provider
// decline code (card_declined, expired_card, invalid_cvc,
// insufficient_funds).
func NewCardDeclineError(code, message string) *PaymentError {
	return &PaymentError{Kind: ErrorKindCardDecline, Code: code, Message: message}
}

// NewRefundError creates a refund-kind error wrapping the cause
func NewRefundError(code, message string, err error) *PaymentError {
	return &PaymentError{Kind: ErrorKindRefund, Code: code, Message: message, Err: err}
}

// NewWebhookError creates a webhook-kind error
func NewWebhookError(code, message string, err error) *PaymentError {
	return &PaymentError{Kind: ErrorKindWebhook, Code: code, Message: message, Err: err}
}

// NewGatewayConnectionError wraps a transport failure reaching a provider
func NewGatewayConnectionError(gateway string, err error) *PaymentError {
	return &PaymentError{
		Kind:    ErrorKindGateway,
		Code:    "GATEWAY_CONNECTION",
		Message: fmt.Sprintf("failed to reach %s", gateway),
		Err:     err,
	}
}

// NewGatewayAuthError wraps a credential rejection from a provider
func NewGatewayAuthError(gateway string) *PaymentError {
	return &PaymentError{
		Kind:    ErrorKindGateway,
		Code:    "GATEWAY_AUTH",
		Message: fmt.Sprintf("%s rejected the configured credentials", gateway),
	}
}

// AsPaymentError unwraps err into a *PaymentError if one is in the chain
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsValidationError returns true if err is a validation-kind PaymentError
func IsValidationError(err error) bool {
	if pe, ok := AsPaymentError(err); ok {
		return pe.Kind == ErrorKindValidation
	}
	return false
}

// IsCardDecline returns true if err is a card_decline-kind PaymentError
func IsCardDecline(err error) bool {
	if pe, ok := AsPaymentError(err); ok {
		return pe.Kind == ErrorKindCardDecline
	}
	return false
}

// IsGatewayError returns true for connection/auth failures talking to a provider
func IsGatewayError(err error) bool {
	if pe, ok := AsPaymentError(err); ok {
		return pe.Kind == ErrorKindGateway
	}
	return false
}

// IsNotFound returns true for the not-found sentinels
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrItemNotFound)
}
