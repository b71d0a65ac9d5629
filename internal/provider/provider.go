package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"paylink/internal/domain/event"
	"paylink/internal/domain/integration"

	"github.com/shopspring/decimal"
)

// Adapter translates between the canonical payment model and one payment
// provider's wire contracts.
type Adapter interface {
	Kind() integration.Kind
	// SignatureHeader is the lower-case header carrying the webhook HMAC.
	SignatureHeader() string
	CreatePaymentLink(ctx context.Context, creds Credentials, req LinkRequest) (*LinkResponse, error)
	// ParseWebhook extracts the canonical event from an unverified body.
	// It returns ErrMalformedPayload for bodies that are not the provider's
	// JSON and event.ErrMissingField when an identifier is absent.
	ParseWebhook(body []byte) (event.Payment, error)
}

// ErrMalformedPayload marks a webhook body that cannot be decoded.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// LinkRequest is validated by the caller before it reaches an adapter.
type LinkRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	CustomerPhone string
	CustomerEmail string
	Description   string
	ReturnURL     string // where the payer lands after checkout
	NotifyURL     string // our webhook endpoint for this provider kind
	TestMode      bool
}

type LinkResponse struct {
	PaymentURL string `json:"paymentUrl"`
	// ProviderRef is the provider-side session/order id when one exists.
	ProviderRef string `json:"providerRef,omitempty"`
}

// Credentials is the decrypted credential object of one provider instance.
type Credentials map[string]any

// String returns the field as text; numeric JSON values are formatted
// without exponent so terminal numbers survive the round trip.
func (c Credentials) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Require fails with ErrInvalidCredentials naming the first missing key.
func (c Credentials) Require(keys ...string) error {
	for _, k := range keys {
		if c.String(k) == "" {
			return &ProviderError{
				Code:    ErrInvalidCredentials,
				Message: fmt.Sprintf("missing credential %q", k),
			}
		}
	}
	return nil
}

// ProviderError is a failure reported by, or about, a payment provider.
// Message is safe to show to the dashboard user.
type ProviderError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	ProviderErr string `json:"provider_error,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.ProviderErr != "" {
		return e.Message + ": " + e.ProviderErr
	}
	return e.Message
}

// Error codes
const (
	ErrInvalidCredentials = "invalid_credentials"
	ErrInvalidAmount      = "invalid_amount"
	ErrProviderDown       = "provider_down"
	ErrRejected           = "request_rejected"
	ErrResponseParse      = "response_parse_failed"
	ErrProviderNotFound   = "provider_not_found"
)
