package base

import (
	"fmt"
	"regexp"
	"strings"

	"paylink/internal/provider"

	"github.com/shopspring/decimal"
)

// DefaultCurrency applies when a link request names none.
const DefaultCurrency = "ILS"

// FieldError names the request field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	phonePattern    = regexp.MustCompile(`^\+?\d{7,15}$`)
)

// NormalizePhone strips formatting characters and checks the remaining
// digits look like a dialable number.
func NormalizePhone(phone string) (string, error) {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	normalized := r.Replace(strings.TrimSpace(phone))
	if normalized == "" {
		return "", &FieldError{Field: "customerPhone", Message: "customerPhone is required"}
	}
	if !phonePattern.MatchString(normalized) {
		return "", &FieldError{Field: "customerPhone", Message: "customerPhone is not a valid phone number"}
	}
	return normalized, nil
}

// ValidateAmount rejects zero and negative amounts and more than two
// decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &FieldError{Field: "amount", Message: "amount must be greater than zero"}
	}
	if !amount.Equal(amount.Round(2)) {
		return &FieldError{Field: "amount", Message: "amount must have at most two decimal places"}
	}
	return nil
}

// ValidateLinkRequest checks and normalizes a link request in place. It
// runs once before any provider is contacted.
func ValidateLinkRequest(req *provider.LinkRequest) error {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return &FieldError{Field: "orderId", Message: "orderId is required"}
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return err
	}

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(req.Currency) {
		return &FieldError{Field: "currency", Message: fmt.Sprintf("currency %q is not an ISO 4217 code", req.Currency)}
	}

	phone, err := NormalizePhone(req.CustomerPhone)
	if err != nil {
		return err
	}
	req.CustomerPhone = phone
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.Description = strings.TrimSpace(req.Description)
	return nil
}

// zero-decimal currencies per Stripe's list
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// MinorUnits converts a major-unit amount to the provider's smallest unit.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// FormatAmount renders a major-unit amount with two decimals.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Description falls back to a generic label naming the order.
func Description(req provider.LinkRequest) string {
	if req.Description != "" {
		return req.Description
	}
	return "Order " + req.OrderID
}
