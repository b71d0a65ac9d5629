// Package event defines the canonical payment event every provider webhook
// is normalized into.
package event

import (
	"errors"
	"fmt"
	"strings"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// ErrMissingField marks a webhook that lacks an order or transaction id.
var ErrMissingField = errors.New("webhook payload is missing a required field")

// Payment is the only webhook shape code outside the adapters sees.
type Payment struct {
	OrderID       string
	TransactionID string
	Outcome       Outcome
}

// Validate reports which identifier is missing.
func (p Payment) Validate() error {
	if strings.TrimSpace(p.OrderID) == "" {
		return fmt.Errorf("%w: orderId", ErrMissingField)
	}
	if strings.TrimSpace(p.TransactionID) == "" {
		return fmt.Errorf("%w: transactionId", ErrMissingField)
	}
	switch p.Outcome {
	case OutcomeCompleted, OutcomePending, OutcomeFailed:
		return nil
	}
	return fmt.Errorf("unknown outcome %q", p.Outcome)
}

func (p Payment) IsTerminal() bool {
	return p.Outcome == OutcomeCompleted || p.Outcome == OutcomeFailed
}
