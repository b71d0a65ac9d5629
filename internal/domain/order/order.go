package order

import (
	"fmt"
	"strings"
	"time"

	"paylink/internal/domain/integration"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the order's payment lifecycle.
type PaymentStatus string

const (
	StatusUnpaid         PaymentStatus = "unpaid"
	StatusPaymentPending PaymentStatus = "payment_pending"
	StatusPaid           PaymentStatus = "paid"
	StatusFailed         PaymentStatus = "failed"
)

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusUnpaid:         {StatusPaymentPending, StatusPaid},
	StatusPaymentPending: {StatusPaid, StatusFailed},
	StatusFailed:         {StatusPaymentPending, StatusPaid},
	StatusPaid:           nil,
}

// CanTransition reports whether s may move to next. Paid is final.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Order is the slice of the ordering system's order that payments touch.
type Order struct {
	ID                    string
	BusinessID            string
	CustomerPhone         string
	Amount                decimal.Decimal
	Currency              string
	PaymentStatus         PaymentStatus
	ProviderKind          integration.Kind
	ProviderTransactionID string
	PaidAt                *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func New(id, businessID, phone string, amount decimal.Decimal, currency string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if strings.TrimSpace(businessID) == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %s", amount)
	}
	now := time.Now().UTC()
	return &Order{
		ID:            id,
		BusinessID:    businessID,
		CustomerPhone: strings.TrimSpace(phone),
		Amount:        amount,
		Currency:      strings.ToUpper(currency),
		PaymentStatus: StatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (o *Order) IsPaid() bool { return o.PaymentStatus == StatusPaid }

// MarkPending records that a payment link was issued through kind.
func (o *Order) MarkPending(kind integration.Kind, now time.Time) error {
	if o.PaymentStatus == StatusPaymentPending {
		o.ProviderKind = kind
		o.UpdatedAt = now
		return nil
	}
	if !o.PaymentStatus.CanTransition(StatusPaymentPending) {
		return fmt.Errorf("order %s cannot move from %s to %s", o.ID, o.PaymentStatus, StatusPaymentPending)
	}
	o.PaymentStatus = StatusPaymentPending
	o.ProviderKind = kind
	o.UpdatedAt = now
	return nil
}

// MarkPaid applies the completion transition. It returns false without
// error when the order is already paid.
func (o *Order) MarkPaid(kind integration.Kind, txID string, now time.Time) bool {
	if o.IsPaid() {
		return false
	}
	o.PaymentStatus = StatusPaid
	o.ProviderKind = kind
	o.ProviderTransactionID = txID
	paidAt := now
	o.PaidAt = &paidAt
	o.UpdatedAt = now
	return true
}

// MarkFailed applies a decline. Only a pending order can fail.
func (o *Order) MarkFailed(txID string, now time.Time) bool {
	if !o.PaymentStatus.CanTransition(StatusFailed) {
		return false
	}
	o.PaymentStatus = StatusFailed
	o.ProviderTransactionID = txID
	o.UpdatedAt = now
	return true
}
