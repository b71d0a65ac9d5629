package repositories

import (
	"context"
	"errors"

	"paylink/internal/domain/business"
	"paylink/internal/domain/integration"
	"paylink/internal/domain/order"
)

// ErrNotFound is returned for absent records and for records that exist
// under a different business.
var ErrNotFound = errors.New("record not found")

// BusinessRepository defines the contract for business data access
type BusinessRepository interface {
	Create(ctx context.Context, b *business.Business) error
	FindByID(ctx context.Context, id string) (*business.Business, error)
}

// ProviderRepository is the only writer of payment provider records.
// Insert and Update keep at most one primary provider per business: when
// the written provider is primary, every other provider of the business
// loses the flag atomically with the write.
type ProviderRepository interface {
	Insert(ctx context.Context, p *integration.PaymentProvider) error
	Update(ctx context.Context, p *integration.PaymentProvider) error
	FindByID(ctx context.Context, businessID, id string) (*integration.PaymentProvider, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*integration.PaymentProvider, error)
	FindActiveByKind(ctx context.Context, businessID string, kind integration.Kind) (*integration.PaymentProvider, error)
	Delete(ctx context.Context, businessID, id string) error
}

// OrderRepository covers the payment fields of orders.
type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*order.Order, error)
	// SavePending inserts o as payment_pending or moves the stored order
	// there. A paid order is left untouched and reported as applied=false.
	SavePending(ctx context.Context, o *order.Order) (applied bool, err error)
	// MarkPaid is a compare-and-set on status != paid.
	MarkPaid(ctx context.Context, orderID string, kind integration.Kind, txID string) (applied bool, err error)
	// MarkFailed only moves a payment_pending order.
	MarkFailed(ctx context.Context, orderID, txID string) (applied bool, err error)
}
