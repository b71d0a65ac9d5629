package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"paylink/internal/domain/integration"
	"paylink/internal/domain/order"
	"paylink/internal/store/repositories"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// orderRepository touches only the payment columns of orders. Every status
// change is a single conditional UPDATE, so concurrent webhook deliveries
// cannot apply the same transition twice.
type orderRepository struct {
	db *pgxpool.Pool
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, business_id, customer_phone, amount::text, currency, payment_status,
		       provider_kind, provider_transaction_id, paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1`, id)

	var (
		o      order.Order
		amount string
		status string
		kind   string
		paidAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.BusinessID, &o.CustomerPhone, &amount, &o.Currency, &status,
		&kind, &o.ProviderTransactionID, &paidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("order %s amount %q: %w", id, amount, err)
	}
	o.PaymentStatus = order.PaymentStatus(status)
	o.ProviderKind = integration.Kind(kind)
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	return &o, nil
}

// SavePending upserts the order as payment_pending unless it is paid.
func (r *orderRepository) SavePending(ctx context.Context, o *order.Order) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO orders (id, business_id, customer_phone, amount, currency,
		                    payment_status, provider_kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, 'payment_pending', $6, now(), now())
		ON CONFLICT (id) DO UPDATE SET
		    amount = EXCLUDED.amount,
		    currency = EXCLUDED.currency,
		    customer_phone = COALESCE(NULLIF(EXCLUDED.customer_phone, ''), orders.customer_phone),
		    payment_status = 'payment_pending',
		    provider_kind = EXCLUDED.provider_kind,
		    updated_at = now()
		WHERE orders.payment_status <> 'paid'`,
		o.ID, o.BusinessID, o.CustomerPhone, o.Amount.String(), o.Currency, string(o.ProviderKind))
	if err != nil {
		return false, fmt.Errorf("save pending order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepository) MarkPaid(ctx context.Context, orderID string, kind integration.Kind, txID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'paid', provider_kind = $2, provider_transaction_id = $3,
		    paid_at = now(), updated_at = now()
		WHERE id = $1 AND payment_status <> 'paid'`, orderID, string(kind), txID)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, orderID)
}

func (r *orderRepository) MarkFailed(ctx context.Context, orderID, txID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'failed', provider_transaction_id = $2, updated_at = now()
		WHERE id = $1 AND payment_status = 'payment_pending'`, orderID, txID)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.mustExist(ctx, orderID)
}

func (r *orderRepository) mustExist(ctx context.Context, orderID string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repositories.ErrNotFound
	}
	return nil
}
