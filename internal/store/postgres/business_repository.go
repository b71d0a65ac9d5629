package postgres

import (
	"context"

	"paylink/internal/domain/business"

	"github.com/jackc/pgx/v5/pgxpool"
)

// businessRepository implements BusinessRepository with pure data access
type businessRepository struct {
	db *pgxpool.Pool
}

func (r *businessRepository) Create(ctx context.Context, b *business.Business) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO businesses (id, owner_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		b.ID, b.OwnerID, b.Name, b.CreatedAt)
	return err
}

// FindByID loads the business with its provider ids in creation order.
func (r *businessRepository) FindByID(ctx context.Context, id string) (*business.Business, error) {
	row := r.db.QueryRow(ctx, `
		SELECT b.id, b.owner_id, b.name, b.created_at,
		       COALESCE(array_agg(p.id ORDER BY p.created_at) FILTER (WHERE p.id IS NOT NULL), '{}')
		FROM businesses b
		LEFT JOIN payment_providers p ON p.business_id = b.id
		WHERE b.id = $1
		GROUP BY b.id`, id)

	var b business.Business
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.CreatedAt, &b.PaymentProviders); err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}
