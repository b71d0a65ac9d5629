package postgres

import (
	"context"
	"fmt"

	"paylink/internal/domain/integration"
	"paylink/internal/store/repositories"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const providerColumns = `id, business_id, kind, name, credentials, webhook_secret,
	test_mode, is_primary, is_active, created_at, updated_at`

// providerRepository writes providers inside a transaction that holds the
// business row lock, so concurrent primary flips serialize per business.
type providerRepository struct {
	db *pgxpool.Pool
}

func (r *providerRepository) Insert(ctx context.Context, p *integration.PaymentProvider) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockBusiness(ctx, tx, p.BusinessID); err != nil {
			return err
		}
		if p.IsPrimary {
			if err := unsetPrimary(ctx, tx, p.BusinessID, p.ID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_providers (`+providerColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.BusinessID, string(p.Kind), p.Name, p.Credentials, p.WebhookSecret,
			p.TestMode, p.IsPrimary, p.IsActive, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert provider: %w", err)
		}
		return nil
	})
}

func (r *providerRepository) Update(ctx context.Context, p *integration.PaymentProvider) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockBusiness(ctx, tx, p.BusinessID); err != nil {
			return err
		}
		if p.IsPrimary {
			if err := unsetPrimary(ctx, tx, p.BusinessID, p.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE payment_providers
			SET name = $1, credentials = $2, webhook_secret = $3, test_mode = $4,
			    is_primary = $5, is_active = $6, updated_at = $7
			WHERE id = $8 AND business_id = $9`,
			p.Name, p.Credentials, p.WebhookSecret, p.TestMode,
			p.IsPrimary, p.IsActive, p.UpdatedAt, p.ID, p.BusinessID)
		if err != nil {
			return fmt.Errorf("update provider: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repositories.ErrNotFound
		}
		return nil
	})
}

func (r *providerRepository) FindByID(ctx context.Context, businessID, id string) (*integration.PaymentProvider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM payment_providers
		WHERE id = $1 AND business_id = $2`, id, businessID)
	p, err := scanProvider(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *providerRepository) ListByBusiness(ctx context.Context, businessID string) ([]*integration.PaymentProvider, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+providerColumns+`
		FROM payment_providers
		WHERE business_id = $1
		ORDER BY is_primary DESC, created_at ASC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*integration.PaymentProvider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindActiveByKind prefers the primary when a business has several active
// providers of the same kind.
func (r *providerRepository) FindActiveByKind(ctx context.Context, businessID string, kind integration.Kind) (*integration.PaymentProvider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM payment_providers
		WHERE business_id = $1 AND kind = $2 AND is_active
		ORDER BY is_primary DESC, created_at ASC
		LIMIT 1`, businessID, string(kind))
	p, err := scanProvider(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *providerRepository) Delete(ctx context.Context, businessID, id string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM payment_providers
		WHERE id = $1 AND business_id = $2`, id, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func lockBusiness(ctx context.Context, tx pgx.Tx, businessID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM businesses WHERE id = $1 FOR UPDATE`, businessID).Scan(&id)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func unsetPrimary(ctx context.Context, tx pgx.Tx, businessID, exceptID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payment_providers
		SET is_primary = false, updated_at = now()
		WHERE business_id = $1 AND id <> $2 AND is_primary`, businessID, exceptID)
	if err != nil {
		return fmt.Errorf("unset primary: %w", err)
	}
	return nil
}

func scanProvider(row pgx.Row) (*integration.PaymentProvider, error) {
	var p integration.PaymentProvider
	var kind string
	err := row.Scan(
		&p.ID, &p.BusinessID, &kind, &p.Name, &p.Credentials, &p.WebhookSecret,
		&p.TestMode, &p.IsPrimary, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Kind = integration.Kind(kind)
	return &p, nil
}
