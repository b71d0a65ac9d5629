package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// one partial unique index backs the single-primary rule
var schema = []string{
	`CREATE TABLE IF NOT EXISTS businesses (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payment_providers (
		id             TEXT PRIMARY KEY,
		business_id    TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
		kind           TEXT NOT NULL CHECK (kind IN ('stripe','paypal','tranzila','meshulam','cardcom')),
		name           TEXT NOT NULL,
		credentials    TEXT NOT NULL,
		webhook_secret TEXT NOT NULL,
		test_mode      BOOLEAN NOT NULL DEFAULT false,
		is_primary     BOOLEAN NOT NULL DEFAULT false,
		is_active      BOOLEAN NOT NULL DEFAULT true,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payment_providers_one_primary
		ON payment_providers (business_id) WHERE is_primary`,
	`CREATE INDEX IF NOT EXISTS payment_providers_business_kind
		ON payment_providers (business_id, kind) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                      TEXT PRIMARY KEY,
		business_id             TEXT NOT NULL REFERENCES businesses(id),
		customer_phone          TEXT NOT NULL DEFAULT '',
		amount                  NUMERIC(14,2) NOT NULL,
		currency                TEXT NOT NULL,
		payment_status          TEXT NOT NULL DEFAULT 'unpaid',
		provider_kind           TEXT NOT NULL DEFAULT '',
		provider_transaction_id TEXT NOT NULL DEFAULT '',
		paid_at                 TIMESTAMPTZ,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables when absent. It is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
