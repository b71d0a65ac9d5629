package postgres

import (
	"context"
	"errors"
	"time"

	"paylink/internal/store/repositories"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// MustOpen connects and pings with bounded backoff, then applies the
// schema. Any failure is fatal.
func MustOpen(ctx context.Context, dsn string) *pgxpool.Pool {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect fail")
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 6), ctx)
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, bo, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("db not ready")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("db ping fail")
	}

	if err := Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("db migrate fail")
	}
	return pool
}

// Store groups the repositories over one pool.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{db: db} }

func (s *Store) Businesses() repositories.BusinessRepository { return &businessRepository{db: s.db} }
func (s *Store) Providers() repositories.ProviderRepository  { return &providerRepository{db: s.db} }
func (s *Store) Orders() repositories.OrderRepository        { return &orderRepository{db: s.db} }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.ErrNotFound
	}
	return err
}
