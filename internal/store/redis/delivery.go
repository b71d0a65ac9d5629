// Package redis records handled webhook deliveries so provider redeliveries
// can be acknowledged without touching the order store.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "paylink:webhook:"

// Client is the subset of go-redis the delivery log needs.
type Client interface {
	Exists(ctx context.Context, keys ...string) *goredis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// DeliveryLog is an optimisation only; the order store's compare-and-set
// remains what makes completion idempotent. A nil *DeliveryLog is valid and
// never reports a delivery as seen.
type DeliveryLog struct {
	rdb Client
	ttl time.Duration
}

func NewDeliveryLog(rdb Client, ttl time.Duration) *DeliveryLog {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DeliveryLog{rdb: rdb, ttl: ttl}
}

func key(kind, txID, outcome string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, kind, txID, outcome)
}

// Seen reports whether this (provider, transaction, outcome) was already
// handled.
func (d *DeliveryLog) Seen(ctx context.Context, kind, txID, outcome string) (bool, error) {
	if d == nil || d.rdb == nil {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, key(kind, txID, outcome)).Result()
	if err != nil {
		return false, fmt.Errorf("delivery lookup: %w", err)
	}
	return n > 0, nil
}

// Mark records a handled delivery for the configured TTL.
func (d *DeliveryLog) Mark(ctx context.Context, kind, txID, outcome string) error {
	if d == nil || d.rdb == nil {
		return nil
	}
	if err := d.rdb.Set(ctx, key(kind, txID, outcome), time.Now().UTC().Format(time.RFC3339), d.ttl).Err(); err != nil {
		return fmt.Errorf("delivery mark: %w", err)
	}
	return nil
}

// Connect dials addr and pings it with bounded exponential backoff. An
// empty addr disables the delivery log.
func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.RetryNotify(func() error {
		return rdb.Ping(ctx).Err()
	}, bo, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("addr", addr).Dur("retry_in", wait).Msg("redis not ready")
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", addr).Msg("connected to redis")
	return rdb, nil
}
