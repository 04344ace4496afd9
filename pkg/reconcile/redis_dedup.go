package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

// RedisDeduplicator reserves applied event keys with SETNX.
// Useful when several gatekeeper instances share one ledger database but
// the operator prefers to keep webhook idempotency out of Postgres. Keys
// carry an optional TTL; zero means keys never expire, trading memory for
// protection against arbitrarily late redeliveries.
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicator creates a deduplicator over an established client.
func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	if client == nil {
		panic("reconcile: redis client is required")
	}
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func redisDedupKey(gateway ledger.Gateway, externalID string) string {
	return fmt.Sprintf("reconcile:applied:%s:%s", gateway, externalID)
}

func (d *RedisDeduplicator) Reserve(ctx context.Context, event EventRecord) (bool, error) {
	key := redisDedupKey(event.Gateway, event.ExternalID)

	won, err := d.client.SetNX(ctx, key, event.ReceivedAt.UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	return won, nil
}

func (d *RedisDeduplicator) Release(ctx context.Context, gateway ledger.Gateway, externalID string) error {
	if err := d.client.Del(ctx, redisDedupKey(gateway, externalID)).Err(); err != nil {
		return errors.Join(ErrDedupUnavailable, err)
	}
	return nil
}
