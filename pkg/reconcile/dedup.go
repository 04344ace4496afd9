package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/pg"
)

// MemoryDeduplicator keeps applied event keys in memory.
// Suitable for tests and single-process deployments; a restart forgets
// history, so production uses the Postgres or Redis implementation.
type MemoryDeduplicator struct {
	mu      sync.Mutex
	applied map[string]EventRecord
}

// NewMemoryDeduplicator creates an empty in-memory deduplicator.
func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{applied: make(map[string]EventRecord)}
}

func dedupKey(gateway ledger.Gateway, externalID string) string {
	return fmt.Sprintf("%s:%s", gateway, externalID)
}

func (d *MemoryDeduplicator) Reserve(ctx context.Context, event EventRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(event.Gateway, event.ExternalID)
	if _, ok := d.applied[key]; ok {
		return false, nil
	}
	d.applied[key] = event
	return true, nil
}

func (d *MemoryDeduplicator) Release(ctx context.Context, gateway ledger.Gateway, externalID string) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrDedupUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.applied, dedupKey(gateway, externalID))
	return nil
}

// PostgresDeduplicator records applied events in the payment_events table.
// The (gateway, external_id) primary key makes the reservation a single
// atomic insert; it doubles as the audit trail of reconciled payments.
type PostgresDeduplicator struct {
	pool *pgxpool.Pool
}

// NewPostgresDeduplicator creates a deduplicator over the given pool.
func NewPostgresDeduplicator(pool *pgxpool.Pool) *PostgresDeduplicator {
	if pool == nil {
		panic("reconcile: pgx pool is required")
	}
	return &PostgresDeduplicator{pool: pool}
}

func (d *PostgresDeduplicator) Reserve(ctx context.Context, event EventRecord) (bool, error) {
	const insertSQL = `
INSERT INTO payment_events (gateway, external_id, raw_status, amount, payer_identifier, received_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (gateway, external_id) DO NOTHING`

	tag, err := d.pool.Exec(ctx, insertSQL,
		string(event.Gateway),
		event.ExternalID,
		event.RawStatus,
		event.Amount,
		event.PayerIdentifier,
		event.ReceivedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (d *PostgresDeduplicator) Release(ctx context.Context, gateway ledger.Gateway, externalID string) error {
	const deleteSQL = `DELETE FROM payment_events WHERE gateway = $1 AND external_id = $2`

	if _, err := d.pool.Exec(ctx, deleteSQL, string(gateway), externalID); err != nil {
		return errors.Join(ErrDedupUnavailable, err)
	}
	return nil
}
