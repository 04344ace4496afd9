package reconcile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

// PostgresApplier reserves the event and applies the grant in a single
// database transaction: the payment_events row and the ledger update commit
// together or not at all. A crash mid-apply rolls both back, so a
// reservation can never outlive a grant that was never credited.
type PostgresApplier struct {
	pool  *pgxpool.Pool
	store *ledger.PostgresStore
}

// NewPostgresApplier creates an applier over the pool shared with store.
func NewPostgresApplier(pool *pgxpool.Pool, store *ledger.PostgresStore) *PostgresApplier {
	if pool == nil {
		panic("reconcile: pgx pool is required")
	}
	if store == nil {
		panic("reconcile: postgres ledger store is required")
	}
	return &PostgresApplier{pool: pool, store: store}
}

func (a *PostgresApplier) ApplyOnce(ctx context.Context, event EventRecord, apply func(ctx context.Context, store ledger.Store) error) (bool, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertSQL = `
INSERT INTO payment_events (gateway, external_id, raw_status, amount, payer_identifier, received_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (gateway, external_id) DO NOTHING`

	tag, err := tx.Exec(ctx, insertSQL,
		string(event.Gateway),
		event.ExternalID,
		event.RawStatus,
		event.Amount,
		event.PayerIdentifier,
		event.ReceivedAt,
	)
	if err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := apply(ctx, a.store.WithTx(tx)); err != nil {
		// Rollback discards the reservation along with the partial apply.
		return true, err
	}

	if err := tx.Commit(ctx); err != nil {
		return true, err
	}
	return true, nil
}
