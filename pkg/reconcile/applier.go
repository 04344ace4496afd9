package reconcile

import (
	"context"
	"errors"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

// Applier runs the grant apply under the event's idempotency guard.
//
// ApplyOnce reports won=false without invoking apply when the event was
// already applied. A failed apply must leave the event unreserved so the
// sender's redelivery can complete the grant instead of being acknowledged
// as a duplicate.
type Applier interface {
	ApplyOnce(ctx context.Context, event EventRecord, apply func(ctx context.Context, store ledger.Store) error) (bool, error)
}

// GuardedApplier drives a Deduplicator through the reserve, apply, release
// protocol. The reservation and the grant commit independently, so a crash
// between the two strands the reservation and loses the grant; deployments
// keeping both sides in Postgres should use PostgresApplier, which closes
// that window.
type GuardedApplier struct {
	dedup Deduplicator
	store ledger.Store
}

// NewGuardedApplier wraps dedup and store into an Applier.
func NewGuardedApplier(dedup Deduplicator, store ledger.Store) *GuardedApplier {
	if dedup == nil {
		panic("reconcile: deduplicator is required")
	}
	if store == nil {
		panic("reconcile: ledger store is required")
	}
	return &GuardedApplier{dedup: dedup, store: store}
}

func (a *GuardedApplier) ApplyOnce(ctx context.Context, event EventRecord, apply func(ctx context.Context, store ledger.Store) error) (bool, error) {
	won, err := a.dedup.Reserve(ctx, event)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	if err := apply(ctx, a.store); err != nil {
		// Undo the reservation so the sender's redelivery retries the apply.
		if relErr := a.dedup.Release(ctx, event.Gateway, event.ExternalID); relErr != nil {
			return true, errors.Join(err, relErr)
		}
		return true, err
	}
	return true, nil
}
