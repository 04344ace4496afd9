package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Store persists account entitlement records.
//
// Implementations must serialize mutations per user: two ApplyDelta calls
// racing on the same record must not both succeed against the same version.
// Calls for different users proceed independently.
type Store interface {
	// Get returns the record for userID, creating a default free record with
	// the signup bonus on first access. Creation is race-safe: concurrent
	// first-time reads observe a single record and a single bonus grant.
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)

	// ApplyDelta mutates the record under an optimistic version check.
	// Returns ErrConcurrentModification when expectedVersion no longer
	// matches, and ErrInsufficientCredits when the delta would drive the
	// balance negative; the record is unchanged in both cases.
	// On success the updated record is returned.
	ApplyDelta(ctx context.Context, userID uuid.UUID, delta Delta, expectedVersion int64) (*Record, error)
}
