package entitlement

import "errors"

var (
	// ErrRetryExhausted signals that the consumption transaction could not be
	// serialized within the configured attempt budget. The whole request is
	// safe to retry.
	ErrRetryExhausted = errors.New("entitlement: concurrent modification retries exhausted")

	// ErrLedgerUnavailable wraps storage faults from the ledger store.
	ErrLedgerUnavailable = errors.New("entitlement: ledger unavailable")
)
