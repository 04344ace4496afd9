package reconcile

import "errors"

var (
	// ErrAuthenticationFailed signals a signature or token mismatch.
	// Terminal; the ledger is never touched.
	ErrAuthenticationFailed = errors.New("reconcile: webhook authentication failed")

	// ErrMalformedPayload signals a body that cannot be parsed into the
	// gateway's payload shape. Terminal; retrying cannot help.
	ErrMalformedPayload = errors.New("reconcile: malformed webhook payload")

	// ErrUnknownBundle signals a paid amount that matches no configured
	// credit bundle. Terminal; needs operator attention, not a retry.
	ErrUnknownBundle = errors.New("reconcile: paid amount matches no credit bundle")

	// ErrUserNotFound signals a payer that resolves to no known account.
	// Terminal for the event; logged for manual reconciliation.
	ErrUserNotFound = errors.New("reconcile: payer does not match a known user")

	// ErrMappingUnavailable signals a transient failure while resolving the
	// payer. Retryable; the sender should redeliver.
	ErrMappingUnavailable = errors.New("reconcile: payer lookup unavailable")

	// ErrApplyFailed signals a ledger write failure after the event was
	// verified and mapped. Retryable; the dedup reservation is released so
	// the redelivery can complete the apply.
	ErrApplyFailed = errors.New("reconcile: failed to apply grant to ledger")

	// ErrDedupUnavailable signals a failure of the idempotency store itself.
	// Retryable.
	ErrDedupUnavailable = errors.New("reconcile: idempotency store unavailable")
)
