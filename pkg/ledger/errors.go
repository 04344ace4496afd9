package ledger

import "errors"

var (
	// ErrConcurrentModification signals that the record changed between the
	// caller's read and its ApplyDelta. Safe to retry against fresh state.
	ErrConcurrentModification = errors.New("ledger: record modified concurrently")

	// ErrInsufficientCredits signals a delta that would drive the credit
	// balance negative. The balance is never mutated in that case.
	ErrInsufficientCredits = errors.New("ledger: insufficient credit balance")

	// ErrWriteFailed wraps storage-level failures during a mutation.
	ErrWriteFailed = errors.New("ledger: write failed")

	// ErrReadFailed wraps storage-level failures during a read.
	ErrReadFailed = errors.New("ledger: read failed")
)
