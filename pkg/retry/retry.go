package retry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMaxAttemptsReached wraps the last error once the attempt budget is spent.
	ErrMaxAttemptsReached = errors.New("retry: max attempts reached")

	// ErrInvalidAttempts is returned when maxAttempts is not positive.
	ErrInvalidAttempts = errors.New("retry: max attempts must be positive")
)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error as non-retryable. Do returns the wrapped error
// immediately without consuming further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn up to maxAttempts times, sleeping according to the backoff
// strategy between attempts. It stops early on context cancellation or when
// fn returns an error wrapped with Permanent.
//
// The returned error is nil on success, the permanent error if one occurred,
// the context error on cancellation, or the last attempt's error joined with
// ErrMaxAttemptsReached once the budget is spent.
func Do(ctx context.Context, maxAttempts int, backoff BackoffStrategy, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if backoff == nil {
		backoff = NoBackoff{}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := backoff.NextInterval(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return errors.Join(ErrMaxAttemptsReached, lastErr)
}
