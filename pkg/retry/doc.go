// Package retry provides bounded retry execution with pluggable backoff
// strategies.
//
// The package exists so that every retry loop in the application has explicit
// maximum-attempt and cancellation semantics instead of relying on ambient
// platform behavior. It is used by the entitlement service to resolve
// optimistic-concurrency conflicts and by the payment reconciliation handler
// for transient lookups.
//
// # Usage
//
//	err := retry.Do(ctx, 5, retry.ExponentialBackoff{}, func(ctx context.Context) error {
//	    return store.ApplyDelta(ctx, userID, delta, version)
//	})
//
// Wrap errors with retry.Permanent to stop retrying early:
//
//	return retry.Permanent(err)
package retry
