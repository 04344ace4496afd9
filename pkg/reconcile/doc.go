// Package reconcile applies inbound payment confirmations to the ledger.
//
// Two gateways deliver webhooks, each with its own authenticity scheme and
// payload shape: Xendit sends a shared callback token in a header and an
// invoice-style JSON body; LemonSqueezy signs the raw body with HMAC-SHA256.
// Both converge on one idempotent apply step.
//
// Every event walks the states
//
//	RECEIVED -> VERIFIED -> MAPPED -> APPLIED | REJECTED
//
// Verification failures are terminal and mutate nothing. Mapping resolves
// the payer to an internal user: LemonSqueezy carries the user id in the
// checkout's custom data, Xendit supplies only the payer email and needs a
// lookup. Apply is the sole idempotency boundary: a (gateway, externalID)
// pair that was already applied becomes a no-op acknowledged as success, so
// webhook retries and duplicate deliveries never double-grant.
//
// Failures after successful verification are reported as retryable so the
// sender's retry policy can complete the apply; parsing is pure and cheap to
// re-derive on redelivery.
package reconcile
