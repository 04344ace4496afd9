// Package usagelog records every entitlement check as an append-only entry.
//
// Entries are created exclusively by the entitlement service and never
// mutated afterwards; analytics consumers read the underlying table
// directly and are out of scope here.
//
// Logging is fire-and-forget from the caller's perspective: a failed append
// must never block or fail the entitlement decision. The AsyncWriter
// decorator buffers entries and flushes them on a background goroutine,
// reporting storage failures to the operational logger only.
package usagelog
