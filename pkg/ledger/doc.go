// Package ledger owns the durable per-user entitlement record: plan tier,
// credit balance and pro-expiry timestamp.
//
// The ledger is the single shared mutable resource in the system. All
// mutations go through Store.ApplyDelta under optimistic concurrency: a
// caller reads a record, decides on a delta and applies it against the
// version it read. A conflicting writer causes ErrConcurrentModification
// and the caller retries against fresh state. Mutations to different users
// never block one another.
//
// Records are created lazily on first read with the configured signup bonus;
// creation is race-safe, so concurrent first-time reads produce exactly one
// record and grant the bonus exactly once.
//
// Two implementations ship with the package: an in-memory store for tests
// and single-process deployments, and a PostgreSQL store using a version
// column for the optimistic check.
package ledger
