// Package pg provides PostgreSQL connection helpers for the gatekeeper
// service: a retrying pool constructor, goose-based schema migrations and
// shared error classification for pgx.
//
// The ledger, usage log and payment-event tables all live in the same
// database; this package owns the pool they share.
package pg
