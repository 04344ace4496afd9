// Package redis provides a retrying Redis connection helper.
//
// The gatekeeper uses Redis optionally, as a shared webhook idempotency
// store for deployments that run multiple instances in front of the same
// ledger (see pkg/reconcile).
package redis
