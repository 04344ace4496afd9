// Package entitlement decides whether a user may consume a paid feature and
// charges the ledger for it.
//
// The decision itself is a pure function (Evaluate): given the current
// ledger record and the feature's credit cost it yields allow-via-pro,
// allow-via-credit or deny. The Service wraps that decision in an atomic
// consumption transaction: load the record, evaluate, apply the balance
// delta against the version that was read, and append a usage-log entry.
// Optimistic conflicts are resolved with a bounded retry loop, so two
// simultaneous requests for a user's last credit resolve to exactly one
// allow and one deny.
//
// Denials and missing authentication are ordinary result values, not
// errors; they are expected, frequent, user-facing outcomes. Errors are
// reserved for infrastructure faults and retry exhaustion.
//
// A successful consume means "payment collected". Whether a failed
// generation afterwards refunds the credit is an explicit policy of the
// caller (see Service.Refund), not an automatic behavior.
package entitlement
