package entitlement

import (
	"time"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/usagelog"
)

// DenialReason is a machine-readable code the caller can branch on.
type DenialReason string

const (
	ReasonNoCredits   DenialReason = "no_credits"
	ReasonNotLoggedIn DenialReason = "not_logged_in"
)

// Decision is the outcome of evaluating a record against a feature cost.
type Decision struct {
	Outcome      usagelog.Outcome
	BalanceDelta int64        // zero for pro, negative cost for credit consumption
	Reason       DenialReason // set only when denied
}

// Allowed reports whether the decision permits the feature.
func (d Decision) Allowed() bool {
	return d.Outcome != usagelog.OutcomeDenied
}

// Evaluate is the pure entitlement decision.
//
// An active pro plan bypasses the credit balance entirely, including at
// balance zero. Expiry is applied lazily via Record.IsProAt, so no
// background job is required. A free (or expired-pro) record is allowed
// when the balance covers the feature cost, otherwise denied with
// ReasonNoCredits.
//
// Authentication is deliberately not checked here: a caller that cannot
// identify the user must short-circuit with ReasonNotLoggedIn before
// touching the ledger.
func Evaluate(record *ledger.Record, cost int64, now time.Time) Decision {
	if record.IsProAt(now) {
		return Decision{Outcome: usagelog.OutcomeAllowedPro, BalanceDelta: 0}
	}
	if record.CreditBalance >= cost {
		return Decision{Outcome: usagelog.OutcomeAllowedCredit, BalanceDelta: -cost}
	}
	return Decision{Outcome: usagelog.OutcomeDenied, Reason: ReasonNoCredits}
}
