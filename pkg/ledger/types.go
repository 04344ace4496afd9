package ledger

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier represents the user's subscription tier.
type PlanTier string

const (
	PlanFree PlanTier = "free"
	PlanPro  PlanTier = "pro"
)

// Gateway identifies a supported payment gateway, kept on the record for audit.
type Gateway string

const (
	GatewayXendit       Gateway = "xendit"
	GatewayLemonSqueezy Gateway = "lemonsqueezy"
)

// Record is the account entitlement record, one per user.
// Version increments on every mutation and backs the optimistic
// concurrency check in Store.ApplyDelta.
type Record struct {
	UserID        uuid.UUID
	Plan          PlanTier
	ProExpiresAt  *time.Time // set while Plan is PlanPro
	CreditBalance int64      // invariant: never negative
	LastGateway   Gateway    // empty until the first reconciled payment
	PaymentStatus string     // raw status of the last reconciled payment
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsProAt reports whether the record grants unlimited entitlement at the
// given instant. Expiry is lazy: a pro record with a past expiry behaves as
// free on every read without any background job flipping the tier.
func (r *Record) IsProAt(now time.Time) bool {
	if r.Plan != PlanPro {
		return false
	}
	return r.ProExpiresAt != nil && r.ProExpiresAt.After(now)
}

// EffectivePlanAt returns the expiry-adjusted plan tier.
func (r *Record) EffectivePlanAt(now time.Time) PlanTier {
	if r.IsProAt(now) {
		return PlanPro
	}
	return PlanFree
}

// Delta describes a single atomic mutation of a record. Zero-valued fields
// leave the corresponding record fields untouched.
type Delta struct {
	AddCredits    int64      // negative for consumption; the store enforces the non-negative floor
	SetPlan       PlanTier   // empty string means "leave plan unchanged"
	ProExpiresAt  *time.Time // applied together with SetPlan
	Gateway       Gateway    // audit: gateway of the payment that caused this delta
	PaymentStatus string     // audit: raw status of that payment
}

// IsZero reports whether the delta would change nothing.
func (d Delta) IsZero() bool {
	return d.AddCredits == 0 && d.SetPlan == "" && d.ProExpiresAt == nil &&
		d.Gateway == "" && d.PaymentStatus == ""
}
