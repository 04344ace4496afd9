package usagelog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of a single entitlement check.
type Outcome string

const (
	OutcomeAllowedPro    Outcome = "allowed_pro"
	OutcomeAllowedCredit Outcome = "allowed_credit"
	OutcomeDenied        Outcome = "denied"
)

// Entry is one immutable usage-log record.
type Entry struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Feature         string
	Outcome         Outcome
	CreditsConsumed int64
	CreatedAt       time.Time
}

// Validate checks required fields before an entry is persisted.
func (e *Entry) Validate() error {
	if e.UserID == uuid.Nil {
		return errors.New("usagelog: user id is required")
	}
	if e.Feature == "" {
		return errors.New("usagelog: feature name is required")
	}
	if e.Outcome == "" {
		return errors.New("usagelog: outcome is required")
	}
	return nil
}

// NewEntry builds a validated entry with a fresh ID and timestamp.
func NewEntry(userID uuid.UUID, feature string, outcome Outcome, creditsConsumed int64) Entry {
	return Entry{
		ID:              uuid.New(),
		UserID:          userID,
		Feature:         feature,
		Outcome:         outcome,
		CreditsConsumed: creditsConsumed,
		CreatedAt:       time.Now().UTC(),
	}
}
