package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/retry"
	"github.com/ramadanhub/gatekeeper/pkg/usagelog"
)

// Config holds environment-driven entitlement settings.
type Config struct {
	SignupBonus int64  `env:"SIGNUP_BONUS_CREDITS" envDefault:"5"` // SignupBonus credits granted on first ledger access.
	DefaultCost int64  `env:"FEATURE_DEFAULT_COST" envDefault:"1"` // DefaultCost in credits for features without an explicit cost.
	MaxAttempts int    `env:"CONSUME_MAX_ATTEMPTS" envDefault:"5"` // MaxAttempts for resolving optimistic conflicts.
	UpgradeURL  string `env:"UPGRADE_URL" envDefault:"/pricing"`   // UpgradeURL shown with no-credits denials.
	LoginURL    string `env:"LOGIN_URL" envDefault:"/login"`       // LoginURL shown with not-logged-in denials.
}

// Result is the outcome of a consumption attempt. Denials are values, not
// errors: Allowed=false with a Reason is an expected user-facing outcome.
type Result struct {
	Allowed          bool
	Outcome          usagelog.Outcome
	Plan             ledger.PlanTier
	RemainingCredits int64
	Reason           DenialReason // set only when Allowed is false
	UpgradeURL       string       // where to send the user on denial
}

// DisplayState is the read-only, expiry-adjusted view for presentation.
type DisplayState struct {
	IsPro            bool
	CreditsRemaining int64
	ProExpiresAt     *time.Time
}

// Service runs the credit consumption transaction against the ledger.
type Service struct {
	store       ledger.Store
	usage       usagelog.Writer
	log         *slog.Logger
	costs       map[string]int64
	defaultCost int64
	maxAttempts int
	backoff     retry.BackoffStrategy
	upgradeURL  string
	loginURL    string
	now         func() time.Time
}

// NewService creates a Service. Panics when store or usage writer is nil to
// fail fast during initialization.
func NewService(store ledger.Store, usage usagelog.Writer, opts ...ServiceOption) *Service {
	if store == nil {
		panic("entitlement: ledger store is required")
	}
	if usage == nil {
		panic("entitlement: usage log writer is required")
	}

	s := &Service{
		store:       store,
		usage:       usage,
		log:         slog.Default(),
		costs:       make(map[string]int64),
		defaultCost: 1,
		maxAttempts: 5,
		backoff:     retry.ExponentialBackoff{JitterFactor: 0.2},
		upgradeURL:  "/pricing",
		loginURL:    "/login",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CostOf returns the credit cost of a feature.
func (s *Service) CostOf(feature string) int64 {
	if cost, ok := s.costs[feature]; ok {
		return cost
	}
	return s.defaultCost
}

// Consume authorizes one use of the feature for the user carried in ctx.
//
// An unauthenticated context short-circuits with ReasonNotLoggedIn before
// the ledger is touched: that is an authentication outcome, not a ledger
// one, and produces no usage-log entry.
func (s *Service) Consume(ctx context.Context, feature string) (Result, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return Result{
			Allowed:    false,
			Outcome:    usagelog.OutcomeDenied,
			Reason:     ReasonNotLoggedIn,
			UpgradeURL: s.loginURL,
		}, nil
	}
	return s.ConsumeFor(ctx, userID, feature)
}

// ConsumeFor runs the atomic consumption transaction for an already
// verified user.
//
// The check-then-act race is eliminated by applying the balance delta
// against the exact record version the evaluation saw; a conflicting writer
// forces a re-read and re-evaluation. With balance 1 and two concurrent
// calls, exactly one applies the decrement and the loser re-evaluates
// against the drained balance and is denied.
func (s *Service) ConsumeFor(ctx context.Context, userID uuid.UUID, feature string) (Result, error) {
	cost := s.CostOf(feature)

	var res Result
	err := retry.Do(ctx, s.maxAttempts, s.backoff, func(ctx context.Context) error {
		rec, err := s.store.Get(ctx, userID)
		if err != nil {
			return retry.Permanent(errors.Join(ErrLedgerUnavailable, err))
		}

		now := s.now()
		decision := Evaluate(rec, cost, now)

		switch decision.Outcome {
		case usagelog.OutcomeDenied:
			s.appendUsage(ctx, userID, feature, usagelog.OutcomeDenied, 0)
			res = Result{
				Allowed:          false,
				Outcome:          usagelog.OutcomeDenied,
				Plan:             rec.EffectivePlanAt(now),
				RemainingCredits: rec.CreditBalance,
				Reason:           decision.Reason,
				UpgradeURL:       s.upgradeURL,
			}
			return nil

		case usagelog.OutcomeAllowedPro:
			// Pro bypass mutates nothing, so there is no version to defend.
			s.appendUsage(ctx, userID, feature, usagelog.OutcomeAllowedPro, 0)
			res = Result{
				Allowed:          true,
				Outcome:          usagelog.OutcomeAllowedPro,
				Plan:             ledger.PlanPro,
				RemainingCredits: rec.CreditBalance,
			}
			return nil
		}

		updated, err := s.store.ApplyDelta(ctx, userID, ledger.Delta{AddCredits: decision.BalanceDelta}, rec.Version)
		switch {
		case err == nil:
			s.appendUsage(ctx, userID, feature, usagelog.OutcomeAllowedCredit, cost)
			res = Result{
				Allowed:          true,
				Outcome:          usagelog.OutcomeAllowedCredit,
				Plan:             updated.EffectivePlanAt(now),
				RemainingCredits: updated.CreditBalance,
			}
			return nil
		case errors.Is(err, ledger.ErrConcurrentModification), errors.Is(err, ledger.ErrInsufficientCredits):
			// Lost the race; re-read and re-evaluate against fresh state.
			return err
		default:
			return retry.Permanent(errors.Join(ErrLedgerUnavailable, err))
		}
	})
	if err != nil {
		if errors.Is(err, retry.ErrMaxAttemptsReached) {
			return Result{}, errors.Join(ErrRetryExhausted, err)
		}
		return Result{}, err
	}
	return res, nil
}

// Refund applies a compensating credit grant after a failed generation.
// Calling it is a policy decision of the feature handler; a successful
// Consume alone never refunds.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, feature string) error {
	cost := s.CostOf(feature)

	err := retry.Do(ctx, s.maxAttempts, s.backoff, func(ctx context.Context) error {
		rec, err := s.store.Get(ctx, userID)
		if err != nil {
			return retry.Permanent(errors.Join(ErrLedgerUnavailable, err))
		}
		_, err = s.store.ApplyDelta(ctx, userID, ledger.Delta{AddCredits: cost}, rec.Version)
		if errors.Is(err, ledger.ErrConcurrentModification) {
			return err
		}
		if err != nil {
			return retry.Permanent(errors.Join(ErrLedgerUnavailable, err))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, retry.ErrMaxAttemptsReached) {
			return errors.Join(ErrRetryExhausted, err)
		}
		return err
	}
	return nil
}

// DisplayState returns the expiry-adjusted state for presentation layers.
func (s *Service) DisplayState(ctx context.Context, userID uuid.UUID) (DisplayState, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return DisplayState{}, errors.Join(ErrLedgerUnavailable, err)
	}

	state := DisplayState{
		CreditsRemaining: rec.CreditBalance,
	}
	if rec.IsProAt(s.now()) {
		state.IsPro = true
		state.ProExpiresAt = rec.ProExpiresAt
	}
	return state, nil
}

// appendUsage records the entitlement check. Failures go to the operational
// log only; logging must never block or fail the decision.
func (s *Service) appendUsage(ctx context.Context, userID uuid.UUID, feature string, outcome usagelog.Outcome, creditsConsumed int64) {
	entry := usagelog.NewEntry(userID, feature, outcome, creditsConsumed)
	if err := s.usage.Append(ctx, entry); err != nil {
		s.log.ErrorContext(ctx, "failed to append usage log entry",
			"error", err,
			"user_id", userID,
			"feature", feature,
			"outcome", outcome,
		)
	}
}
