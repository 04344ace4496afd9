package entitlement

import (
	"log/slog"
	"time"

	"github.com/ramadanhub/gatekeeper/pkg/retry"
)

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithFeatureCost sets an explicit credit cost for a feature.
// Features without an explicit cost use the default cost.
func WithFeatureCost(feature string, cost int64) ServiceOption {
	return func(s *Service) {
		if feature != "" && cost >= 0 {
			s.costs[feature] = cost
		}
	}
}

// WithDefaultCost sets the cost for features without an explicit entry.
func WithDefaultCost(cost int64) ServiceOption {
	return func(s *Service) {
		if cost >= 0 {
			s.defaultCost = cost
		}
	}
}

// WithMaxAttempts bounds the optimistic-conflict retry loop.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay strategy between conflict retries.
func WithBackoff(b retry.BackoffStrategy) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithUpgradeURL sets the URL returned with no-credits denials.
func WithUpgradeURL(url string) ServiceOption {
	return func(s *Service) {
		if url != "" {
			s.upgradeURL = url
		}
	}
}

// WithLoginURL sets the URL returned with not-logged-in denials.
func WithLoginURL(url string) ServiceOption {
	return func(s *Service) {
		if url != "" {
			s.loginURL = url
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithServiceClock overrides the time source. Intended for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
