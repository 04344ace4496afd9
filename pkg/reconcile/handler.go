package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/retry"
)

// Config holds environment-driven reconciliation settings.
type Config struct {
	XenditCallbackToken string        `env:"XENDIT_CALLBACK_TOKEN"`                  // XenditCallbackToken is the shared webhook token.
	LemonSqueezySecret  string        `env:"LEMONSQUEEZY_WEBHOOK_SECRET"`            // LemonSqueezySecret signs LemonSqueezy webhook bodies.
	ProPassDuration     time.Duration `env:"PRO_PASS_DURATION" envDefault:"720h"`    // ProPassDuration is the pro grant length (30 days).
	ResolveMaxAttempts  int           `env:"RESOLVE_MAX_ATTEMPTS" envDefault:"3"`    // ResolveMaxAttempts bounds transient payer lookups.
	ApplyMaxAttempts    int           `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"5"`  // ApplyMaxAttempts bounds optimistic ledger conflicts.
}

// DefaultBundles returns the purchasable credit bundles with IDR pricing.
func DefaultBundles() []Bundle {
	return []Bundle{
		{Code: "starter", Credits: 50, Price: 25_000},
		{Code: "popular", Credits: 150, Price: 60_000},
		{Code: "power", Credits: 500, Price: 150_000},
	}
}

// Handler drives an inbound payment event through verification, mapping and
// the idempotent apply against the ledger.
type Handler struct {
	applier  Applier
	resolver UserResolver
	log      *slog.Logger
	cfg      Config
	bundles  []Bundle
	backoff  retry.BackoffStrategy
	now      func() time.Time
}

// HandlerOption configures optional Handler settings.
type HandlerOption func(*Handler)

// WithBundles replaces the default credit bundle table.
func WithBundles(bundles []Bundle) HandlerOption {
	return func(h *Handler) {
		if len(bundles) > 0 {
			h.bundles = bundles
		}
	}
}

// WithHandlerLogger sets the operational logger.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHandlerBackoff sets the delay strategy for retryable internal steps.
func WithHandlerBackoff(b retry.BackoffStrategy) HandlerOption {
	return func(h *Handler) {
		if b != nil {
			h.backoff = b
		}
	}
}

// WithHandlerClock overrides the time source. Intended for tests.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithApplier replaces the idempotency guard around the grant apply.
// Postgres deployments pass PostgresApplier here so the reservation and the
// ledger update commit atomically; it takes precedence over the
// Deduplicator given to NewHandler.
func WithApplier(a Applier) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.applier = a
		}
	}
}

// NewHandler creates a reconciliation handler. Panics if required
// dependencies are nil to fail fast during initialization.
//
// A nil dedup is allowed only when WithApplier supplies the idempotency
// guard instead.
func NewHandler(store ledger.Store, dedup Deduplicator, resolver UserResolver, cfg Config, opts ...HandlerOption) *Handler {
	if store == nil {
		panic("reconcile: ledger store is required")
	}
	if resolver == nil {
		panic("reconcile: user resolver is required")
	}
	if cfg.ProPassDuration <= 0 {
		cfg.ProPassDuration = 720 * time.Hour
	}
	if cfg.ResolveMaxAttempts <= 0 {
		cfg.ResolveMaxAttempts = 3
	}
	if cfg.ApplyMaxAttempts <= 0 {
		cfg.ApplyMaxAttempts = 5
	}

	h := &Handler{
		resolver: resolver,
		log:      slog.Default(),
		cfg:      cfg,
		bundles:  DefaultBundles(),
		backoff:  retry.ExponentialBackoff{InitialInterval: 50 * time.Millisecond, JitterFactor: 0.2},
		now:      time.Now,
	}
	if dedup != nil {
		h.applier = NewGuardedApplier(dedup, store)
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.applier == nil {
		panic("reconcile: deduplicator or applier is required")
	}
	return h
}

// Handle processes one inbound webhook delivery.
//
// The returned error classifies the failure for the transport layer:
// ErrAuthenticationFailed and ErrMalformedPayload/ErrUnknownBundle are
// terminal client errors, ErrMappingUnavailable/ErrApplyFailed/
// ErrDedupUnavailable are retryable server errors. A nil error with
// Receipt.AlreadyApplied or Receipt.Ignored set is an acknowledged no-op.
func (h *Handler) Handle(ctx context.Context, gateway ledger.Gateway, body []byte, headers http.Header) (Receipt, error) {
	// RECEIVED -> VERIFIED
	if err := h.verify(gateway, body, headers); err != nil {
		h.log.WarnContext(ctx, "webhook verification failed", "gateway", gateway, "error", err)
		return Receipt{State: StateRejected}, err
	}

	// VERIFIED -> MAPPED. Parsing is pure, so redeliveries re-derive this
	// step at no cost.
	req, err := h.parse(gateway, body)
	if err != nil {
		if errors.Is(err, errEventIgnored) {
			return Receipt{State: StateVerified, Ignored: true}, nil
		}
		h.log.WarnContext(ctx, "webhook payload rejected", "gateway", gateway, "error", err)
		return Receipt{State: StateRejected}, err
	}

	if req.UserID == uuid.Nil {
		userID, err := h.resolveUser(ctx, req.PayerEmail)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				// Definitive mismatch: acknowledge so the sender stops
				// retrying, and leave a trail for manual reconciliation.
				h.log.ErrorContext(ctx, "payment event matches no known user",
					"gateway", gateway,
					"external_id", req.ExternalID,
					"payer_email", req.PayerEmail,
				)
				return Receipt{State: StateRejected}, nil
			}
			return Receipt{State: StateVerified}, errors.Join(ErrMappingUnavailable, err)
		}
		req.UserID = userID
	}

	// MAPPED -> APPLIED, guarded by the idempotency reservation.
	receipt, err := h.apply(ctx, req)
	if err != nil {
		return receipt, err
	}

	h.log.InfoContext(ctx, "payment event reconciled",
		"gateway", gateway,
		"external_id", req.ExternalID,
		"user_id", req.UserID,
		"grant", req.Grant.Kind,
		"already_applied", receipt.AlreadyApplied,
	)
	return receipt, nil
}

func (h *Handler) verify(gateway ledger.Gateway, body []byte, headers http.Header) error {
	switch gateway {
	case ledger.GatewayXendit:
		return verifyCallbackToken(headers, h.cfg.XenditCallbackToken)
	case ledger.GatewayLemonSqueezy:
		return verifySignature(body, headers, h.cfg.LemonSqueezySecret)
	default:
		return fmt.Errorf("%w: unsupported gateway %q", ErrMalformedPayload, gateway)
	}
}

func (h *Handler) parse(gateway ledger.Gateway, body []byte) (*GrantRequest, error) {
	switch gateway {
	case ledger.GatewayXendit:
		return parseXendit(body, h.bundles)
	case ledger.GatewayLemonSqueezy:
		return parseLemonSqueezy(body, h.cfg.ProPassDuration)
	default:
		return nil, fmt.Errorf("%w: unsupported gateway %q", ErrMalformedPayload, gateway)
	}
}

// resolveUser retries transient lookup failures with bounded backoff;
// a definitive not-found stops immediately.
func (h *Handler) resolveUser(ctx context.Context, email string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := retry.Do(ctx, h.cfg.ResolveMaxAttempts, h.backoff, func(ctx context.Context) error {
		id, err := h.resolver.ResolveByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		userID = id
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}

func (h *Handler) apply(ctx context.Context, req *GrantRequest) (Receipt, error) {
	payer := req.PayerEmail
	if payer == "" {
		payer = req.UserID.String()
	}

	event := EventRecord{
		Gateway:         req.Gateway,
		ExternalID:      req.ExternalID,
		RawStatus:       req.RawStatus,
		Amount:          req.Amount,
		PayerIdentifier: payer,
		ReceivedAt:      h.now().UTC(),
	}

	won, err := h.applier.ApplyOnce(ctx, event, func(ctx context.Context, store ledger.Store) error {
		return h.applyGrant(ctx, store, req)
	})
	if err != nil {
		if errors.Is(err, ErrDedupUnavailable) {
			return Receipt{State: StateMapped, UserID: req.UserID}, err
		}
		return Receipt{State: StateMapped, UserID: req.UserID}, errors.Join(ErrApplyFailed, err)
	}
	if !won {
		// Duplicate delivery: the grant already happened exactly once.
		return Receipt{State: StateApplied, AlreadyApplied: true, UserID: req.UserID, Grant: &req.Grant}, nil
	}

	return Receipt{State: StateApplied, UserID: req.UserID, Grant: &req.Grant}, nil
}

// applyGrant expresses both grant shapes through the same optimistic
// ApplyDelta primitive the consumption path uses, inheriting its
// concurrency guarantees. The store comes from the applier so the mutation
// can ride inside its transaction.
func (h *Handler) applyGrant(ctx context.Context, store ledger.Store, req *GrantRequest) error {
	return retry.Do(ctx, h.cfg.ApplyMaxAttempts, h.backoff, func(ctx context.Context) error {
		rec, err := store.Get(ctx, req.UserID)
		if err != nil {
			return retry.Permanent(err)
		}

		delta := ledger.Delta{
			Gateway:       req.Gateway,
			PaymentStatus: req.RawStatus,
		}
		switch req.Grant.Kind {
		case GrantCredits:
			delta.AddCredits = req.Grant.Credits
		case GrantPro:
			// Extend from the current expiry when still active so stacked
			// purchases add up instead of resetting.
			start := h.now().UTC()
			if rec.IsProAt(start) {
				start = rec.ProExpiresAt.UTC()
			}
			expires := start.Add(req.Grant.ProDuration)
			delta.SetPlan = ledger.PlanPro
			delta.ProExpiresAt = &expires
		default:
			return retry.Permanent(fmt.Errorf("unsupported grant kind %q", req.Grant.Kind))
		}

		_, err = store.ApplyDelta(ctx, req.UserID, delta, rec.Version)
		if errors.Is(err, ledger.ErrConcurrentModification) {
			return err
		}
		if err != nil {
			return retry.Permanent(err)
		}
		return nil
	})
}
