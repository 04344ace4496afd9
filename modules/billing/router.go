package billing

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/ramadanhub/gatekeeper/pkg/entitlement"
	"github.com/ramadanhub/gatekeeper/pkg/reconcile"
)

// Config holds environment-driven HTTP module settings.
type Config struct {
	// RefundOnGenerationFailure re-credits a consumed credit when the
	// content generator fails after a successful consume. Off by default:
	// generation attempts are billable regardless of outcome.
	RefundOnGenerationFailure bool `env:"REFUND_ON_GENERATION_FAILURE" envDefault:"false"`

	// MaxBodyBytes caps webhook and request body reads.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	// LoginURL is returned with not-logged-in denials. It reads the same
	// variable as the entitlement service so the two denial paths agree.
	LoginURL string `env:"LOGIN_URL" envDefault:"/login"`
}

// RouterOptions wires the billing module's collaborators.
type RouterOptions struct {
	Entitlement *entitlement.Service
	Reconcile   *reconcile.Handler
	Generator   ContentGenerator
	Checkout    CheckoutInitiator
	Auth        AuthResolver
	Log         *slog.Logger
	Config      Config
}

// Router creates the billing module router.
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//	    Entitlement: svc,
//	    Reconcile:   handler,
//	    Generator:   generator,
//	    Checkout:    initiator,
//	    Auth:        sessionAuth,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Entitlement == nil {
		panic("billing: entitlement service is required")
	}
	if opts.Reconcile == nil {
		panic("billing: reconciliation handler is required")
	}
	if opts.Auth == nil {
		panic("billing: auth resolver is required")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Config.MaxBodyBytes <= 0 {
		opts.Config.MaxBodyBytes = 1 << 20
	}
	if opts.Config.LoginURL == "" {
		opts.Config.LoginURL = "/login"
	}

	h := &handlers{opts: opts}

	r := chi.NewRouter()

	r.Post("/webhooks/xendit", h.xenditWebhook)
	r.Post("/webhooks/lemonsqueezy", h.lemonSqueezyWebhook)

	r.Post("/generate", h.generate)
	r.Post("/checkout", h.checkout)
	r.Get("/entitlement", h.displayState)

	return r
}
