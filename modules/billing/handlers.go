package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ramadanhub/gatekeeper/pkg/entitlement"
	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/reconcile"
	"github.com/ramadanhub/gatekeeper/pkg/usagelog"
)

type handlers struct {
	opts RouterOptions
}

func (h *handlers) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.opts.Log.Error("failed to encode response", "error", err)
	}
}

func (h *handlers) respondError(w http.ResponseWriter, status int, code string) {
	h.respondJSON(w, status, map[string]string{"error": code})
}

// xenditWebhook receives Xendit invoice callbacks authenticated by the
// shared callback token.
func (h *handlers) xenditWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, ledger.GatewayXendit)
}

// lemonSqueezyWebhook receives LemonSqueezy events authenticated by the
// HMAC body signature.
func (h *handlers) lemonSqueezyWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, ledger.GatewayLemonSqueezy)
}

// webhook maps reconciliation outcomes onto the transport contract:
// 200 means applied or already applied, 4xx is terminal and must not be
// redelivered, 5xx invites the sender's retry.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request, gateway ledger.Gateway) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.opts.Config.MaxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "read_failed")
		return
	}

	receipt, err := h.opts.Reconcile.Handle(r.Context(), gateway, body, r.Header)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusOK, map[string]any{
			"state":           receipt.State,
			"already_applied": receipt.AlreadyApplied,
			"ignored":         receipt.Ignored,
		})
	case errors.Is(err, reconcile.ErrAuthenticationFailed):
		h.respondError(w, http.StatusUnauthorized, "authentication_failed")
	case errors.Is(err, reconcile.ErrMalformedPayload), errors.Is(err, reconcile.ErrUnknownBundle):
		h.respondError(w, http.StatusBadRequest, "invalid_payload")
	default:
		// Mapping lookup, dedup store or ledger write failure: retryable.
		h.opts.Log.ErrorContext(r.Context(), "webhook processing failed",
			"gateway", gateway,
			"error", err,
		)
		h.respondError(w, http.StatusInternalServerError, "processing_failed")
	}
}

type generateRequest struct {
	Feature string          `json:"feature"`
	Payload json.RawMessage `json:"payload"`
}

type generateResponse struct {
	ArtifactURL      string          `json:"artifact_url"`
	Plan             ledger.PlanTier `json:"plan"`
	RemainingCredits int64           `json:"remaining_credits"`
}

type denialResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason"`
	UpgradeURL string `json:"upgrade_url"`
}

// generate is the paid-feature endpoint: authenticate, consume, then call
// the opaque generator. A denied consume never reaches the generator.
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.opts.Auth(r)
	if !ok {
		h.respondJSON(w, http.StatusUnauthorized, denialResponse{
			Error:      "not_authenticated",
			Reason:     string(entitlement.ReasonNotLoggedIn),
			UpgradeURL: h.opts.Config.LoginURL,
		})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.opts.Config.MaxBodyBytes)).Decode(&req); err != nil || req.Feature == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	ctx := entitlement.WithUserID(r.Context(), userID)
	res, err := h.opts.Entitlement.Consume(ctx, req.Feature)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		if errors.Is(err, entitlement.ErrRetryExhausted) {
			// Transient: the whole request is safe to retry.
			status = http.StatusServiceUnavailable
			code = "try_again"
		}
		h.opts.Log.ErrorContext(ctx, "consume failed", "feature", req.Feature, "error", err)
		h.respondError(w, status, code)
		return
	}
	if !res.Allowed {
		h.respondJSON(w, http.StatusPaymentRequired, denialResponse{
			Error:      "insufficient_entitlement",
			Reason:     string(res.Reason),
			UpgradeURL: res.UpgradeURL,
		})
		return
	}

	if h.opts.Generator == nil {
		h.respondError(w, http.StatusNotImplemented, "generator_unavailable")
		return
	}

	artifactURL, err := h.opts.Generator.Generate(ctx, userID, req.Feature, req.Payload)
	if err != nil {
		h.opts.Log.ErrorContext(ctx, "generation failed after consume",
			"feature", req.Feature,
			"user_id", userID,
			"refund", h.opts.Config.RefundOnGenerationFailure,
			"error", err,
		)
		if h.opts.Config.RefundOnGenerationFailure && res.Outcome == usagelog.OutcomeAllowedCredit {
			if refundErr := h.opts.Entitlement.Refund(ctx, userID, req.Feature); refundErr != nil {
				h.opts.Log.ErrorContext(ctx, "compensating refund failed",
					"feature", req.Feature,
					"user_id", userID,
					"error", refundErr,
				)
			}
		}
		h.respondError(w, http.StatusBadGateway, "generation_failed")
		return
	}

	h.respondJSON(w, http.StatusOK, generateResponse{
		ArtifactURL:      artifactURL,
		Plan:             res.Plan,
		RemainingCredits: res.RemainingCredits,
	})
}

type checkoutRequest struct {
	Selection string `json:"selection"`
}

// checkout asks the opaque initiator for a payment redirect.
func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	userID, email, ok := h.opts.Auth(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "not_authenticated")
		return
	}
	if h.opts.Checkout == nil {
		h.respondError(w, http.StatusNotImplemented, "checkout_unavailable")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.opts.Config.MaxBodyBytes)).Decode(&req); err != nil || req.Selection == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	url, err := h.opts.Checkout.CreateCheckout(r.Context(), userID, email, req.Selection)
	if err != nil {
		h.opts.Log.ErrorContext(r.Context(), "checkout creation failed",
			"user_id", userID,
			"selection", req.Selection,
			"error", err,
		)
		h.respondError(w, http.StatusBadGateway, "checkout_failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// displayState is the read-only entitlement view for presentation layers.
func (h *handlers) displayState(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.opts.Auth(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "not_authenticated")
		return
	}

	state, err := h.opts.Entitlement.DisplayState(r.Context(), userID)
	if err != nil {
		h.opts.Log.ErrorContext(r.Context(), "display state read failed", "user_id", userID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"is_pro":            state.IsPro,
		"credits_remaining": state.CreditsRemaining,
		"pro_expires_at":    state.ProExpiresAt,
	})
}
