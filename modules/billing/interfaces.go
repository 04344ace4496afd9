package billing

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// ContentGenerator produces the paid artifact after a successful consume.
// The core does not retry or interpret generator errors beyond failed/succeeded.
type ContentGenerator interface {
	Generate(ctx context.Context, userID uuid.UUID, feature string, payload json.RawMessage) (artifactURL string, err error)
}

// GeneratorFunc adapts a function to the ContentGenerator interface.
type GeneratorFunc func(ctx context.Context, userID uuid.UUID, feature string, payload json.RawMessage) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, userID uuid.UUID, feature string, payload json.RawMessage) (string, error) {
	return f(ctx, userID, feature, payload)
}

// CheckoutInitiator creates a payment redirect for a bundle or plan
// selection. Its eventual success is what produces the inbound
// reconciliation events; it never touches the ledger directly.
type CheckoutInitiator interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, email, selection string) (redirectURL string, err error)
}

// CheckoutFunc adapts a function to the CheckoutInitiator interface.
type CheckoutFunc func(ctx context.Context, userID uuid.UUID, email, selection string) (string, error)

func (f CheckoutFunc) CreateCheckout(ctx context.Context, userID uuid.UUID, email, selection string) (string, error) {
	return f(ctx, userID, email, selection)
}

// AuthResolver extracts the verified user identity from a request.
// It is supplied by the embedding application; returning false means the
// request is unauthenticated.
type AuthResolver func(r *http.Request) (userID uuid.UUID, email string, ok bool)
