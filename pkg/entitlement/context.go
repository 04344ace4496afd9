package entitlement

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithUserID returns a context carrying the verified user identity.
// The authentication layer is expected to call this after verifying the
// request; nothing in this package verifies credentials itself.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext extracts the verified user identity, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
