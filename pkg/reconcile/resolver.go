package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramadanhub/gatekeeper/pkg/pg"
)

// PostgresUserResolver maps payer emails to user ids through the
// user_directory relation. The deployment provides it, typically as a view
// over the auth provider's synced user table; this package only reads it.
type PostgresUserResolver struct {
	pool *pgxpool.Pool
}

// NewPostgresUserResolver creates a resolver over the given pool.
func NewPostgresUserResolver(pool *pgxpool.Pool) *PostgresUserResolver {
	if pool == nil {
		panic("reconcile: pgx pool is required")
	}
	return &PostgresUserResolver{pool: pool}
}

// ResolveByEmail looks up the user id for a payer email, case-insensitively.
func (r *PostgresUserResolver) ResolveByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	const query = `SELECT user_id FROM user_directory WHERE lower(email) = $1`

	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(&userID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, ErrUserNotFound
		}
		return uuid.Nil, errors.Join(ErrMappingUnavailable, err)
	}
	return userID, nil
}
