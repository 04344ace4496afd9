package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramadanhub/gatekeeper/pkg/pg"
)

// DB is the subset of pgx behavior the store issues statements through.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so the same store logic serves
// pooled callers and callers composing it into a larger transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a Store backed by the entitlement_accounts table.
// The optimistic check rides on the version column; the non-negative
// balance floor is enforced both in the UPDATE predicate and by a table
// check constraint as a last line of defense.
type PostgresStore struct {
	db          DB
	signupBonus int64
}

// NewPostgresStore creates a store granting signupBonus credits to every
// newly created record.
func NewPostgresStore(pool *pgxpool.Pool, signupBonus int64) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool is required")
	}
	if signupBonus < 0 {
		signupBonus = 0
	}
	return &PostgresStore{db: pool, signupBonus: signupBonus}
}

// WithTx returns a copy of the store that issues its statements on tx, so a
// caller can make the ledger mutation part of its own atomic unit.
func (s *PostgresStore) WithTx(tx pgx.Tx) *PostgresStore {
	return &PostgresStore{db: tx, signupBonus: s.signupBonus}
}

const selectRecordSQL = `
SELECT user_id, plan, pro_expires_at, credit_balance, last_gateway, payment_status, version, created_at, updated_at
FROM entitlement_accounts
WHERE user_id = $1`

// Get returns the record, creating it with the signup bonus on first access.
// INSERT ... ON CONFLICT DO NOTHING makes creation race-safe: of two
// concurrent first-time readers exactly one inserts, and both read the same
// single row afterwards.
func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	const insertSQL = `
INSERT INTO entitlement_accounts (user_id, plan, credit_balance, version)
VALUES ($1, $2, $3, 1)
ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.db.Exec(ctx, insertSQL, userID, string(PlanFree), s.signupBonus); err != nil {
		return nil, errors.Join(ErrWriteFailed, err)
	}

	rec, err := s.scanRecord(s.db.QueryRow(ctx, selectRecordSQL, userID))
	if err != nil {
		return nil, errors.Join(ErrReadFailed, err)
	}
	return rec, nil
}

// ApplyDelta performs the whole read-check-mutate in one UPDATE statement so
// the version check and the balance floor are evaluated atomically by the
// database. A zero-row result is disambiguated with a follow-up read.
func (s *PostgresStore) ApplyDelta(ctx context.Context, userID uuid.UUID, delta Delta, expectedVersion int64) (*Record, error) {
	const updateSQL = `
UPDATE entitlement_accounts SET
	credit_balance = credit_balance + $2,
	plan           = CASE WHEN $3::text <> '' THEN $3::text ELSE plan END,
	pro_expires_at = CASE WHEN $3::text <> '' THEN $4::timestamptz ELSE pro_expires_at END,
	last_gateway   = CASE WHEN $5::text <> '' THEN $5::text ELSE last_gateway END,
	payment_status = CASE WHEN $6::text <> '' THEN $6::text ELSE payment_status END,
	version        = version + 1,
	updated_at     = now()
WHERE user_id = $1 AND version = $7 AND credit_balance + $2 >= 0
RETURNING user_id, plan, pro_expires_at, credit_balance, last_gateway, payment_status, version, created_at, updated_at`

	row := s.db.QueryRow(ctx, updateSQL,
		userID,
		delta.AddCredits,
		string(delta.SetPlan),
		delta.ProExpiresAt,
		string(delta.Gateway),
		delta.PaymentStatus,
		expectedVersion,
	)

	rec, err := s.scanRecord(row)
	if err == nil {
		return rec, nil
	}
	// The WHERE floor normally rejects overdrafts before the constraint
	// fires; the table check is the backstop if predicate and schema ever
	// disagree.
	if pg.IsCheckViolationError(err) {
		return nil, ErrInsufficientCredits
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Join(ErrWriteFailed, err)
	}

	// The predicate rejected the update: either the version moved on or the
	// balance floor would be violated. Read the current state to tell apart.
	var version, balance int64
	const probeSQL = `SELECT version, credit_balance FROM entitlement_accounts WHERE user_id = $1`
	if err := s.db.QueryRow(ctx, probeSQL, userID).Scan(&version, &balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcurrentModification
		}
		return nil, errors.Join(ErrReadFailed, err)
	}
	if version != expectedVersion {
		return nil, ErrConcurrentModification
	}
	return nil, ErrInsufficientCredits
}

func (s *PostgresStore) scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		plan    string
		gateway *string
		status  *string
	)
	err := row.Scan(
		&rec.UserID,
		&plan,
		&rec.ProExpiresAt,
		&rec.CreditBalance,
		&gateway,
		&status,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Plan = PlanTier(plan)
	if gateway != nil {
		rec.LastGateway = Gateway(*gateway)
	}
	if status != nil {
		rec.PaymentStatus = *status
	}
	return &rec, nil
}
