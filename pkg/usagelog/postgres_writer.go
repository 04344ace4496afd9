package usagelog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAppendFailed wraps storage failures from the Postgres writer.
var ErrAppendFailed = errors.New("usagelog: append failed")

// PostgresWriter appends entries to the usage_log table.
// The table has no update or delete path; retention is indefinite.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

// NewPostgresWriter creates a writer over the given pool.
func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	if pool == nil {
		panic("usagelog: pgx pool is required")
	}
	return &PostgresWriter{pool: pool}
}

// Append inserts one entry.
func (w *PostgresWriter) Append(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	const insertSQL = `
INSERT INTO usage_log (id, user_id, feature, outcome, credits_consumed, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := w.pool.Exec(ctx, insertSQL,
		entry.ID,
		entry.UserID,
		entry.Feature,
		string(entry.Outcome),
		entry.CreditsConsumed,
		entry.CreatedAt,
	)
	if err != nil {
		return errors.Join(ErrAppendFailed, err)
	}
	return nil
}
