package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Serialization failures are retried this many times before giving up.
const maxTxAttempts = 3

// ErrTxConflict marks a transaction that kept losing serialization races.
var ErrTxConflict = errors.New("platform/db: transaction conflict")

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a RepeatableRead transaction labelled name. A catalog seed
// racing another writer fails with SQLSTATE 40001, so those attempts are rolled
// back and rerun. Other errors from fn are returned after rollback, wrapped with
// the label.
func WithTx(ctx context.Context, pool Beginner, name string, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = runTx(ctx, pool, name, fn)
		if err == nil || !serializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrTxConflict, name, maxTxAttempts, err)
}

func runTx(ctx context.Context, pool Beginner, name string, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: %s: begin: %w", name, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return fmt.Errorf("platform/db: %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: %s: commit: %w", name, err)
	}
	return nil
}

func serializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
