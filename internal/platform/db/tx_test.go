package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	owner *fakeBeginner
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.owner.commits++
	return t.owner.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.owner.rollbacks++
	return nil
}

type fakeBeginner struct {
	beginErr  error
	commitErr error
	begins    int
	commits   int
	rollbacks int
	isoLevels []pgx.TxIsoLevel
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	b.isoLevels = append(b.isoLevels, opts.IsoLevel)
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return &fakeTx{owner: b}, nil
}

func TestWithTxCommits(t *testing.T) {
	pool := &fakeBeginner{}
	err := WithTx(context.Background(), pool, "catalog seed", func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, pool.commits)
	require.Equal(t, []pgx.TxIsoLevel{pgx.RepeatableRead}, pool.isoLevels)
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	pool := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), pool, "catalog seed", func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, pool.begins)
	require.Equal(t, 1, pool.commits)
	require.Equal(t, 3, pool.rollbacks)
}

func TestWithTxGivesUpAfterRepeatedConflicts(t *testing.T) {
	pool := &fakeBeginner{}
	err := WithTx(context.Background(), pool, "catalog seed", func(pgx.Tx) error {
		return &pgconn.PgError{Code: "40001"}
	})
	require.ErrorIs(t, err, ErrTxConflict)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, maxTxAttempts, pool.begins)
	require.Zero(t, pool.commits)
}

func TestWithTxLabelsOtherErrors(t *testing.T) {
	boom := errors.New("duplicate vendor")
	pool := &fakeBeginner{}
	err := WithTx(context.Background(), pool, "catalog seed", func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "platform/db: catalog seed: duplicate vendor")
	require.Equal(t, 1, pool.begins)
	require.Equal(t, 1, pool.rollbacks)

	pool = &fakeBeginner{beginErr: errors.New("pool closed")}
	err = WithTx(context.Background(), pool, "catalog seed", func(pgx.Tx) error { return nil })
	require.EqualError(t, err, "platform/db: catalog seed: begin: pool closed")

	pool = &fakeBeginner{commitErr: errors.New("connection reset")}
	err = WithTx(context.Background(), pool, "catalog seed", func(pgx.Tx) error { return nil })
	require.EqualError(t, err, "platform/db: catalog seed: commit: connection reset")
}
