package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryable is the subset of pgx shared by *pgxpool.Pool, pgx.Tx and the
// pgxmock pool used in tests.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Beginner starts a transaction.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner runs fn so that every repository write made with the context it
// receives commits or rolls back together.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	Atomic() bool
}

type txKey struct{}

// WithTx returns a context carrying tx. Repositories pick it up via Conn.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext retrieves the transaction stored by WithTx.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// Conn returns the transaction bound to ctx, or fallback when there is none.
func Conn(ctx context.Context, fallback Queryable) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// PGTxRunner implements TxRunner on a PostgreSQL pool.
type PGTxRunner struct {
	db Beginner
}

func NewTxRunner(b Beginner) *PGTxRunner {
	return &PGTxRunner{db: b}
}

func (r *PGTxRunner) Atomic() bool { return true }

// WithinTx begins a transaction, runs fn and commits. A nested call joins the
// outer transaction.
func (r *PGTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NoTx runs fn without any transaction. Writes made before a failure stay
// applied.
type NoTx struct{}

func (NoTx) Atomic() bool { return false }

func (NoTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// WithSavepoint runs fn inside a savepoint when ctx carries a transaction, so
// a failed statement can be retried without aborting the outer transaction.
// Without a transaction fn runs directly.
func WithSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fn(ctx)
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	if err := fn(WithTx(ctx, sp)); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
