package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vaultiq/mediavault/common/logger"
)

// Querier is the query surface shared by the pool and an open transaction.
// Repositories run against whichever the context carries.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type txState struct {
	tx          pgx.Tx
	afterCommit []func(context.Context)
}

// Querier returns the transaction bound to ctx, or the pool when none is open.
func (db *DB) Querier(ctx context.Context) Querier {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.tx
	}
	return db.Pool
}

// TxManager runs functions inside a database transaction and defers
// side effects until after commit.
type TxManager struct {
	db  *DB
	log *logger.Logger
}

// NewTxManager creates a transaction manager
func NewTxManager(db *DB, log *logger.Logger) *TxManager {
	return &TxManager{db: db, log: log}
}

// Transactional runs fn inside a transaction. A nested call joins the
// enclosing transaction instead of opening a new one. After-commit hooks
// registered by fn run only once the outermost transaction commits; on
// rollback they are discarded.
func (m *TxManager) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		// Already inside a transaction, join it
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	state := &txState{tx: tx}
	txCtx := context.WithValue(ctx, txKey{}, state)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.log.Warn("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Hooks run outside the transaction context: a dispatched job must
	// never observe the (now closed) transaction.
	for _, hook := range state.afterCommit {
		hook(ctx)
	}

	return nil
}

// AfterCommit registers fn to run once the enclosing transaction commits.
// Outside a transaction fn runs immediately; the returned bool reports
// whether the hook was deferred.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) bool {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		state.afterCommit = append(state.afterCommit, fn)
		return true
	}
	fn(ctx)
	return false
}
