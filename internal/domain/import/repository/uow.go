package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/categorization"
	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
)

// TxRepos bundles the repositories bound to one database transaction. Every
// write made through them commits or rolls back together.
type TxRepos struct {
	Transactions ledger.TransactionRepository
	Rules        categorization.RuleRepository
}

// UnitOfWork runs a function inside one atomic transaction. If fn returns an
// error, everything written through the TxRepos is rolled back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}

// PgxUnitOfWork implements UnitOfWork on a pgx connection pool.
type PgxUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewPgxUnitOfWork creates a unit of work backed by the given pool.
func NewPgxUnitOfWork(pool *pgxpool.Pool) *PgxUnitOfWork {
	return &PgxUnitOfWork{pool: pool}
}

// WithinTx begins a transaction, hands fn repositories bound to it, and
// commits only if fn succeeds.
func (u *PgxUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	repos := TxRepos{
		Transactions: ledger.NewPostgresTransactionRepository(tx),
		Rules:        categorization.NewPostgresRuleRepository(tx),
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
