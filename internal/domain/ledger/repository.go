package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Repositories
// take it so the same code runs standalone or inside a unit of work.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository provides read access to the chart of accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FirstActiveByType(ctx context.Context, accountType AccountType) (*Account, error)
	ListActive(ctx context.Context) ([]Account, error)
}

// TransactionRepository persists transactions and serves the history lookups
// the suggestion engine needs.
type TransactionRepository interface {
	CreateWithLines(ctx context.Context, txn *Transaction, lines []TransactionLine) error
	FindSimilarPosted(ctx context.Context, userID uuid.UUID, keyword string, limit int) ([]SimilarTransaction, error)
}

// PostgresAccountRepository implements AccountRepository using PostgreSQL.
type PostgresAccountRepository struct {
	db DBTX
}

// NewPostgresAccountRepository creates a new PostgreSQL account repository.
func NewPostgresAccountRepository(db DBTX) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `id, code, name, type, normal_balance, is_active, created_at, updated_at`

// GetByID retrieves an account by ID.
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account := &Account{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Code,
		&account.Name,
		&account.Type,
		&account.NormalBalance,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// FirstActiveByType returns the active account of the given type with the
// lowest code, or nil if none exists.
func (r *PostgresAccountRepository) FirstActiveByType(ctx context.Context, accountType AccountType) (*Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE type = $1 AND is_active
		ORDER BY code ASC
		LIMIT 1`

	account := &Account{}
	err := r.db.QueryRow(ctx, query, accountType).Scan(
		&account.ID,
		&account.Code,
		&account.Name,
		&account.Type,
		&account.NormalBalance,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default account: %w", err)
	}
	return account, nil
}

// ListActive retrieves all active accounts ordered by code.
func (r *PostgresAccountRepository) ListActive(ctx context.Context) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE is_active ORDER BY code ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID,
			&a.Code,
			&a.Name,
			&a.Type,
			&a.NormalBalance,
			&a.IsActive,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// PostgresTransactionRepository implements TransactionRepository using PostgreSQL.
type PostgresTransactionRepository struct {
	db DBTX
}

// NewPostgresTransactionRepository creates a new PostgreSQL transaction repository.
func NewPostgresTransactionRepository(db DBTX) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

// CreateWithLines inserts a transaction and its lines. The transaction must
// validate (every line single-sided, debits equal credits) before anything is
// written. Atomicity across calls is the caller's unit of work, not ours.
func (r *PostgresTransactionRepository) CreateWithLines(ctx context.Context, txn *Transaction, lines []TransactionLine) error {
	txn.Lines = lines
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	var reference *string
	if txn.Reference != "" {
		reference = &txn.Reference
	}

	insertTxn := `
		INSERT INTO transactions (id, user_id, date, description, reference, type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, insertTxn,
		txn.ID,
		txn.UserID,
		txn.Date,
		txn.Description,
		reference,
		txn.Type,
		txn.Status,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	insertLine := `
		INSERT INTO transaction_lines (id, transaction_id, account_id, debit, credit, category)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i := range txn.Lines {
		line := &txn.Lines[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.TransactionID = txn.ID

		var category *string
		if line.Category != "" {
			category = &line.Category
		}

		_, err := r.db.Exec(ctx, insertLine,
			line.ID,
			line.TransactionID,
			line.AccountID,
			line.Debit.StringFixed(2),
			line.Credit.StringFixed(2),
			category,
		)
		if err != nil {
			return fmt.Errorf("failed to create transaction line: %w", err)
		}
	}
	return nil
}

// FindSimilarPosted returns up to limit posted transactions of the user whose
// description contains keyword (case-insensitive), each with its lines and
// account attributes.
func (r *PostgresTransactionRepository) FindSimilarPosted(ctx context.Context, userID uuid.UUID, keyword string, limit int) ([]SimilarTransaction, error) {
	query := `
		WITH matched AS (
			SELECT id, description
			FROM transactions
			WHERE user_id = $1 AND status = 'posted' AND description ILIKE '%' || $2 || '%'
			ORDER BY date DESC, id
			LIMIT $3
		)
		SELECT m.id, m.description, l.account_id, a.code, a.name, a.type
		FROM matched m
		JOIN transaction_lines l ON l.transaction_id = m.id
		JOIN accounts a ON a.id = l.account_id
		ORDER BY m.id`

	rows, err := r.db.Query(ctx, query, userID, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find similar transactions: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]int)
	var result []SimilarTransaction
	for rows.Next() {
		var (
			txID uuid.UUID
			desc string
			line SimilarLine
		)
		if err := rows.Scan(&txID, &desc, &line.AccountID, &line.AccountCode, &line.AccountName, &line.AccountType); err != nil {
			return nil, fmt.Errorf("failed to scan similar transaction: %w", err)
		}
		idx, ok := byID[txID]
		if !ok {
			idx = len(result)
			byID[txID] = idx
			result = append(result, SimilarTransaction{ID: txID, Description: desc})
		}
		result[idx].Lines = append(result[idx].Lines, line)
	}
	return result, rows.Err()
}
