package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresAccountRepository_FirstActiveByType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresAccountRepository(mock)
	now := time.Now()

	t.Run("returns lowest-code active account", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT (.+) FROM accounts`).
			WithArgs(AccountTypeExpense).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "code", "name", "type", "normal_balance", "is_active", "created_at", "updated_at",
			}).AddRow(id, "5000", "General Expense", AccountTypeExpense, NormalBalanceDebit, true, now, now))

		account, err := repo.FirstActiveByType(context.Background(), AccountTypeExpense)
		require.NoError(t, err)
		require.NotNil(t, account)
		assert.Equal(t, id, account.ID)
		assert.Equal(t, "5000", account.Code)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no matching account returns nil", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM accounts`).
			WithArgs(AccountTypeRevenue).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "code", "name", "type", "normal_balance", "is_active", "created_at", "updated_at",
			}))

		account, err := repo.FirstActiveByType(context.Background(), AccountTypeRevenue)
		require.NoError(t, err)
		assert.Nil(t, account)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_CreateWithLines(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresTransactionRepository(mock)
	userID := uuid.New()
	bank := uuid.New()
	expense := uuid.New()

	t.Run("inserts header and both lines", func(t *testing.T) {
		txn := &Transaction{
			UserID:      userID,
			Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Description: "Coffee Shop",
			Type:        TransactionTypeBank,
			Status:      StatusPosted,
		}
		lines := []TransactionLine{
			{AccountID: expense, Debit: d("42.50")},
			{AccountID: bank, Credit: d("42.50")},
		}

		mock.ExpectQuery(`INSERT INTO transactions`).
			WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
		mock.ExpectExec(`INSERT INTO transaction_lines`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO transaction_lines`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.CreateWithLines(context.Background(), txn, lines))
		assert.NotEqual(t, uuid.Nil, txn.ID)
		assert.Equal(t, txn.ID, txn.Lines[0].TransactionID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unbalanced transaction never reaches the database", func(t *testing.T) {
		txn := &Transaction{UserID: userID, Description: "Broken"}
		lines := []TransactionLine{
			{AccountID: expense, Debit: d("42.50")},
			{AccountID: bank, Credit: d("40.00")},
		}

		err := repo.CreateWithLines(context.Background(), txn, lines)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_FindSimilarPosted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresTransactionRepository(mock)
	userID := uuid.New()
	txn1 := uuid.New()
	txn2 := uuid.New()
	bank := uuid.New()
	groceries := uuid.New()

	rows := pgxmock.NewRows([]string{"id", "description", "account_id", "code", "name", "type"}).
		AddRow(txn1, "WHOLEFOODS 001", bank, "1000", "Checking", AccountTypeAsset).
		AddRow(txn1, "WHOLEFOODS 001", groceries, "5200", "Groceries", AccountTypeExpense).
		AddRow(txn2, "WHOLEFOODS 002", bank, "1000", "Checking", AccountTypeAsset).
		AddRow(txn2, "WHOLEFOODS 002", groceries, "5200", "Groceries", AccountTypeExpense)

	mock.ExpectQuery(`WITH matched AS`).
		WithArgs(userID, "wholefoods", 10).
		WillReturnRows(rows)

	got, err := repo.FindSimilarPosted(context.Background(), userID, "wholefoods", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, txn1, got[0].ID)
	require.Len(t, got[0].Lines, 2)
	assert.Equal(t, "Groceries", got[0].Lines[1].AccountName)
	require.NoError(t, mock.ExpectationsWereMet())
}
