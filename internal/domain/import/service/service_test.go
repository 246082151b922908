package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/categorization"
	importrepo "github.com/ledgerkeep/ledgerkeep/internal/domain/import/repository"
	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
)

// ---------------------------------------------------------------------------
// fakes

type fakeBatchRepo struct {
	created   []*importrepo.ImportBatch
	finished  []finishCall
	finishErr error
}

type finishCall struct {
	id           uuid.UUID
	status       importrepo.BatchStatus
	successCount int
}

func (f *fakeBatchRepo) Create(_ context.Context, batch *importrepo.ImportBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	f.created = append(f.created, batch)
	return nil
}

func (f *fakeBatchRepo) Finish(_ context.Context, id uuid.UUID, status importrepo.BatchStatus, successCount int) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finished = append(f.finished, finishCall{id: id, status: status, successCount: successCount})
	return nil
}

// txState is the store a fake unit of work stages writes against. A failed
// callback discards the staged state, mimicking a database rollback.
type txState struct {
	transactions []*ledger.Transaction
	rules        []*categorization.Rule
}

func (s *txState) clone() *txState {
	return &txState{
		transactions: append([]*ledger.Transaction(nil), s.transactions...),
		rules:        append([]*categorization.Rule(nil), s.rules...),
	}
}

type fakeTxTransactionRepo struct {
	state *txState
}

func (f *fakeTxTransactionRepo) CreateWithLines(_ context.Context, txn *ledger.Transaction, lines []ledger.TransactionLine) error {
	txn.Lines = lines
	if err := txn.Validate(); err != nil {
		return err
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	f.state.transactions = append(f.state.transactions, txn)
	return nil
}

func (f *fakeTxTransactionRepo) FindSimilarPosted(context.Context, uuid.UUID, string, int) ([]ledger.SimilarTransaction, error) {
	return nil, nil
}

type fakeTxRuleRepo struct {
	state *txState
}

func (f *fakeTxRuleRepo) TopMatch(context.Context, uuid.UUID, string) (*categorization.RuleMatch, error) {
	return nil, nil
}

func (f *fakeTxRuleRepo) FindByTriple(_ context.Context, userID uuid.UUID, pattern string, accountID uuid.UUID) (*categorization.Rule, error) {
	for _, rule := range f.state.rules {
		if rule.UserID == userID && rule.Pattern == pattern && rule.AccountID == accountID {
			return rule, nil
		}
	}
	return nil, nil
}

func (f *fakeTxRuleRepo) Create(_ context.Context, rule *categorization.Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	f.state.rules = append(f.state.rules, rule)
	return nil
}

func (f *fakeTxRuleRepo) RecordMatch(_ context.Context, id uuid.UUID, matchCount int, confidence float64, lastMatched time.Time) error {
	for _, rule := range f.state.rules {
		if rule.ID == id {
			rule.MatchCount = matchCount
			rule.Confidence = confidence
			rule.LastMatched = lastMatched
			return nil
		}
	}
	return errors.New("rule not found")
}

type fakeUnitOfWork struct {
	committed *txState
}

func newFakeUnitOfWork() *fakeUnitOfWork {
	return &fakeUnitOfWork{committed: &txState{}}
}

func (u *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, repos importrepo.TxRepos) error) error {
	staged := u.committed.clone()
	repos := importrepo.TxRepos{
		Transactions: &fakeTxTransactionRepo{state: staged},
		Rules:        &fakeTxRuleRepo{state: staged},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	u.committed = staged
	return nil
}

type fakeSuggester struct {
	suggestion *categorization.Suggestion
	err        error
	calls      int
}

func (f *fakeSuggester) Suggest(context.Context, uuid.UUID, uuid.UUID, string, decimal.Decimal) (*categorization.Suggestion, error) {
	f.calls++
	return f.suggestion, f.err
}

func newTestService(batches *fakeBatchRepo, uow *fakeUnitOfWork, suggester *fakeSuggester) *ImportService {
	if batches == nil {
		batches = &fakeBatchRepo{}
	}
	if uow == nil {
		uow = newFakeUnitOfWork()
	}
	if suggester == nil {
		suggester = &fakeSuggester{}
	}
	return NewImportService(batches, uow, suggester, slog.New(slog.DiscardHandler))
}

// ---------------------------------------------------------------------------
// upload

func TestImportService_Upload(t *testing.T) {
	userID := uuid.New()
	bankAccountID := uuid.New()

	csvData := []byte("date,description,amount\n" +
		"2024-01-01,Coffee Shop,-4.50\n" +
		"2024-01-02,Bad row,oops\n" +
		"2024-01-03,Client Payment,250.00\n")

	t.Run("parses suggests and records a batch", func(t *testing.T) {
		accountID := uuid.New()
		batches := &fakeBatchRepo{}
		suggester := &fakeSuggester{suggestion: &categorization.Suggestion{
			AccountID:   &accountID,
			AccountName: "Meals & Entertainment",
			Confidence:  0.85,
			Reason:      "Based on 4 similar transactions",
		}}

		svc := newTestService(batches, nil, suggester)
		result, err := svc.Upload(context.Background(), userID, bankAccountID, "statement.csv", csvData)
		require.NoError(t, err)

		require.Len(t, batches.created, 1)
		batch := batches.created[0]
		assert.Equal(t, userID, batch.UserID)
		assert.Equal(t, "statement.csv", batch.Filename)
		assert.Equal(t, 3, batch.RowCount)
		assert.Equal(t, 1, batch.ErrorCount)
		assert.Equal(t, importrepo.BatchProcessing, batch.Status)

		assert.Equal(t, batch.ID, result.BatchID)
		require.Len(t, result.Transactions, 2)
		assert.Equal(t, 2, suggester.calls)
		assert.Equal(t, "Meals & Entertainment", result.Transactions[0].SuggestedAccountName)
		assert.Equal(t, 0.85, result.Transactions[0].Confidence)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 2, result.Summary.Total)
		assert.Equal(t, 1, result.Summary.Errors)
	})

	t.Run("suggestion failure leaves the candidate unsuggested", func(t *testing.T) {
		suggester := &fakeSuggester{err: errors.New("engine offline")}

		svc := newTestService(nil, nil, suggester)
		result, err := svc.Upload(context.Background(), userID, bankAccountID, "statement.csv", csvData)
		require.NoError(t, err)

		require.Len(t, result.Transactions, 2)
		assert.Nil(t, result.Transactions[0].SuggestedAccountID)
		assert.Empty(t, result.Transactions[0].Reason)
	})

	t.Run("unreadable file fails the upload", func(t *testing.T) {
		svc := newTestService(nil, nil, nil)
		_, err := svc.Upload(context.Background(), userID, bankAccountID, "empty.csv", nil)
		assert.Error(t, err)
	})
}

// ---------------------------------------------------------------------------
// commit

func TestImportService_Commit(t *testing.T) {
	userID := uuid.New()
	bankAccountID := uuid.New()
	expenseID := uuid.New()
	revenueID := uuid.New()
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("posts balanced entries and learns rules", func(t *testing.T) {
		batches := &fakeBatchRepo{}
		uow := newFakeUnitOfWork()
		batchID := uuid.New()

		svc := newTestService(batches, uow, nil)
		created, err := svc.Commit(context.Background(), CommitInput{
			BatchID:       &batchID,
			UserID:        userID,
			BankAccountID: bankAccountID,
			Items: []CommitItem{
				{Date: date, Description: "Coffee Shop", Amount: decimal.RequireFromString("-42.50"), AccountID: &expenseID},
				{Date: date, Description: "Client Payment", Amount: decimal.RequireFromString("250.00"), Reference: "INV-7", AccountID: &revenueID},
			},
		})
		require.NoError(t, err)
		require.Len(t, created, 2)

		// Outflow: debit the category, credit the bank.
		outflow := created[0]
		assert.Equal(t, ledger.TransactionTypeBank, outflow.Type)
		assert.Equal(t, ledger.StatusPosted, outflow.Status)
		require.Len(t, outflow.Lines, 2)
		assert.Equal(t, expenseID, outflow.Lines[0].AccountID)
		assert.True(t, outflow.Lines[0].Debit.Equal(decimal.RequireFromString("42.50")))
		assert.Equal(t, bankAccountID, outflow.Lines[1].AccountID)
		assert.True(t, outflow.Lines[1].Credit.Equal(decimal.RequireFromString("42.50")))
		assert.True(t, outflow.Balanced())

		// Inflow: debit the bank, credit the category.
		inflow := created[1]
		assert.Equal(t, "INV-7", inflow.Reference)
		assert.Equal(t, bankAccountID, inflow.Lines[0].AccountID)
		assert.True(t, inflow.Lines[0].Debit.Equal(decimal.RequireFromString("250.00")))
		assert.Equal(t, revenueID, inflow.Lines[1].AccountID)
		assert.True(t, inflow.Lines[1].Credit.Equal(decimal.RequireFromString("250.00")))

		assert.Len(t, uow.committed.transactions, 2)
		require.Len(t, uow.committed.rules, 2)
		assert.Equal(t, "coffee shop", uow.committed.rules[0].Pattern)
		assert.Equal(t, expenseID, uow.committed.rules[0].AccountID)
		assert.Equal(t, 0.7, uow.committed.rules[0].Confidence)

		require.Len(t, batches.finished, 1)
		assert.Equal(t, batchID, batches.finished[0].id)
		assert.Equal(t, importrepo.BatchCompleted, batches.finished[0].status)
		assert.Equal(t, 2, batches.finished[0].successCount)
	})

	t.Run("missing account selection rolls back everything", func(t *testing.T) {
		batches := &fakeBatchRepo{}
		uow := newFakeUnitOfWork()
		batchID := uuid.New()

		svc := newTestService(batches, uow, nil)
		created, err := svc.Commit(context.Background(), CommitInput{
			BatchID:       &batchID,
			UserID:        userID,
			BankAccountID: bankAccountID,
			Items: []CommitItem{
				{Date: date, Description: "Coffee Shop", Amount: decimal.RequireFromString("-42.50"), AccountID: &expenseID},
				{Date: date, Description: "Skipped row", Amount: decimal.RequireFromString("-10.00")},
				{Date: date, Description: "Client Payment", Amount: decimal.RequireFromString("250.00"), AccountID: &revenueID},
			},
		})
		require.ErrorIs(t, err, ErrMissingAccountSelection)
		assert.Nil(t, created)

		// Nothing from the first item survives.
		assert.Empty(t, uow.committed.transactions)
		assert.Empty(t, uow.committed.rules)

		require.Len(t, batches.finished, 1)
		assert.Equal(t, importrepo.BatchFailed, batches.finished[0].status)
		assert.Equal(t, 0, batches.finished[0].successCount)
	})

	t.Run("zero amount item fails the whole commit", func(t *testing.T) {
		uow := newFakeUnitOfWork()

		svc := newTestService(nil, uow, nil)
		_, err := svc.Commit(context.Background(), CommitInput{
			UserID:        userID,
			BankAccountID: bankAccountID,
			Items: []CommitItem{
				{Date: date, Description: "Coffee Shop", Amount: decimal.RequireFromString("-42.50"), AccountID: &expenseID},
				{Date: date, Description: "Zero row", Amount: decimal.Zero, AccountID: &expenseID},
			},
		})
		require.Error(t, err)
		assert.Empty(t, uow.committed.transactions)
	})

	t.Run("repeat descriptions reinforce one rule", func(t *testing.T) {
		uow := newFakeUnitOfWork()

		svc := newTestService(nil, uow, nil)
		_, err := svc.Commit(context.Background(), CommitInput{
			UserID:        userID,
			BankAccountID: bankAccountID,
			Items: []CommitItem{
				{Date: date, Description: "Starbucks #123", Amount: decimal.RequireFromString("-5.75"), AccountID: &expenseID},
				{Date: date, Description: "STARBUCKS #123", Amount: decimal.RequireFromString("-6.25"), AccountID: &expenseID},
			},
		})
		require.NoError(t, err)

		require.Len(t, uow.committed.rules, 1)
		rule := uow.committed.rules[0]
		assert.Equal(t, "starbucks #123", rule.Pattern)
		assert.Equal(t, 2, rule.MatchCount)
		assert.InDelta(t, 0.75, rule.Confidence, 1e-9)
	})

	t.Run("batch update failure does not fail the commit", func(t *testing.T) {
		batches := &fakeBatchRepo{finishErr: errors.New("batch table locked")}
		batchID := uuid.New()

		svc := newTestService(batches, nil, nil)
		created, err := svc.Commit(context.Background(), CommitInput{
			BatchID:       &batchID,
			UserID:        userID,
			BankAccountID: bankAccountID,
			Items: []CommitItem{
				{Date: date, Description: "Coffee Shop", Amount: decimal.RequireFromString("-42.50"), AccountID: &expenseID},
			},
		})
		require.NoError(t, err)
		assert.Len(t, created, 1)
	})

	t.Run("no batch id skips the batch update", func(t *testing.T) {
		batches := &fakeBatchRepo{}

		svc := newTestService(batches, nil, nil)
		_, err := svc.Commit(context.Background(), CommitInput{
			UserID:        userID,
			BankAccountID: bankAccountID,
			Items: []CommitItem{
				{Date: date, Description: "Coffee Shop", Amount: decimal.RequireFromString("-42.50"), AccountID: &expenseID},
			},
		})
		require.NoError(t, err)
		assert.Empty(t, batches.finished)
	})
}
