// Package service orchestrates the statement import flow: ingesting a file
// into suggested candidates, and committing the user-confirmed result as
// balanced double-entry postings.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/categorization"
	"github.com/ledgerkeep/ledgerkeep/internal/domain/import/parser"
	importrepo "github.com/ledgerkeep/ledgerkeep/internal/domain/import/repository"
	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
	"github.com/ledgerkeep/ledgerkeep/pkg/metrics"
)

// ErrMissingAccountSelection fails a commit when an item arrives without a
// chosen account. The whole batch rolls back; nothing before the bad item
// survives.
var ErrMissingAccountSelection = errors.New("no account selected for transaction")

// Suggester produces an account suggestion for one candidate.
type Suggester interface {
	Suggest(ctx context.Context, userID, bankAccountID uuid.UUID, description string, amount decimal.Decimal) (*categorization.Suggestion, error)
}

// SuggestedCandidate is a parsed candidate enriched with the engine's answer.
type SuggestedCandidate struct {
	parser.Candidate
	SuggestedAccountID   *uuid.UUID
	SuggestedAccountName string
	Confidence           float64
	Reason               string
}

// UploadResult is returned to the caller for review before committing.
type UploadResult struct {
	BatchID      uuid.UUID
	Transactions []SuggestedCandidate
	Errors       []parser.RowError
	Summary      Summary
}

// Summary gives the caller quick counts for the upload.
type Summary struct {
	Total  int
	Errors int
}

// CommitItem is one user-confirmed candidate. AccountID nil means the user
// never picked an account; the committer rejects the whole call.
type CommitItem struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Reference   string
	AccountID   *uuid.UUID
}

// CommitInput is the full input of one commit call.
type CommitInput struct {
	BatchID       *uuid.UUID
	UserID        uuid.UUID
	BankAccountID uuid.UUID
	Items         []CommitItem
}

// ImportService wires the parser, the suggestion engine and the atomic
// committer together.
type ImportService struct {
	batches   importrepo.BatchRepository
	uow       importrepo.UnitOfWork
	suggester Suggester
	logger    *slog.Logger
}

// NewImportService creates a new import service.
func NewImportService(batches importrepo.BatchRepository, uow importrepo.UnitOfWork, suggester Suggester, logger *slog.Logger) *ImportService {
	return &ImportService{
		batches:   batches,
		uow:       uow,
		suggester: suggester,
		logger:    logger,
	}
}

// Upload parses a statement file, records an import batch, and returns every
// candidate with an account suggestion. Row errors are reported alongside the
// candidates; a candidate whose suggestion lookup fails is returned without
// one rather than failing the upload.
func (s *ImportService) Upload(ctx context.Context, userID, bankAccountID uuid.UUID, filename string, data []byte) (*UploadResult, error) {
	parsed, err := parser.ParseCSV(data, filename)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	metrics.RowsParsed.Add(float64(len(parsed.Candidates)))
	metrics.RowErrors.Add(float64(len(parsed.Errors)))

	batch := &importrepo.ImportBatch{
		UserID:     userID,
		Filename:   filename,
		RowCount:   len(parsed.Candidates) + len(parsed.Errors),
		ErrorCount: len(parsed.Errors),
		Status:     importrepo.BatchProcessing,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}

	suggested := make([]SuggestedCandidate, 0, len(parsed.Candidates))
	for _, candidate := range parsed.Candidates {
		item := SuggestedCandidate{Candidate: candidate}

		suggestion, err := s.suggester.Suggest(ctx, userID, bankAccountID, candidate.Description, candidate.Amount)
		if err != nil {
			s.logger.Warn("suggestion failed for candidate",
				slog.Int("line", candidate.Line), slog.Any("error", err))
		} else {
			item.SuggestedAccountID = suggestion.AccountID
			item.SuggestedAccountName = suggestion.AccountName
			item.Confidence = suggestion.Confidence
			item.Reason = suggestion.Reason
		}
		suggested = append(suggested, item)
	}

	return &UploadResult{
		BatchID:      batch.ID,
		Transactions: suggested,
		Errors:       parsed.Errors,
		Summary: Summary{
			Total:  len(suggested),
			Errors: len(parsed.Errors),
		},
	}, nil
}

// Commit turns confirmed items into posted double-entry transactions inside
// one unit of work. All-or-nothing: any failure rolls back every transaction,
// line, and rule update made during the call. Transactions are created in
// input order.
func (s *ImportService) Commit(ctx context.Context, input CommitInput) ([]*ledger.Transaction, error) {
	var created []*ledger.Transaction

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos importrepo.TxRepos) error {
		for _, item := range input.Items {
			if item.AccountID == nil {
				return fmt.Errorf("%w: %s", ErrMissingAccountSelection, item.Description)
			}

			txn := &ledger.Transaction{
				UserID:      input.UserID,
				Date:        item.Date,
				Description: item.Description,
				Reference:   item.Reference,
				Type:        ledger.TransactionTypeBank,
				Status:      ledger.StatusPosted,
			}

			lines := buildLines(item.Amount, *item.AccountID, input.BankAccountID)
			if err := repos.Transactions.CreateWithLines(ctx, txn, lines); err != nil {
				return fmt.Errorf("create transaction: %w", err)
			}

			if err := categorization.Learn(ctx, repos.Rules, input.UserID, item.Description, *item.AccountID); err != nil {
				return fmt.Errorf("learn categorization: %w", err)
			}

			created = append(created, txn)
		}
		return nil
	})

	s.finishBatch(ctx, input.BatchID, err, len(created))

	if err != nil {
		metrics.CommitFailures.Inc()
		return nil, err
	}
	metrics.TransactionsCommitted.Add(float64(len(created)))
	return created, nil
}

// buildLines produces the two balanced sides of a bank transaction following
// GAAP sign convention. Outflows debit the chosen category and credit the
// bank account; inflows do the reverse.
func buildLines(amount decimal.Decimal, categoryAccountID, bankAccountID uuid.UUID) []ledger.TransactionLine {
	abs := amount.Abs()
	if amount.IsNegative() {
		return []ledger.TransactionLine{
			{AccountID: categoryAccountID, Debit: abs, Credit: decimal.Zero},
			{AccountID: bankAccountID, Debit: decimal.Zero, Credit: abs},
		}
	}
	return []ledger.TransactionLine{
		{AccountID: bankAccountID, Debit: abs, Credit: decimal.Zero},
		{AccountID: categoryAccountID, Debit: decimal.Zero, Credit: abs},
	}
}

// finishBatch records the commit outcome on the batch. Best-effort: a failure
// here is logged and never surfaced over the primary result.
func (s *ImportService) finishBatch(ctx context.Context, batchID *uuid.UUID, commitErr error, successCount int) {
	if batchID == nil {
		return
	}

	status := importrepo.BatchCompleted
	if commitErr != nil {
		status = importrepo.BatchFailed
		successCount = 0
	}
	if err := s.batches.Finish(ctx, *batchID, status, successCount); err != nil {
		s.logger.Warn("failed to update import batch status",
			slog.String("batchID", batchID.String()), slog.Any("error", err))
	}
}
