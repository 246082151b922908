package categorization

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
)

const (
	// historyLimit caps how many historical transactions the similarity tier
	// examines per suggestion.
	historyLimit = 10

	// minKeywordLength filters short noise tokens out of descriptions.
	minKeywordLength = 3

	defaultConfidence = 0.3
	maxHistConfidence = 0.9
)

// Suggestion is the engine's answer for one transaction candidate.
type Suggestion struct {
	AccountID   *uuid.UUID
	AccountName string
	Confidence  float64 // in [0, 1]
	Reason      string
}

// AccountReader is the slice of the account repository the engine needs.
type AccountReader interface {
	FirstActiveByType(ctx context.Context, accountType ledger.AccountType) (*ledger.Account, error)
}

// HistoryReader looks up the user's posted transactions by description keyword.
type HistoryReader interface {
	FindSimilarPosted(ctx context.Context, userID uuid.UUID, keyword string, limit int) ([]ledger.SimilarTransaction, error)
}

// Service runs the three-tier suggestion strategy: learned rules, historical
// similarity, then a type-based default. Suggest never writes; learning
// happens separately via Learn when the user confirms a choice.
type Service struct {
	rules    RuleRepository
	accounts AccountReader
	history  HistoryReader
	logger   *slog.Logger
}

// NewService creates a new suggestion service.
func NewService(rules RuleRepository, accounts AccountReader, history HistoryReader, logger *slog.Logger) *Service {
	return &Service{
		rules:    rules,
		accounts: accounts,
		history:  history,
		logger:   logger,
	}
}

// Suggest returns an account suggestion for a single transaction candidate.
func (s *Service) Suggest(ctx context.Context, userID, bankAccountID uuid.UUID, description string, amount decimal.Decimal) (*Suggestion, error) {
	// Tier 1: learned rules.
	rule, err := s.rules.TopMatch(ctx, userID, description)
	if err != nil {
		return nil, fmt.Errorf("rule lookup: %w", err)
	}
	if rule != nil {
		accountID := rule.AccountID
		return &Suggestion{
			AccountID:   &accountID,
			AccountName: rule.AccountName,
			Confidence:  rule.Confidence,
			Reason:      fmt.Sprintf("Based on %d similar transaction%s", rule.MatchCount, plural(rule.MatchCount)),
		}, nil
	}

	// Tier 2: historical similarity.
	hist, err := s.suggestFromHistory(ctx, userID, description)
	if err != nil {
		return nil, err
	}
	if hist != nil {
		return hist, nil
	}

	// Tier 3: default by transaction direction.
	accountType := ledger.AccountTypeExpense
	if amount.IsPositive() {
		accountType = ledger.AccountTypeRevenue
	}
	account, err := s.accounts.FirstActiveByType(ctx, accountType)
	if err != nil {
		return nil, fmt.Errorf("default account lookup: %w", err)
	}

	suggestion := &Suggestion{
		AccountName: "Unknown",
		Confidence:  defaultConfidence,
		Reason:      "Default suggestion based on transaction type",
	}
	if account != nil {
		accountID := account.ID
		suggestion.AccountID = &accountID
		suggestion.AccountName = account.Name
	}
	return suggestion, nil
}

// BatchItem is one candidate in a batch suggestion call.
type BatchItem struct {
	Description string
	Amount      decimal.Decimal
}

// SuggestBatch runs Suggest over a slice of candidates, preserving order. A
// failed lookup yields a nil entry rather than failing the batch.
func (s *Service) SuggestBatch(ctx context.Context, userID, bankAccountID uuid.UUID, items []BatchItem) []*Suggestion {
	suggestions := make([]*Suggestion, len(items))
	for i, item := range items {
		suggestion, err := s.Suggest(ctx, userID, bankAccountID, item.Description, item.Amount)
		if err != nil {
			s.logger.Warn("batch suggestion failed",
				slog.Int("index", i), slog.Any("error", err))
			continue
		}
		suggestions[i] = suggestion
	}
	return suggestions
}

// suggestFromHistory tallies which non-asset account the user posted similar
// descriptions to before. Asset accounts are excluded because they are the
// bank side of each entry. Ties break to the lowest account code so the
// result is deterministic.
func (s *Service) suggestFromHistory(ctx context.Context, userID uuid.UUID, description string) (*Suggestion, error) {
	keyword := firstKeyword(description)
	if keyword == "" {
		return nil, nil
	}

	matches, err := s.history.FindSimilarPosted(ctx, userID, keyword, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("history lookup: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	type tally struct {
		count int
		code  string
		name  string
	}
	counts := make(map[uuid.UUID]*tally)
	for _, txn := range matches {
		for _, line := range txn.Lines {
			if line.AccountType == ledger.AccountTypeAsset {
				continue
			}
			t, ok := counts[line.AccountID]
			if !ok {
				t = &tally{code: line.AccountCode, name: line.AccountName}
				counts[line.AccountID] = t
			}
			t.count++
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}

	var (
		bestID uuid.UUID
		best   *tally
	)
	for id, t := range counts {
		if best == nil || t.count > best.count || (t.count == best.count && t.code < best.code) {
			bestID = id
			best = t
		}
	}

	confidence := 0.5 + float64(best.count)/float64(len(matches))*0.4
	if confidence > maxHistConfidence {
		confidence = maxHistConfidence
	}

	accountID := bestID
	return &Suggestion{
		AccountID:   &accountID,
		AccountName: best.name,
		Confidence:  confidence,
		Reason:      fmt.Sprintf("Found %d similar transaction%s", best.count, plural(best.count)),
	}, nil
}

// firstKeyword returns the first whitespace token of the lower-cased
// description longer than minKeywordLength runes, or "".
func firstKeyword(description string) string {
	for _, token := range strings.Fields(strings.ToLower(description)) {
		if utf8.RuneCountInString(token) > minKeywordLength {
			return token
		}
	}
	return ""
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
