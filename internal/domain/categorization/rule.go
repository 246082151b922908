// Package categorization learns and applies per-user rules mapping bank
// transaction descriptions to ledger accounts.
package categorization

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Rule maps a learned description pattern to an account for one user. The
// pattern is a lower-cased, trimmed description; a rule matches when its
// pattern equals the incoming description or is contained in it. At most one
// rule exists per (user, pattern, account) triple.
type Rule struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Pattern     string
	AccountID   uuid.UUID
	Confidence  float64 // in [0, 1]
	MatchCount  int
	LastMatched time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RuleMatch is a rule joined with the name of its target account.
type RuleMatch struct {
	Rule
	AccountName string
}

// RuleRepository persists categorization rules.
type RuleRepository interface {
	// TopMatch returns the strongest rule matching the description, ranked by
	// confidence then match count, or nil if none matches.
	TopMatch(ctx context.Context, userID uuid.UUID, description string) (*RuleMatch, error)
	// FindByTriple returns the rule for (user, pattern, account), or nil.
	FindByTriple(ctx context.Context, userID uuid.UUID, pattern string, accountID uuid.UUID) (*Rule, error)
	Create(ctx context.Context, rule *Rule) error
	RecordMatch(ctx context.Context, id uuid.UUID, matchCount int, confidence float64, lastMatched time.Time) error
}
