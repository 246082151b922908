package categorization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	initialConfidence = 0.7
	confidenceStep    = 0.05
	maxConfidence     = 1.0
)

// Learn records a user's confirmed categorization. The pattern is the
// lower-cased, trimmed description. A repeated confirmation of the same
// (user, pattern, account) triple bumps the existing rule's match count and
// confidence instead of creating a duplicate.
//
// Learn takes the repository explicitly so the import committer can pass one
// bound to its transaction handle: rule updates then roll back with the rest
// of a failed commit.
func Learn(ctx context.Context, rules RuleRepository, userID uuid.UUID, description string, accountID uuid.UUID) error {
	pattern := strings.ToLower(strings.TrimSpace(description))

	existing, err := rules.FindByTriple(ctx, userID, pattern, accountID)
	if err != nil {
		return fmt.Errorf("find rule: %w", err)
	}

	now := time.Now().UTC()
	if existing != nil {
		confidence := existing.Confidence + confidenceStep
		if confidence > maxConfidence {
			confidence = maxConfidence
		}
		if err := rules.RecordMatch(ctx, existing.ID, existing.MatchCount+1, confidence, now); err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		return nil
	}

	rule := &Rule{
		UserID:      userID,
		Pattern:     pattern,
		AccountID:   accountID,
		Confidence:  initialConfidence,
		MatchCount:  1,
		LastMatched: now,
	}
	if err := rules.Create(ctx, rule); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}
