package categorization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
)

// PostgresRuleRepository implements RuleRepository using PostgreSQL.
type PostgresRuleRepository struct {
	db ledger.DBTX
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository. Pass a
// pgx.Tx to bind writes into an enclosing unit of work.
func NewPostgresRuleRepository(db ledger.DBTX) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

// TopMatch finds the strongest rule matching the description.
func (r *PostgresRuleRepository) TopMatch(ctx context.Context, userID uuid.UUID, description string) (*RuleMatch, error) {
	descLower := strings.ToLower(description)

	query := `
		SELECT r.id, r.user_id, r.pattern, r.account_id, r.confidence, r.match_count,
			r.last_matched, r.created_at, r.updated_at, a.name
		FROM categorization_rules r
		JOIN accounts a ON a.id = r.account_id
		WHERE r.user_id = $1 AND (r.pattern = $2 OR position(r.pattern IN $2) > 0)
		ORDER BY r.confidence DESC, r.match_count DESC
		LIMIT 1`

	match := &RuleMatch{}
	err := r.db.QueryRow(ctx, query, userID, descLower).Scan(
		&match.ID,
		&match.UserID,
		&match.Pattern,
		&match.AccountID,
		&match.Confidence,
		&match.MatchCount,
		&match.LastMatched,
		&match.CreatedAt,
		&match.UpdatedAt,
		&match.AccountName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match rules: %w", err)
	}
	return match, nil
}

// FindByTriple looks up the unique rule for (user, pattern, account).
func (r *PostgresRuleRepository) FindByTriple(ctx context.Context, userID uuid.UUID, pattern string, accountID uuid.UUID) (*Rule, error) {
	query := `
		SELECT id, user_id, pattern, account_id, confidence, match_count, last_matched, created_at, updated_at
		FROM categorization_rules
		WHERE user_id = $1 AND pattern = $2 AND account_id = $3`

	rule := &Rule{}
	err := r.db.QueryRow(ctx, query, userID, pattern, accountID).Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Pattern,
		&rule.AccountID,
		&rule.Confidence,
		&rule.MatchCount,
		&rule.LastMatched,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}
	return rule, nil
}

// Create inserts a new rule. The unique index on (user_id, pattern, account_id)
// backs the at-most-one-rule-per-triple invariant; concurrent creation of the
// same triple degrades to a match-count bump instead of a duplicate row.
func (r *PostgresRuleRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	query := `
		INSERT INTO categorization_rules (id, user_id, pattern, account_id, confidence, match_count, last_matched)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, pattern, account_id) DO UPDATE SET
			match_count = categorization_rules.match_count + 1,
			confidence = LEAST(1.0, categorization_rules.confidence + 0.05),
			last_matched = EXCLUDED.last_matched,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.UserID,
		rule.Pattern,
		rule.AccountID,
		rule.Confidence,
		rule.MatchCount,
		rule.LastMatched,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// RecordMatch bumps an existing rule after a repeated identical confirmation.
func (r *PostgresRuleRepository) RecordMatch(ctx context.Context, id uuid.UUID, matchCount int, confidence float64, lastMatched time.Time) error {
	query := `
		UPDATE categorization_rules
		SET match_count = $2, confidence = $3, last_matched = $4, updated_at = now()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, matchCount, confidence, lastMatched)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}
