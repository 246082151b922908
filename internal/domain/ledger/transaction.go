package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes where a transaction originated.
type TransactionType string

const (
	TransactionTypeBank       TransactionType = "bank"
	TransactionTypeCreditCard TransactionType = "credit_card"
	TransactionTypeJournal    TransactionType = "journal"
	TransactionTypeInvoice    TransactionType = "invoice"
	TransactionTypeBill       TransactionType = "bill"
	TransactionTypePayment    TransactionType = "payment"
)

// TransactionStatus is the posting state of a transaction.
type TransactionStatus string

const (
	StatusDraft  TransactionStatus = "draft"
	StatusPosted TransactionStatus = "posted"
	StatusVoid   TransactionStatus = "void"
)

// Transaction is a double-entry journal header. Its lines are owned
// exclusively by the transaction and are removed with it.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Date        time.Time
	Description string
	Reference   string
	Type        TransactionType
	Status      TransactionStatus
	Lines       []TransactionLine
	CreatedAt   time.Time
}

// TransactionLine is one side of a double-entry posting.
type TransactionLine struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Category      string
}

// Validate enforces the single-side rule: exactly one of debit/credit is
// strictly positive and the other is zero, with at most two decimal places.
func (l *TransactionLine) Validate() error {
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return fmt.Errorf("line amounts must be non-negative (debit %s, credit %s)", l.Debit, l.Credit)
	}
	hasDebit := l.Debit.IsPositive()
	hasCredit := l.Credit.IsPositive()
	if hasDebit == hasCredit {
		return fmt.Errorf("line must have exactly one of debit or credit (debit %s, credit %s)", l.Debit, l.Credit)
	}
	if l.Debit.Exponent() < -2 || l.Credit.Exponent() < -2 {
		if !l.Debit.Equal(l.Debit.Round(2)) || !l.Credit.Equal(l.Credit.Round(2)) {
			return fmt.Errorf("line amounts must have at most 2 decimal places (debit %s, credit %s)", l.Debit, l.Credit)
		}
	}
	if l.AccountID == uuid.Nil {
		return fmt.Errorf("line requires an account")
	}
	return nil
}

// Balanced reports whether debits equal credits across all lines.
func (t *Transaction) Balanced() bool {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i := range t.Lines {
		totalDebit = totalDebit.Add(t.Lines[i].Debit)
		totalCredit = totalCredit.Add(t.Lines[i].Credit)
	}
	return totalDebit.Equal(totalCredit)
}

// Validate checks every line and the balance invariant.
func (t *Transaction) Validate() error {
	if len(t.Lines) == 0 {
		return fmt.Errorf("transaction has no lines")
	}
	for i := range t.Lines {
		if err := t.Lines[i].Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	if !t.Balanced() {
		totalDebit := decimal.Zero
		totalCredit := decimal.Zero
		for i := range t.Lines {
			totalDebit = totalDebit.Add(t.Lines[i].Debit)
			totalCredit = totalCredit.Add(t.Lines[i].Credit)
		}
		return fmt.Errorf("unbalanced transaction: debits %s != credits %s",
			totalDebit.StringFixed(2), totalCredit.StringFixed(2))
	}
	return nil
}

// SimilarTransaction is a historical transaction returned by the similarity
// lookup, carrying the account metadata the suggestion engine tallies over.
type SimilarTransaction struct {
	ID          uuid.UUID
	Description string
	Lines       []SimilarLine
}

// SimilarLine is a line of a historical transaction with its account attributes.
type SimilarLine struct {
	AccountID   uuid.UUID
	AccountCode string
	AccountName string
	AccountType AccountType
}
