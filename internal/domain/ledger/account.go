// Package ledger holds the chart of accounts and double-entry transaction
// model shared by the import pipeline and the categorization engine.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// NormalBalance indicates which side of an entry increases an account.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "debit"
	NormalBalanceCredit NormalBalance = "credit"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance returns the balance side implied by the account type.
// Assets and expenses carry a debit balance, everything else a credit balance.
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// Account is one entry in the chart of accounts.
type Account struct {
	ID            uuid.UUID
	Code          string // unique, sorted to pick deterministic defaults
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the account type and that the stored normal balance does not
// contradict the one implied by the type.
func (a *Account) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("invalid account type %q", a.Type)
	}
	if a.NormalBalance != "" && a.NormalBalance != a.Type.NormalBalance() {
		return fmt.Errorf("account %s: normal balance %q contradicts type %q", a.Code, a.NormalBalance, a.Type)
	}
	if a.Code == "" {
		return fmt.Errorf("account code is required")
	}
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	return nil
}
