// Package ynab parses YNAB4 register and budget CSV exports into typed
// records.
package ynab

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// transferMarker appears in the payee of every transfer leg.
	transferMarker = "Transfer : "
	// splitMarker appears in the memo of every split sub-record.
	splitMarker = "(Split "
	// StartingBalancePayee identifies the pseudo-record carrying an
	// account's opening balance.
	StartingBalancePayee = "Starting Balance"
)

// ForeignAmount is the resolved value of a transaction leg held in a
// non-default currency. It is populated eagerly by the foreign currency
// resolver before any downstream stage reads it.
type ForeignAmount struct {
	Amount   decimal.Decimal
	Currency string
}

// Transaction is one row of the YNAB register export.
type Transaction struct {
	Account        string
	Flag           string
	Date           time.Time
	Payee          string
	Category       string // concatenated "Master Category:Sub Category"
	MasterCategory string
	SubCategory    string
	Memo           string
	Outflow        decimal.Decimal
	Inflow         decimal.Decimal
	Cleared        string
	RunningBalance decimal.Decimal

	// Foreign is set by the foreign currency resolver when the record
	// touches a foreign-currency account.
	Foreign *ForeignAmount
}

// IsExpense reports whether money leaves the account.
func (t Transaction) IsExpense() bool { return t.Outflow.IsPositive() }

// IsDeposit reports whether money enters the account.
func (t Transaction) IsDeposit() bool { return t.Inflow.IsPositive() }

// IsTransfer reports whether the record is one leg of an account-to-account
// transfer.
func (t Transaction) IsTransfer() bool { return strings.Contains(t.Payee, transferMarker) }

// IsSplit reports whether the record is a sub-record of a split posting.
func (t Transaction) IsSplit() bool { return strings.Contains(t.Memo, splitMarker) }

// IsStartingBalance reports whether the record carries the account's opening
// balance rather than a real movement of money.
func (t Transaction) IsStartingBalance() bool { return t.Payee == StartingBalancePayee }

// Amount returns the single nonzero movement of the record. Exactly one of
// outflow and inflow is nonzero for any real transaction.
func (t Transaction) Amount() decimal.Decimal {
	if t.Outflow.IsPositive() {
		return t.Outflow
	}
	return t.Inflow
}

// TransferAccount recovers the other account's name from a transfer payee,
// accounting for the optional "(Split n/m) / " prefix a split transfer carries.
func (t Transaction) TransferAccount() string {
	payee := t.Payee
	if idx := strings.Index(payee, " / "+transferMarker); idx >= 0 {
		payee = payee[idx+len(" / "):]
	}
	if idx := strings.Index(payee, " : "); idx >= 0 {
		return payee[idx+len(" : "):]
	}
	return payee
}

// TransferPayee builds the payee value naming the given account as the other
// side of a transfer.
func TransferPayee(account string) string { return transferMarker + account }

// Reconciled reports whether YNAB marked this record as reconciled.
func (t Transaction) Reconciled() bool { return t.Cleared == "R" }

// Budget is one row of the YNAB budget export: the amount budgeted for one
// category in one month.
type Budget struct {
	Month           time.Time // first day of the month
	Category        string    // concatenated "Master Category:Sub Category"
	MasterCategory  string
	SubCategory     string
	Budgeted        decimal.Decimal
	Outflows        decimal.Decimal
	CategoryBalance decimal.Decimal
}

// HiddenCategoryGroup is the master category YNAB files hidden categories
// under.
const HiddenCategoryGroup = "Hidden Categories"

// PreYNABDebtPrefix marks the pseudo-categories YNAB creates for debt that
// predates the budget. They are excluded from the migration.
const PreYNABDebtPrefix = "Pre-YNAB Debt"

// IsHidden reports whether the budget row belongs to a hidden category.
func (b Budget) IsHidden() bool { return b.MasterCategory == HiddenCategoryGroup }

// IsPreYNAB reports whether the budget row is a pre-YNAB debt pseudo-category.
func (b Budget) IsPreYNAB() bool { return strings.HasPrefix(b.Category, PreYNABDebtPrefix) }
