// Package ledger turns parsed YNAB records into canonical transaction groups
// ready for upload: it resolves foreign-currency amounts, regroups split
// postings, collapses double-logged transfers, classifies budgets and
// categories, and reconstructs month-end balances for later verification.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"ynab2firefly/internal/ynab"
)

// Kind discriminates the three line item variants.
type Kind int

const (
	Withdrawal Kind = iota
	Deposit
	Transfer
)

// String returns the remote API's name for the kind.
func (k Kind) String() string {
	switch k {
	case Withdrawal:
		return "withdrawal"
	case Deposit:
		return "deposit"
	case Transfer:
		return "transfer"
	}
	return "unknown"
}

// LineItem is one transaction inside a group. Kind selects which of the
// variant fields are meaningful: Account/Payee/Budget/Category for
// withdrawals and deposits, FromAccount/ToAccount/Foreign for transfers.
type LineItem struct {
	Kind        Kind
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Notes       string
	Tags        []string
	Reconciled  bool

	// ExternalID is the dedup key the remote system uses to suppress
	// re-imports. It is derived from the source record's running balance,
	// which differs between any two records of the same amount on the same
	// day.
	ExternalID string

	// Withdrawal / Deposit fields.
	Account  string
	Payee    string
	Budget   string
	Category string

	// Transfer fields. Foreign is set if and only if exactly one of the two
	// accounts is held in a foreign currency.
	FromAccount string
	ToAccount   string
	Foreign     *ynab.ForeignAmount
}

// TransactionGroup is an ordered, non-empty set of line items uploaded as one
// remote transaction group.
type TransactionGroup struct {
	Title string
	Items []LineItem
}

// Budget is a budget to create remotely. Hidden budgets are imported
// inactive.
type Budget struct {
	Name   string
	Active bool
}

// BudgetHistory is the amount budgeted for one budget in one month.
type BudgetHistory struct {
	Name   string
	Amount decimal.Decimal
	Start  time.Time
	End    time.Time
}

// AccountRole is the remote ledger's asset account role.
type AccountRole string

const (
	RoleDefaultAsset AccountRole = "defaultAsset"
	RoleCreditCard   AccountRole = "ccAsset"
	RoleSavings      AccountRole = "savingAsset"
	RoleCashWallet   AccountRole = "cashWalletAsset"
)

// Account is an asset account to create remotely.
type Account struct {
	Name               string
	OpeningDate        time.Time
	MonthlyPaymentDate time.Time // set for credit card accounts only
	Role               AccountRole
	OpeningBalance     decimal.Decimal
	CurrencyCode       string
	Active             bool
}

// Stats counts what the pipeline produced, for the run summary.
type Stats struct {
	Withdrawals int
	Deposits    int
	Transfers   int
	Groups      int
}

// ImportData is everything the sync engine needs to replay the ledger into
// the remote system.
type ImportData struct {
	AssetAccounts   []Account
	RevenueAccounts []string
	ExpenseAccounts []string

	Categories    []string
	Budgets       map[string]Budget
	BudgetHistory []BudgetHistory

	TransactionGroups []TransactionGroup

	// RunningBalances maps month start to account name to the account's
	// balance at the end of that month, as recorded by the source ledger.
	// Used only as a verification oracle during upload.
	RunningBalances map[time.Time]map[string]decimal.Decimal

	Stats Stats
}

// MonthStart truncates a date to the first day of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of the date's month.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}
