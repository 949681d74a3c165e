package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"ynab2firefly/internal/ynab"
)

// ReconstructBalances replays the register in reverse chronological order and
// keeps, per (month, account), the first running balance seen — which is the
// account's balance at the end of that month, since the register is ordered
// oldest first. The result is the verification oracle for the upload phase.
func ReconstructBalances(records []ynab.Transaction) map[time.Time]map[string]decimal.Decimal {
	balances := make(map[time.Time]map[string]decimal.Decimal)
	for i := len(records) - 1; i >= 0; i-- {
		tx := records[i]
		month := MonthStart(tx.Date)
		byAccount, ok := balances[month]
		if !ok {
			byAccount = make(map[string]decimal.Decimal)
			balances[month] = byAccount
		}
		if _, ok := byAccount[tx.Account]; !ok {
			byAccount[tx.Account] = tx.RunningBalance
		}
	}
	return balances
}
