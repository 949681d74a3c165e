package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ynab2firefly/internal/config"
	"ynab2firefly/internal/logger"
	"ynab2firefly/internal/ynab"
)

// inferredPaymentDate is used when a credit card account has no configured
// monthly payment date and none can be inferred. Only month and day matter.
var inferredPaymentDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Pipeline runs the full reconciliation: budgets, accounts, then transaction
// groups. It performs no remote I/O beyond rate lookups done by the foreign
// currency resolver.
type Pipeline struct {
	cfg   *config.Config
	forex *ForexResolver
}

// NewPipeline creates a pipeline over the given configuration and resolver.
func NewPipeline(cfg *config.Config, forex *ForexResolver) *Pipeline {
	return &Pipeline{cfg: cfg, forex: forex}
}

// Run normalizes the parsed exports into ImportData.
func (p *Pipeline) Run(ctx context.Context, txns []ynab.Transaction, budgets []ynab.Budget) (*ImportData, error) {
	log := logger.FromContext(ctx)

	data := &ImportData{Budgets: make(map[string]Budget)}

	p.processBudgets(data, budgets)
	log.Info().
		Int("budgets", len(data.Budgets)).
		Int("categories", len(data.Categories)).
		Int("budget_limits", len(data.BudgetHistory)).
		Msg("Processed budget export")

	if err := p.processAccounts(ctx, data, txns); err != nil {
		return nil, err
	}
	log.Info().
		Int("asset_accounts", len(data.AssetAccounts)).
		Int("revenue_accounts", len(data.RevenueAccounts)).
		Int("expense_accounts", len(data.ExpenseAccounts)).
		Msg("Processed accounts")

	if err := p.processTransactions(ctx, data, txns); err != nil {
		return nil, err
	}
	log.Info().
		Int("withdrawals", data.Stats.Withdrawals).
		Int("deposits", data.Stats.Deposits).
		Int("transfers", data.Stats.Transfers).
		Int("groups", data.Stats.Groups).
		Msg("Processed transactions")

	return data, nil
}

// Special budgets and categories covering income assigned to the current or
// next month (YNAB Rule 4).
var incomeBuckets = []string{"Available this month", "Available next month"}

func (p *Pipeline) processBudgets(data *ImportData, budgets []ynab.Budget) {
	seenCategories := make(map[string]bool)
	for _, bg := range budgets {
		if bg.IsHidden() {
			continue
		}
		if c := CategoryName(p.cfg, budgetFields(bg)); c != "" && !seenCategories[c] {
			seenCategories[c] = true
			data.Categories = append(data.Categories, c)
		}
	}
	data.Categories = append(data.Categories, incomeBuckets...)

	for _, bg := range budgets {
		if bg.IsPreYNAB() {
			continue
		}
		name := BudgetName(p.cfg, budgetFields(bg))
		if name == "" {
			continue
		}
		data.Budgets[name] = Budget{Name: name, Active: !bg.IsHidden()}
		if !bg.Budgeted.IsZero() {
			data.BudgetHistory = append(data.BudgetHistory, BudgetHistory{
				Name:   name,
				Amount: bg.Budgeted,
				Start:  MonthStart(bg.Month),
				End:    MonthEnd(bg.Month),
			})
		}
	}
	for _, name := range incomeBuckets {
		data.Budgets[name] = Budget{Name: name, Active: true}
	}
}

func (p *Pipeline) processAccounts(ctx context.Context, data *ImportData, txns []ynab.Transaction) error {
	log := logger.FromContext(ctx)

	names := make(map[string]bool)
	for _, tx := range txns {
		names[tx.Account] = true
	}
	for acc := range p.cfg.Accounts {
		if !names[acc] {
			return fmt.Errorf("ledger: configured account %q has no transactions in the register", acc)
		}
	}

	startingBalances := make(map[string]ynab.Transaction)
	for _, tx := range txns {
		if tx.IsStartingBalance() {
			startingBalances[tx.Account] = tx
		}
	}

	sorted := make([]string, 0, len(names))
	for acc := range names {
		sorted = append(sorted, acc)
	}
	sort.Strings(sorted)

	for _, acc := range sorted {
		start, ok := startingBalances[acc]
		if !ok {
			return fmt.Errorf("ledger: account %q has no %q record", acc, ynab.StartingBalancePayee)
		}
		accCfg := p.cfg.Account(acc)
		role := accountRole(accCfg.Role)

		account := Account{
			Name:           acc,
			OpeningDate:    start.Date,
			Role:           role,
			OpeningBalance: start.Inflow.Sub(start.Outflow),
			CurrencyCode:   p.cfg.AccountCurrency(acc),
			Active:         !accCfg.Inactive,
		}
		if role == RoleCreditCard {
			date, err := p.monthlyPaymentDate(acc, accCfg, txns)
			if err != nil {
				return err
			}
			if date.IsZero() {
				log.Warn().Str("account", acc).Msg("Couldn't infer monthly payment date, defaulting to Jan 1")
				date = inferredPaymentDate
			}
			account.MonthlyPaymentDate = date
		}
		data.AssetAccounts = append(data.AssetAccounts, account)
	}

	revenue := make(map[string]bool)
	expense := make(map[string]bool)
	for _, tx := range txns {
		if tx.IsTransfer() || tx.IsStartingBalance() {
			continue
		}
		if tx.IsDeposit() {
			revenue[p.payee(tx)] = true
		} else if tx.IsExpense() {
			expense[p.payee(tx)] = true
		}
	}
	data.RevenueAccounts = sortedKeys(revenue)
	data.ExpenseAccounts = sortedKeys(expense)
	return nil
}

// monthlyPaymentDate resolves a credit card's bill payment date: configured
// value first (ISO layout, then the register layout), otherwise the most
// recent transfer into the account. A zero time means nothing was found.
func (p *Pipeline) monthlyPaymentDate(acc string, accCfg config.Account, txns []ynab.Transaction) (time.Time, error) {
	if accCfg.MonthlyPaymentDate != "" {
		if t, err := time.Parse("2006-01-02", accCfg.MonthlyPaymentDate); err == nil {
			return t, nil
		}
		if t, err := p.cfg.ParseDate(accCfg.MonthlyPaymentDate); err == nil {
			return t, nil
		}
		return time.Time{}, fmt.Errorf("ledger: account %q: unparseable monthly payment date %q", acc, accCfg.MonthlyPaymentDate)
	}
	for i := len(txns) - 1; i >= 0; i-- {
		tx := txns[i]
		if tx.IsTransfer() && tx.TransferAccount() == acc {
			return tx.Date, nil
		}
	}
	return time.Time{}, nil
}

func (p *Pipeline) processTransactions(ctx context.Context, data *ImportData, txns []ynab.Transaction) error {
	log := logger.FromContext(ctx)

	data.RunningBalances = ReconstructBalances(txns)

	// Starting-balance pseudo-records and zero-movement rows feed opening
	// balances and the oracle above, but are not transactions.
	records := make([]ynab.Transaction, 0, len(txns))
	for _, tx := range txns {
		if tx.IsStartingBalance() || (tx.Inflow.IsZero() && tx.Outflow.IsZero()) {
			continue
		}
		records = append(records, tx)
	}

	classifier := NewClassifier(p.cfg, data.Budgets, data.Categories)
	deduper := NewTransferDeduper(log)

	for _, group := range GroupRecords(records) {
		tg := TransactionGroup{}
		if len(group) > 1 {
			tg.Title = p.cfg.EmptyDescription
		}

		for _, tx := range group {
			tx = Canonicalize(tx)
			resolved, err := p.forex.Resolve(ctx, tx)
			if err != nil {
				return err
			}
			tx = resolved

			budget, category, err := classifier.Classify(tx)
			if err != nil {
				return err
			}

			item := LineItem{
				Date:        tx.Date,
				Amount:      p.amount(tx),
				Description: p.description(tx),
				Notes:       p.notes(tx),
				Tags:        p.tags(tx),
				Reconciled:  tx.Reconciled(),
				// The running balance differs between any two same-day
				// records of the same amount, which makes it a usable
				// cross-run dedup key.
				ExternalID: tx.RunningBalance.String(),
			}

			switch {
			case tx.IsTransfer():
				if !deduper.Keep(tx) {
					continue
				}
				item.Kind = Transfer
				item.FromAccount = tx.Account
				item.ToAccount = tx.TransferAccount()
				if p.cfg.IsForeign(tx.Account) != p.cfg.IsForeign(item.ToAccount) {
					item.Foreign = tx.Foreign
				}
				data.Stats.Transfers++
			case tx.IsExpense():
				item.Kind = Withdrawal
				item.Account = tx.Account
				item.Payee = p.payee(tx)
				item.Budget = budget
				item.Category = category
				data.Stats.Withdrawals++
			case tx.IsDeposit():
				item.Kind = Deposit
				item.Account = tx.Account
				item.Payee = p.payee(tx)
				item.Budget = budget
				item.Category = category
				data.Stats.Deposits++
			default:
				return fmt.Errorf("ledger: record is neither expense, deposit nor transfer: %q on %s",
					tx.Payee, tx.Date.Format("2006-01-02"))
			}
			tg.Items = append(tg.Items, item)
		}

		// A group can end up empty when its only record was the duplicate
		// leg of a transfer.
		if len(tg.Items) > 0 {
			data.TransactionGroups = append(data.TransactionGroups, tg)
		}
	}
	data.Stats.Groups = len(data.TransactionGroups)
	return nil
}

// amount picks the value to record: the resolved foreign amount when the
// (canonical) source account is foreign, the plain movement otherwise.
func (p *Pipeline) amount(tx ynab.Transaction) decimal.Decimal {
	if p.cfg.IsForeign(tx.Account) && tx.Foreign != nil {
		return tx.Foreign.Amount
	}
	return tx.Amount()
}

func (p *Pipeline) payee(tx ynab.Transaction) string {
	payee := strings.TrimSpace(tx.Payee)
	if mapped, ok := p.cfg.PayeeMapping[payee]; ok {
		return mapped
	}
	return payee
}

func (p *Pipeline) description(tx ynab.Transaction) string {
	if !*p.cfg.MemoToDescription {
		return p.cfg.EmptyDescription
	}
	memo := strings.TrimSpace(tx.Memo)
	if strings.Contains(memo, "(Split") {
		if idx := strings.Index(memo, ")"); idx >= 0 {
			memo = strings.TrimSpace(memo[idx+1:])
		}
	}
	if memo == "" {
		return p.cfg.EmptyDescription
	}
	return memo
}

func (p *Pipeline) notes(tx ynab.Transaction) string {
	if !*p.cfg.MemoToDescription {
		return strings.TrimSpace(tx.Memo)
	}
	return ""
}

func (p *Pipeline) tags(tx ynab.Transaction) []string {
	if tx.Flag == "" {
		return nil
	}
	return []string{tx.Flag}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func accountRole(role string) AccountRole {
	switch role {
	case config.RoleCreditCard:
		return RoleCreditCard
	case config.RoleSavings:
		return RoleSavings
	case config.RoleCash:
		return RoleCashWallet
	default:
		return RoleDefaultAsset
	}
}
