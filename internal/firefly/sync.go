package firefly

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"ynab2firefly/internal/config"
	"ynab2firefly/internal/ledger"
	"ynab2firefly/internal/logger"
	"ynab2firefly/internal/store"
)

// originalSource tags every uploaded transaction so imports can be told apart
// from manual entries.
const originalSource = "ynab2firefly-v1.0.0"

// Options bound the transaction upload. Zero times mean unbounded.
type Options struct {
	MinDate time.Time
	MaxDate time.Time
}

// Summary is what one sync run did.
type Summary struct {
	Created    int
	Updated    int
	Skipped    int
	Uploaded   int
	Duplicates int
	Filtered   int
	Verified   int
}

// Engine replays ImportData into the remote instance. Every step is
// idempotent: entities already present in the cache (and unchanged) are
// skipped, re-uploaded transactions are detected via the remote duplicate
// check and dropped.
type Engine struct {
	svc   Service
	cache *store.Store
	cfg   *config.Config
	opts  Options
}

// NewEngine builds a sync engine over the given service, cache and config.
func NewEngine(svc Service, cache *store.Store, cfg *config.Config, opts Options) *Engine {
	return &Engine{svc: svc, cache: cache, cfg: cfg, opts: opts}
}

// Run verifies connectivity and syncs every entity class, then uploads the
// transaction groups chronologically with month-end balance verification.
func (e *Engine) Run(ctx context.Context, data *ledger.ImportData) (*Summary, error) {
	log := logger.FromContext(ctx)
	sum := &Summary{}

	user, err := e.svc.AboutUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("firefly: verifying connection: %w", err)
	}
	log.Info().Str("user", user).Msg("Connected to Firefly III")

	steps := []struct {
		name string
		run  func(context.Context, *Summary, *ledger.ImportData) error
	}{
		{"currencies", e.syncCurrencies},
		{"categories", e.syncCategories},
		{"budgets", e.syncBudgets},
		{"budget limits", e.syncBudgetLimits},
		{"asset accounts", e.syncAssetAccounts},
		{"revenue accounts", e.syncRevenueAccounts},
		{"expense accounts", e.syncExpenseAccounts},
		{"transactions", e.uploadTransactions},
	}
	for _, step := range steps {
		if err := step.run(ctx, sum, data); err != nil {
			return nil, fmt.Errorf("firefly: syncing %s: %w", step.name, err)
		}
		log.Debug().Str("step", step.name).Msg("Sync step done")
	}
	return sum, nil
}

// ensureClass fills an empty cache class from the remote list endpoint. A
// populated class is trusted as-is.
func (e *Engine) ensureClass(ctx context.Context, class, path string, query url.Values, key func(Object) []string) error {
	n, err := e.cache.Count(class)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	objects, err := e.svc.ListPages(ctx, path, query)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := e.putObject(class, key(o), o); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) putObject(class string, key []string, o Object) error {
	return e.cache.PutEntity(class, key, store.Entity{ID: o.ID, Attributes: o.Attributes})
}

func attrString(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func attrBool(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}

// attrDate extracts the calendar date from a remote attribute, which may be a
// full timestamp.
func attrDate(attrs map[string]any, key string) string {
	s := attrString(attrs, key)
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func attrDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case string:
		if d, err := decimal.NewFromString(n); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(n)
	}
	return decimal.Zero
}

// needsUpdate reports whether any desired attribute differs from the cached
// remote attributes. Dates compare on the calendar day, numeric strings
// compare as decimals with a missing remote value reading as zero.
func needsUpdate(desired, attrs map[string]any) bool {
	for k, want := range desired {
		if k == "type" {
			continue
		}
		if !attrEqual(want, attrs[k]) {
			return true
		}
	}
	return false
}

func attrEqual(want, got any) bool {
	switch w := want.(type) {
	case Date:
		s, ok := got.(string)
		return ok && len(s) >= 10 && s[:10] == w.String()
	case bool:
		b, ok := got.(bool)
		return ok && b == w
	case string:
		if wd, err := decimal.NewFromString(w); err == nil {
			return wd.Equal(attrDecimal(got))
		}
		s, _ := got.(string)
		return s == w
	case []string:
		return true // tags are write-only
	}
	return false
}

func (e *Engine) syncCurrencies(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	log := logger.FromContext(ctx)

	// EUR stays enabled unconditionally: the remote instance refuses to
	// disable it while it backs historical exchange rates.
	keep := map[string]bool{"EUR": true, e.cfg.Currency: true}
	for name := range e.cfg.Accounts {
		keep[e.cfg.AccountCurrency(name)] = true
	}

	if err := e.ensureClass(ctx, store.ClassCurrencies, "currencies", nil, func(o Object) []string {
		return []string{attrString(o.Attributes, "code")}
	}); err != nil {
		return err
	}

	cached, err := e.cache.Entities(store.ClassCurrencies)
	if err != nil {
		return err
	}
	for _, cur := range cached {
		code := attrString(cur.Attributes, "code")
		enabled := attrBool(cur.Attributes, "enabled")
		switch {
		case keep[code] && !enabled:
			o, err := e.svc.Create(ctx, "currencies/"+code+"/enable", nil)
			if err != nil {
				return err
			}
			if err := e.putObject(store.ClassCurrencies, []string{code}, o); err != nil {
				return err
			}
			log.Info().Str("currency", code).Msg("Enabled currency")
			sum.Updated++
		case !keep[code] && enabled:
			o, err := e.svc.Create(ctx, "currencies/"+code+"/disable", nil)
			if err != nil {
				return err
			}
			if err := e.putObject(store.ClassCurrencies, []string{code}, o); err != nil {
				return err
			}
			log.Info().Str("currency", code).Msg("Disabled currency")
			sum.Updated++
		default:
			sum.Skipped++
		}
	}

	def, found, err := e.cache.Entity(store.ClassCurrencies, []string{e.cfg.Currency})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("default currency %s does not exist remotely", e.cfg.Currency)
	}
	if !attrBool(def.Attributes, "default") {
		o, err := e.svc.Create(ctx, "currencies/"+e.cfg.Currency+"/default", nil)
		if err != nil {
			return err
		}
		if err := e.putObject(store.ClassCurrencies, []string{e.cfg.Currency}, o); err != nil {
			return err
		}
		log.Info().Str("currency", e.cfg.Currency).Msg("Set default currency")
		sum.Updated++
	}
	return nil
}

func (e *Engine) syncCategories(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	if err := e.ensureClass(ctx, store.ClassCategories, "categories", nil, func(o Object) []string {
		return []string{attrString(o.Attributes, "name")}
	}); err != nil {
		return err
	}
	for _, name := range data.Categories {
		_, found, err := e.cache.Entity(store.ClassCategories, []string{name})
		if err != nil {
			return err
		}
		if found {
			sum.Skipped++
			continue
		}
		o, err := e.svc.Create(ctx, "categories", map[string]any{"name": name})
		if err != nil {
			return err
		}
		if err := e.putObject(store.ClassCategories, []string{name}, o); err != nil {
			return err
		}
		sum.Created++
	}
	return nil
}

func (e *Engine) syncBudgets(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	log := logger.FromContext(ctx)

	if err := e.ensureClass(ctx, store.ClassBudgets, "budgets", nil, func(o Object) []string {
		return []string{attrString(o.Attributes, "name")}
	}); err != nil {
		return err
	}

	names := make([]string, 0, len(data.Budgets))
	for name := range data.Budgets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		bg := data.Budgets[name]
		payload := map[string]any{"name": bg.Name, "active": bg.Active}

		cached, found, err := e.cache.Entity(store.ClassBudgets, []string{name})
		if err != nil {
			return err
		}
		switch {
		case !found:
			o, err := e.svc.Create(ctx, "budgets", payload)
			if err != nil {
				// The remote budget endpoints are known to report a server
				// error after applying the change; the next run reconciles.
				if IsServerError(err) {
					log.Warn().Err(err).Str("budget", name).Msg("Server error creating budget, assuming it was applied")
					continue
				}
				return err
			}
			if err := e.putObject(store.ClassBudgets, []string{name}, o); err != nil {
				return err
			}
			sum.Created++
		case needsUpdate(payload, cached.Attributes):
			o, err := e.svc.Update(ctx, "budgets/"+cached.ID, payload)
			if err != nil {
				if IsServerError(err) {
					log.Warn().Err(err).Str("budget", name).Msg("Server error updating budget, assuming it was applied")
					continue
				}
				return err
			}
			if err := e.putObject(store.ClassBudgets, []string{name}, o); err != nil {
				return err
			}
			sum.Updated++
		default:
			sum.Skipped++
		}
	}
	return nil
}

func (e *Engine) syncBudgetLimits(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	if e.cfg.SkipBudgetLimits {
		return nil
	}
	log := logger.FromContext(ctx)

	// Limits list per budget, so the class is filled by walking the cached
	// budgets rather than one list endpoint.
	n, err := e.cache.Count(store.ClassBudgetLimits)
	if err != nil {
		return err
	}
	if n == 0 {
		budgets, err := e.cache.Entities(store.ClassBudgets)
		if err != nil {
			return err
		}
		for _, bg := range budgets {
			name := attrString(bg.Attributes, "name")
			limits, err := e.svc.ListPages(ctx, "budgets/"+bg.ID+"/limits", nil)
			if err != nil {
				return err
			}
			for _, o := range limits {
				key := []string{name, attrDate(o.Attributes, "start"), attrDate(o.Attributes, "end")}
				if err := e.putObject(store.ClassBudgetLimits, key, o); err != nil {
					return err
				}
			}
		}
	}

	for _, h := range data.BudgetHistory {
		budget, found, err := e.cache.Entity(store.ClassBudgets, []string{h.Name})
		if err != nil {
			return err
		}
		if !found {
			// Happens when the budget create hit a swallowed server error;
			// the next run picks the limit up.
			log.Warn().Str("budget", h.Name).Msg("Budget not cached yet, deferring its limit to the next run")
			continue
		}

		start, end := NewDate(h.Start), NewDate(h.End)
		payload := map[string]any{
			"start":  start,
			"end":    end,
			"amount": h.Amount.String(),
		}
		key := []string{h.Name, start.String(), end.String()}

		cached, found, err := e.cache.Entity(store.ClassBudgetLimits, key)
		if err != nil {
			return err
		}
		switch {
		case !found:
			o, err := e.svc.Create(ctx, "budgets/"+budget.ID+"/limits", payload)
			if err != nil {
				return err
			}
			if err := e.putObject(store.ClassBudgetLimits, key, o); err != nil {
				return err
			}
			sum.Created++
		case needsUpdate(payload, cached.Attributes):
			o, err := e.svc.Update(ctx, "budgets/"+budget.ID+"/limits/"+cached.ID, payload)
			if err != nil {
				return err
			}
			if err := e.putObject(store.ClassBudgetLimits, key, o); err != nil {
				return err
			}
			sum.Updated++
		default:
			sum.Skipped++
		}
	}
	return nil
}

func (e *Engine) syncAssetAccounts(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	if err := e.ensureClass(ctx, store.ClassAssetAccounts, "accounts", url.Values{"type": {"asset"}}, func(o Object) []string {
		return []string{attrString(o.Attributes, "name")}
	}); err != nil {
		return err
	}

	for _, acc := range data.AssetAccounts {
		payload := map[string]any{
			"name":                 acc.Name,
			"type":                 "asset",
			"account_role":         string(acc.Role),
			"currency_code":        acc.CurrencyCode,
			"opening_balance":      acc.OpeningBalance.String(),
			"opening_balance_date": NewDate(acc.OpeningDate),
			"active":               acc.Active,
		}
		if acc.Role == ledger.RoleCreditCard {
			payload["credit_card_type"] = "monthlyFull"
			payload["monthly_payment_date"] = NewDate(acc.MonthlyPaymentDate)
		}
		if err := e.createOrUpdate(ctx, sum, store.ClassAssetAccounts, "accounts", []string{acc.Name}, payload); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) syncRevenueAccounts(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	return e.syncPayeeAccounts(ctx, sum, store.ClassRevenueAccounts, "revenue", data.RevenueAccounts)
}

func (e *Engine) syncExpenseAccounts(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	return e.syncPayeeAccounts(ctx, sum, store.ClassExpenseAccounts, "expense", data.ExpenseAccounts)
}

func (e *Engine) syncPayeeAccounts(ctx context.Context, sum *Summary, class, accountType string, names []string) error {
	if err := e.ensureClass(ctx, class, "accounts", url.Values{"type": {accountType}}, func(o Object) []string {
		return []string{attrString(o.Attributes, "name")}
	}); err != nil {
		return err
	}
	for _, name := range names {
		payload := map[string]any{"name": name, "type": accountType}
		if err := e.createOrUpdate(ctx, sum, class, "accounts", []string{name}, payload); err != nil {
			return err
		}
	}
	return nil
}

// createOrUpdate applies the generic entity flow: create when unknown, update
// when the desired attributes drifted, skip otherwise.
func (e *Engine) createOrUpdate(ctx context.Context, sum *Summary, class, path string, key []string, payload map[string]any) error {
	cached, found, err := e.cache.Entity(class, key)
	if err != nil {
		return err
	}
	switch {
	case !found:
		o, err := e.svc.Create(ctx, path, payload)
		if err != nil {
			return err
		}
		if err := e.putObject(class, key, o); err != nil {
			return err
		}
		sum.Created++
	case needsUpdate(payload, cached.Attributes):
		o, err := e.svc.Update(ctx, path+"/"+cached.ID, payload)
		if err != nil {
			return err
		}
		if err := e.putObject(class, key, o); err != nil {
			return err
		}
		sum.Updated++
	default:
		sum.Skipped++
	}
	return nil
}

func (e *Engine) uploadTransactions(ctx context.Context, sum *Summary, data *ledger.ImportData) error {
	log := logger.FromContext(ctx)

	var lastMonth time.Time
	for _, tg := range data.TransactionGroups {
		date := tg.Items[0].Date
		if (!e.opts.MinDate.IsZero() && date.Before(e.opts.MinDate)) ||
			(!e.opts.MaxDate.IsZero() && date.After(e.opts.MaxDate)) {
			sum.Filtered++
			continue
		}

		month := ledger.MonthStart(date)
		if !lastMonth.IsZero() && month.After(lastMonth) {
			if err := e.verifyMonth(ctx, sum, lastMonth, data); err != nil {
				return err
			}
		}
		lastMonth = month

		payload := map[string]any{
			"error_if_duplicate_hash": true,
			"transactions":            transactionsPayload(tg),
		}
		if tg.Title != "" {
			payload["group_title"] = tg.Title
		}

		if _, err := e.svc.Create(ctx, "transactions", payload); err != nil {
			if ids, ok := DuplicateTransactionIDs(err); ok {
				log.Debug().Strs("remote_ids", ids).Str("date", date.Format("2006-01-02")).
					Msg("Group already imported, skipping")
				sum.Duplicates++
				continue
			}
			return err
		}
		sum.Uploaded++
	}
	if !lastMonth.IsZero() {
		return e.verifyMonth(ctx, sum, lastMonth, data)
	}
	return nil
}

func transactionsPayload(tg ledger.TransactionGroup) []map[string]any {
	items := make([]map[string]any, 0, len(tg.Items))
	for _, item := range tg.Items {
		tx := map[string]any{
			"type":            item.Kind.String(),
			"date":            NewDate(item.Date),
			"amount":          item.Amount.String(),
			"description":     item.Description,
			"external_id":     item.ExternalID,
			"reconciled":      item.Reconciled,
			"original_source": originalSource,
		}
		if item.Notes != "" {
			tx["notes"] = item.Notes
		}
		if len(item.Tags) > 0 {
			tx["tags"] = item.Tags
		}
		switch item.Kind {
		case ledger.Transfer:
			tx["source_name"] = item.FromAccount
			tx["destination_name"] = item.ToAccount
			if item.Foreign != nil {
				tx["foreign_amount"] = item.Foreign.Amount.String()
				tx["foreign_currency_code"] = item.Foreign.Currency
			}
		case ledger.Deposit:
			tx["source_name"] = item.Payee
			tx["destination_name"] = item.Account
		default:
			tx["source_name"] = item.Account
			tx["destination_name"] = item.Payee
		}
		if item.Kind != ledger.Transfer {
			if item.Budget != "" {
				tx["budget_name"] = item.Budget
			}
			if item.Category != "" {
				tx["category_name"] = item.Category
			}
		}
		items = append(items, tx)
	}
	return items
}

// verifyMonth refetches the remote asset account balances as of the end of
// the month, bypassing the cache, and checks them against the balances the
// source ledger recorded. Foreign-currency accounts are skipped since their
// source balances are in the foreign currency.
func (e *Engine) verifyMonth(ctx context.Context, sum *Summary, month time.Time, data *ledger.ImportData) error {
	expected, ok := data.RunningBalances[month]
	if !ok {
		return nil
	}
	log := logger.FromContext(ctx)
	monthEnd := ledger.MonthEnd(month)

	remote, err := e.svc.ListPages(ctx, "accounts", url.Values{
		"type": {"asset"},
		"date": {monthEnd.Format("2006-01-02")},
	})
	if err != nil {
		return err
	}
	balances := make(map[string]decimal.Decimal, len(remote))
	for _, o := range remote {
		balances[attrString(o.Attributes, "name")] = attrDecimal(o.Attributes["current_balance"])
	}

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if e.cfg.IsForeign(name) {
			continue
		}
		want := expected[name]
		got, ok := balances[name]
		if !ok {
			return fmt.Errorf("account %q missing remotely while verifying %s balances", name, month.Format("2006-01"))
		}
		if !want.Equal(got) {
			code := e.cfg.Currency
			return fmt.Errorf("balance mismatch for %q at %s: ledger says %s, remote says %s",
				name, monthEnd.Format("2006-01-02"),
				money.NewFromFloat(want.InexactFloat64(), code).Display(),
				money.NewFromFloat(got.InexactFloat64(), code).Display())
		}
	}
	log.Debug().Str("month", month.Format("2006-01")).Msg("Balances verified")
	sum.Verified++
	return nil
}
