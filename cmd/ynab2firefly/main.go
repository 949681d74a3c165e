package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"ynab2firefly/internal/config"
	"ynab2firefly/internal/firefly"
	"ynab2firefly/internal/ledger"
	"ynab2firefly/internal/logger"
	"ynab2firefly/internal/rates"
	"ynab2firefly/internal/store"
	"ynab2firefly/internal/ynab"
)

func main() {
	// Initialize structured logger with a per-run id
	log := logger.NewRun()

	// Parse CLI flags
	configPath := flag.String("config", "config.yml", "Path to the YAML configuration file")
	registerPath := flag.String("register", "", "Path to the YNAB register CSV export (required)")
	budgetPath := flag.String("budget", "", "Path to the YNAB budget CSV export (required)")
	cachePath := flag.String("cache", "ynab2firefly.db", "Path to the local sync cache database")
	dryRun := flag.Bool("dry-run", false, "Parse and reconcile only, upload nothing")
	minDate := flag.String("min-date", "", "Skip transactions before this date (YYYY-MM-DD)")
	maxDate := flag.String("max-date", "", "Skip transactions after this date (YYYY-MM-DD)")
	flag.Parse()

	if *registerPath == "" || *budgetPath == "" {
		log.Fatal().Msg("Error: --register and --budget are required")
	}

	// Load .env if present; environment wins over the file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}

	opts, err := parseDateFilters(*minDate, *maxDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date filter")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	data, cache, err := reconcile(ctx, cfg, *registerPath, *budgetPath, *cachePath, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}
	defer cache.Close()

	printPlan(data)
	if *dryRun {
		color.Yellow("Dry run, nothing uploaded.")
		return
	}

	baseURL := os.Getenv("FIREFLY_III_URL")
	token := os.Getenv("FIREFLY_III_ACCESS_TOKEN")
	if baseURL == "" || token == "" {
		log.Fatal().Msg("Error: FIREFLY_III_URL and FIREFLY_III_ACCESS_TOKEN must be set")
	}

	engine := firefly.NewEngine(firefly.NewClient(baseURL, token), cache, cfg, opts)
	sum, err := engine.Run(ctx, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}
	printSummary(sum)
}

// reconcile parses both exports and runs the full transformation pipeline.
// The returned cache is already open since the pipeline caches exchange rates
// through it. A dry run stays fully offline: foreign amounts resolve from
// memos and cached rates only, anything else is left for the real run.
func reconcile(ctx context.Context, cfg *config.Config, registerPath, budgetPath, cachePath string, dryRun bool) (*ledger.ImportData, *store.Store, error) {
	register, err := os.Open(registerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening register: %w", err)
	}
	defer register.Close()
	budget, err := os.Open(budgetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening budget: %w", err)
	}
	defer budget.Close()

	txns, budgets, err := ynab.NewParser(cfg).Parse(register, budget)
	if err != nil {
		return nil, nil, err
	}

	cache, err := store.Open(cachePath)
	if err != nil {
		return nil, nil, err
	}

	forex := ledger.NewForexResolver(cfg, rates.New(cfg.Currency), cache)
	if dryRun {
		forex = ledger.NewOfflineForexResolver(cfg, cache)
	}
	data, err := ledger.NewPipeline(cfg, forex).Run(ctx, txns, budgets)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}
	return data, cache, nil
}

func parseDateFilters(minDate, maxDate string) (firefly.Options, error) {
	var opts firefly.Options
	var err error
	if minDate != "" {
		if opts.MinDate, err = time.Parse("2006-01-02", minDate); err != nil {
			return opts, fmt.Errorf("bad --min-date %q", minDate)
		}
	}
	if maxDate != "" {
		if opts.MaxDate, err = time.Parse("2006-01-02", maxDate); err != nil {
			return opts, fmt.Errorf("bad --max-date %q", maxDate)
		}
	}
	return opts, nil
}

func printPlan(data *ledger.ImportData) {
	color.Cyan("Reconciled ledger:")
	fmt.Printf("  %d asset accounts, %d revenue payees, %d expense payees\n",
		len(data.AssetAccounts), len(data.RevenueAccounts), len(data.ExpenseAccounts))
	fmt.Printf("  %d budgets, %d categories, %d budget limits\n",
		len(data.Budgets), len(data.Categories), len(data.BudgetHistory))
	fmt.Printf("  %d transaction groups (%d withdrawals, %d deposits, %d transfers)\n",
		data.Stats.Groups, data.Stats.Withdrawals, data.Stats.Deposits, data.Stats.Transfers)
}

func printSummary(sum *firefly.Summary) {
	color.Green("Sync complete:")
	fmt.Printf("  entities: %d created, %d updated, %d unchanged\n", sum.Created, sum.Updated, sum.Skipped)
	fmt.Printf("  transactions: %d uploaded, %d already present, %d outside date range\n",
		sum.Uploaded, sum.Duplicates, sum.Filtered)
	fmt.Printf("  %d month-end balances verified\n", sum.Verified)
}
