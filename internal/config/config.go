// Package config loads and validates the importer configuration file.
//
// The configuration is a YAML document describing the YNAB side of the
// migration: the default currency, per-account overrides (foreign currency,
// account role, monthly payment date), rename tables for payees and budgets,
// and which of the YNAB category fields feed the category and budget names.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Rhymond/go-money"
	"gopkg.in/yaml.v2"
)

// Account roles understood by the configuration. They map onto the remote
// ledger's asset account roles during sync.
const (
	RoleDefault    = "default"
	RoleCreditCard = "credit_card"
	RoleSavings    = "savings"
	RoleCash       = "cash"
)

// Category field selectors. "category" is the concatenated
// "Master Category:Sub Category" value, "sub_category" the sub category alone.
const (
	FieldCategory    = "category"
	FieldSubCategory = "sub_category"
)

// Account holds the per-account overrides. Accounts that need no overrides do
// not have to appear in the config at all.
type Account struct {
	// Currency is the ISO 4217 code of the account's currency. Empty means
	// the default currency.
	Currency string `yaml:"currency"`

	// Role is one of default, credit_card, savings, cash.
	Role string `yaml:"role"`

	// MonthlyPaymentDate is the bill payment date for credit card accounts.
	// If empty it is inferred from transfer transactions into the account.
	MonthlyPaymentDate string `yaml:"monthly_payment_date"`

	// Inactive marks the account as inactive after import.
	Inactive bool `yaml:"inactive"`
}

// Config is the application configuration.
type Config struct {
	// Accounts maps YNAB account names to their overrides.
	Accounts map[string]Account `yaml:"accounts"`

	// Currency is the default (local) currency code.
	Currency string `yaml:"currency"`

	// DateFormat is the register date layout in Go reference-time form,
	// e.g. "01/02/2006" for MM/DD/YYYY exports.
	DateFormat string `yaml:"date_format"`

	// PayeeMapping renames payees before classification.
	PayeeMapping map[string]string `yaml:"payee_mapping"`

	// BudgetMapping maps raw concatenated category values to budget names,
	// taking precedence over the derived name.
	BudgetMapping map[string]string `yaml:"budget_mapping"`

	// SkipBudgetLimits disables the budget limit import step.
	SkipBudgetLimits bool `yaml:"skip_budget_limits"`

	// CategoryField selects which YNAB field provides the category name.
	CategoryField string `yaml:"category_field"`

	// BudgetField selects which YNAB field provides the budget name.
	BudgetField string `yaml:"budget_field"`

	// MemoToDescription moves the memo into the description. When false the
	// memo lands in the notes field instead.
	MemoToDescription *bool `yaml:"memo_to_description"`

	// EmptyDescription is the placeholder used when no description can be
	// determined.
	EmptyDescription string `yaml:"empty_description"`
}

// Load reads and validates a configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes, applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.DateFormat == "" {
		c.DateFormat = "01/02/2006"
	}
	if c.CategoryField == "" {
		c.CategoryField = FieldSubCategory
	}
	if c.BudgetField == "" {
		c.BudgetField = FieldSubCategory
	}
	if c.MemoToDescription == nil {
		t := true
		c.MemoToDescription = &t
	}
	if c.EmptyDescription == "" {
		c.EmptyDescription = "(empty description)"
	}
}

// Validate checks the configuration and returns an error describing every
// problem found.
func (c *Config) Validate() error {
	if money.GetCurrency(c.Currency) == nil {
		return fmt.Errorf("config: unknown default currency code %q", c.Currency)
	}
	for name, acc := range c.Accounts {
		if acc.Currency != "" && money.GetCurrency(acc.Currency) == nil {
			return fmt.Errorf("config: account %q: unknown currency code %q", name, acc.Currency)
		}
		switch acc.Role {
		case "", RoleDefault, RoleCreditCard, RoleSavings, RoleCash:
		default:
			return fmt.Errorf("config: account %q: unknown role %q", name, acc.Role)
		}
	}
	switch c.CategoryField {
	case FieldCategory, FieldSubCategory:
	default:
		return fmt.Errorf("config: category_field must be %q or %q, got %q", FieldCategory, FieldSubCategory, c.CategoryField)
	}
	switch c.BudgetField {
	case FieldCategory, FieldSubCategory:
	default:
		return fmt.Errorf("config: budget_field must be %q or %q, got %q", FieldCategory, FieldSubCategory, c.BudgetField)
	}
	return nil
}

// Account returns the overrides for the named account, or a zero Account when
// none are configured.
func (c *Config) Account(name string) Account {
	return c.Accounts[name]
}

// IsForeign reports whether the named account is held in a currency other
// than the default currency.
func (c *Config) IsForeign(name string) bool {
	cur := c.Account(name).Currency
	return cur != "" && cur != c.Currency
}

// AccountCurrency returns the currency code of the named account, falling
// back to the default currency.
func (c *Config) AccountCurrency(name string) string {
	if cur := c.Account(name).Currency; cur != "" {
		return cur
	}
	return c.Currency
}

// ParseDate parses a register date using the configured layout.
func (c *Config) ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(c.DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("config.ParseDate: unparseable date %q with layout %q", s, c.DateFormat)
	}
	return t, nil
}
