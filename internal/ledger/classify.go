package ledger

import (
	"fmt"
	"strings"

	"ynab2firefly/internal/config"
	"ynab2firefly/internal/ynab"
)

// HiddenSuffix marks budgets rebuilt from YNAB's hidden category group. They
// are imported inactive.
const HiddenSuffix = " (hidden)"

// categoryFields is the subset of record fields classification reads. Both
// register and budget rows satisfy it.
type categoryFields struct {
	category       string
	masterCategory string
	subCategory    string
}

func txFields(tx ynab.Transaction) categoryFields {
	return categoryFields{tx.Category, tx.MasterCategory, tx.SubCategory}
}

func budgetFields(bg ynab.Budget) categoryFields {
	return categoryFields{bg.Category, bg.MasterCategory, bg.SubCategory}
}

func (f categoryFields) field(selector string) string {
	if selector == config.FieldCategory {
		return f.category
	}
	return f.subCategory
}

// CategoryName extracts the category name per the configured field selector.
func CategoryName(cfg *config.Config, f categoryFields) string {
	return f.field(cfg.CategoryField)
}

// BudgetName derives the budget name: the configured field, rewritten for
// hidden categories (YNAB encodes the original master category between
// backticks), with the rename table taking precedence.
func BudgetName(cfg *config.Config, f categoryFields) string {
	name := f.field(cfg.BudgetField)
	if f.masterCategory == ynab.HiddenCategoryGroup {
		if parts := strings.Split(name, "`"); len(parts) > 1 {
			name = parts[1]
		}
		name = strings.TrimSpace(name) + HiddenSuffix
	}
	name = strings.TrimSpace(name)
	if mapped, ok := cfg.BudgetMapping[f.category]; ok {
		return mapped
	}
	return name
}

// Classifier resolves each record's budget and category against the known
// sets derived from the budget export. Unknown references are configuration
// errors, never silently skipped.
type Classifier struct {
	cfg        *config.Config
	budgets    map[string]Budget
	categories map[string]bool
}

// NewClassifier builds a classifier over the known budgets and categories.
func NewClassifier(cfg *config.Config, budgets map[string]Budget, categories []string) *Classifier {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return &Classifier{cfg: cfg, budgets: budgets, categories: set}
}

// Classify returns the budget and category names for a record. Records under
// an inactive (hidden) budget keep the budget but lose the category
// reference.
func (c *Classifier) Classify(tx ynab.Transaction) (budget, category string, err error) {
	budget = BudgetName(c.cfg, txFields(tx))
	if budget == "" {
		return "", "", nil
	}
	known, ok := c.budgets[budget]
	if !ok {
		return "", "", fmt.Errorf("ledger: transaction references unknown budget %q (payee %q, date %s)",
			budget, tx.Payee, tx.Date.Format("2006-01-02"))
	}
	if !known.Active {
		return budget, "", nil
	}
	category = CategoryName(c.cfg, txFields(tx))
	if category != "" && !c.categories[category] {
		return "", "", fmt.Errorf("ledger: transaction references unknown category %q (payee %q, date %s)",
			category, tx.Payee, tx.Date.Format("2006-01-02"))
	}
	return budget, category, nil
}
