package ynab

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ynab2firefly/internal/config"
)

// Register export columns, in order.
const (
	colAccount = iota
	colFlag
	colCheckNumber // ignored
	colDate
	colPayee
	colCategory
	colMasterCategory
	colSubCategory
	colMemo
	colOutflow
	colInflow
	colCleared
	colRunningBalance
	registerColumns = 13
)

// Budget export columns, in order.
const (
	colMonth = iota
	colBudgetCategory
	colBudgetMasterCategory
	colBudgetSubCategory
	colBudgeted
	colOutflows
	colCategoryBalance
	budgetColumns = 7
)

// budgetMonthLayout is fixed by the YNAB export regardless of the configured
// register date format.
const budgetMonthLayout = "January 2006"

// amountRe extracts the numeric part of a free-text currency string such as
// "$1,234.56" or "-€12.00".
var amountRe = regexp.MustCompile(`^(-)?[^0-9]*([0-9,.]+)$`)

// ParseAmount normalizes a free-text currency string into a decimal amount.
// It strips the currency symbol and thousands separators and honors a leading
// minus sign.
func ParseAmount(s string) (decimal.Decimal, error) {
	m := amountRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return decimal.Zero, fmt.Errorf("ynab.ParseAmount: no amount in %q", s)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ynab.ParseAmount: no amount in %q", s)
	}
	if m[1] != "" {
		d = d.Neg()
	}
	return d, nil
}

// Parser reads the two YNAB export files. A Parser is single-use: parsing the
// same export twice would double every record downstream, so a second Parse
// call fails.
type Parser struct {
	cfg    *config.Config
	loaded bool
}

// NewParser creates a parser bound to the given configuration, which supplies
// the register date layout.
func NewParser(cfg *config.Config) *Parser {
	return &Parser{cfg: cfg}
}

// Parse reads the register and budget exports. Both readers must contain the
// full export including the header row, which is skipped.
func (p *Parser) Parse(register, budget io.Reader) ([]Transaction, []Budget, error) {
	if p.loaded {
		return nil, nil, fmt.Errorf("ynab.Parse: exports already parsed")
	}
	p.loaded = true

	txns, err := p.parseRegister(register)
	if err != nil {
		return nil, nil, err
	}
	budgets, err := p.parseBudget(budget)
	if err != nil {
		return nil, nil, err
	}
	return txns, budgets, nil
}

func (p *Parser) parseRegister(r io.Reader) ([]Transaction, error) {
	rows, err := readRows(r, registerColumns)
	if err != nil {
		return nil, fmt.Errorf("ynab: register: %w", err)
	}

	txns := make([]Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := p.parseTransaction(row)
		if err != nil {
			return nil, fmt.Errorf("ynab: register row %d: %w", i+2, err)
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

func (p *Parser) parseTransaction(row []string) (Transaction, error) {
	date, err := p.cfg.ParseDate(row[colDate])
	if err != nil {
		return Transaction{}, err
	}
	outflow, err := ParseAmount(row[colOutflow])
	if err != nil {
		return Transaction{}, err
	}
	inflow, err := ParseAmount(row[colInflow])
	if err != nil {
		return Transaction{}, err
	}
	balance, err := ParseAmount(row[colRunningBalance])
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Account:        row[colAccount],
		Flag:           row[colFlag],
		Date:           date,
		Payee:          row[colPayee],
		Category:       row[colCategory],
		MasterCategory: row[colMasterCategory],
		SubCategory:    row[colSubCategory],
		Memo:           row[colMemo],
		Outflow:        outflow,
		Inflow:         inflow,
		Cleared:        row[colCleared],
		RunningBalance: balance,
	}, nil
}

func (p *Parser) parseBudget(r io.Reader) ([]Budget, error) {
	rows, err := readRows(r, budgetColumns)
	if err != nil {
		return nil, fmt.Errorf("ynab: budget: %w", err)
	}

	budgets := make([]Budget, 0, len(rows))
	for i, row := range rows {
		bg, err := parseBudgetRow(row)
		if err != nil {
			return nil, fmt.Errorf("ynab: budget row %d: %w", i+2, err)
		}
		budgets = append(budgets, bg)
	}
	return budgets, nil
}

func parseBudgetRow(row []string) (Budget, error) {
	month, err := time.Parse(budgetMonthLayout, row[colMonth])
	if err != nil {
		return Budget{}, fmt.Errorf("unparseable month %q", row[colMonth])
	}
	budgeted, err := ParseAmount(row[colBudgeted])
	if err != nil {
		return Budget{}, err
	}
	outflows, err := ParseAmount(row[colOutflows])
	if err != nil {
		return Budget{}, err
	}
	balance, err := ParseAmount(row[colCategoryBalance])
	if err != nil {
		return Budget{}, err
	}
	return Budget{
		Month:           month,
		Category:        row[colBudgetCategory],
		MasterCategory:  row[colBudgetMasterCategory],
		SubCategory:     row[colBudgetSubCategory],
		Budgeted:        budgeted,
		Outflows:        outflows,
		CategoryBalance: balance,
	}, nil
}

// readRows reads all CSV rows, skipping the header and enforcing the column
// count.
func readRows(r io.Reader, columns int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columns

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty export, expected at least a header row")
	}
	return rows[1:], nil
}
