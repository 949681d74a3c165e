package ledger

import (
	"testing"

	"ynab2firefly/internal/ynab"
)

func TestReconstructBalances(t *testing.T) {
	records := []ynab.Transaction{
		{Account: "Checking", Date: day(t, "2019-03-02"), RunningBalance: dec(t, "900")},
		{Account: "Savings", Date: day(t, "2019-03-10"), RunningBalance: dec(t, "5000")},
		{Account: "Checking", Date: day(t, "2019-03-28"), RunningBalance: dec(t, "850")},
		{Account: "Checking", Date: day(t, "2019-04-01"), RunningBalance: dec(t, "800")},
	}

	balances := ReconstructBalances(records)

	march := MonthStart(day(t, "2019-03-15"))
	april := MonthStart(day(t, "2019-04-15"))

	if got := balances[march]["Checking"]; got.String() != "850" {
		t.Errorf("March Checking = %s, want 850 (the last record of the month)", got)
	}
	if got := balances[march]["Savings"]; got.String() != "5000" {
		t.Errorf("March Savings = %s, want 5000", got)
	}
	if got := balances[april]["Checking"]; got.String() != "800" {
		t.Errorf("April Checking = %s, want 800", got)
	}
	if _, ok := balances[april]["Savings"]; ok {
		t.Error("Savings has no April records and must not appear in April")
	}
}

func TestMonthBounds(t *testing.T) {
	d := day(t, "2019-02-14")
	if got := MonthStart(d); got.Format("2006-01-02") != "2019-02-01" {
		t.Errorf("MonthStart = %s", got)
	}
	if got := MonthEnd(d); got.Format("2006-01-02") != "2019-02-28" {
		t.Errorf("MonthEnd = %s", got)
	}
}
