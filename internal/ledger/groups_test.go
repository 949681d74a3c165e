package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ynab2firefly/internal/ynab"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func TestGroupRecordsSplits(t *testing.T) {
	d := day(t, "2019-03-14")
	records := []ynab.Transaction{
		{
			Account: "Checking", Date: d, Payee: "SuperMart",
			Memo: "(Split 1/2) Groceries", Outflow: dec(t, "42.50"),
			RunningBalance: dec(t, "957.50"),
		},
		{
			Account: "Checking", Date: d, Payee: "SuperMart",
			Memo: "(Split 2/2) Snacks", Outflow: dec(t, "10.00"),
			RunningBalance: dec(t, "957.50"),
		},
		{
			Account: "Checking", Date: d, Payee: "Gas Station",
			Outflow: dec(t, "30.00"), RunningBalance: dec(t, "927.50"),
		},
	}

	groups := GroupRecords(records)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Fatalf("expected the split group first with 2 records, got %d", len(groups[0]))
	}
	if groups[0][0].Memo != "(Split 1/2) Groceries" || groups[0][1].Memo != "(Split 2/2) Snacks" {
		t.Errorf("split group lost source order: %q, %q", groups[0][0].Memo, groups[0][1].Memo)
	}
	if len(groups[1]) != 1 || groups[1][0].Payee != "Gas Station" {
		t.Errorf("expected the singleton group second, got %+v", groups[1])
	}
}

func TestGroupRecordsSeparatesSameDaySplits(t *testing.T) {
	d := day(t, "2019-03-14")
	// Two distinct split postings hitting the same account on the same day
	// only differ by running balance.
	records := []ynab.Transaction{
		{Account: "Checking", Date: d, Payee: "A", Memo: "(Split 1/1) x", Outflow: dec(t, "5"), RunningBalance: dec(t, "95")},
		{Account: "Checking", Date: d, Payee: "B", Memo: "(Split 1/1) y", Outflow: dec(t, "5"), RunningBalance: dec(t, "90")},
	}
	groups := GroupRecords(records)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestGroupRecordsSortsByDate(t *testing.T) {
	records := []ynab.Transaction{
		{Account: "Checking", Date: day(t, "2019-03-15"), Payee: "Later", Outflow: dec(t, "1"), RunningBalance: dec(t, "99")},
		{Account: "Checking", Date: day(t, "2019-03-14"), Payee: "Earlier", Outflow: dec(t, "1"), RunningBalance: dec(t, "100")},
	}
	groups := GroupRecords(records)
	if groups[0][0].Payee != "Earlier" || groups[1][0].Payee != "Later" {
		t.Errorf("groups not sorted by date: %q then %q", groups[0][0].Payee, groups[1][0].Payee)
	}
}

func TestCanonicalize(t *testing.T) {
	d := day(t, "2019-03-14")
	tests := []struct {
		name        string
		tx          ynab.Transaction
		wantAccount string
		wantPayee   string
		wantOutflow string
	}{
		{
			name: "outflow leg keeps its account",
			tx: ynab.Transaction{
				Account: "Checking", Date: d, Payee: "Transfer : Savings",
				Outflow: dec(t, "200.00"),
			},
			wantAccount: "Checking", wantPayee: "Transfer : Savings", wantOutflow: "200",
		},
		{
			name: "inflow leg is flipped",
			tx: ynab.Transaction{
				Account: "Savings", Date: d, Payee: "Transfer : Checking",
				Inflow: dec(t, "200.00"),
			},
			wantAccount: "Checking", wantPayee: "Transfer : Savings", wantOutflow: "200",
		},
		{
			name: "non-transfer passes through",
			tx: ynab.Transaction{
				Account: "Checking", Date: d, Payee: "SuperMart",
				Outflow: dec(t, "42.50"),
			},
			wantAccount: "Checking", wantPayee: "SuperMart", wantOutflow: "42.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Canonicalize(tt.tx)
			if got.Account != tt.wantAccount || got.Payee != tt.wantPayee {
				t.Errorf("got %q -> %q, want %q -> %q", got.Account, got.Payee, tt.wantAccount, tt.wantPayee)
			}
			if got.Outflow.String() != tt.wantOutflow {
				t.Errorf("outflow = %s, want %s", got.Outflow, tt.wantOutflow)
			}
		})
	}
}

func TestTransferDeduper(t *testing.T) {
	d := day(t, "2019-03-14")
	leg := func(account, payee string) ynab.Transaction {
		return Canonicalize(ynab.Transaction{
			Account: account, Date: d, Payee: "Transfer : " + payee,
			Outflow: dec(t, "200.00"),
		})
	}

	deduper := NewTransferDeduper(zerolog.Nop())
	if !deduper.Keep(leg("Checking", "Savings")) {
		t.Error("first leg should be kept")
	}
	if deduper.Keep(leg("Savings", "Checking")) {
		t.Error("second leg should be dropped")
	}
	// A third record with the same key restarts the pairing.
	if !deduper.Keep(leg("Checking", "Savings")) {
		t.Error("third leg should restart the pairing and be kept")
	}
}

func TestTransferDeduperDistinguishesAmounts(t *testing.T) {
	d := day(t, "2019-03-14")
	deduper := NewTransferDeduper(zerolog.Nop())
	a := Canonicalize(ynab.Transaction{Account: "Checking", Date: d, Payee: "Transfer : Savings", Outflow: dec(t, "200.00")})
	b := Canonicalize(ynab.Transaction{Account: "Checking", Date: d, Payee: "Transfer : Savings", Outflow: dec(t, "50.00")})
	if !deduper.Keep(a) || !deduper.Keep(b) {
		t.Error("transfers of different amounts must not dedup against each other")
	}
}
