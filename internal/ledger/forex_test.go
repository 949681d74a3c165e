package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ynab2firefly/internal/config"
	"ynab2firefly/internal/ynab"
)

func forexConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
currency: USD
accounts:
  Euro Account:
    currency: EUR
  Yen Account:
    currency: JPY
`))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

type memRateCache struct {
	rates map[string]decimal.Decimal
}

func newMemRateCache() *memRateCache {
	return &memRateCache{rates: make(map[string]decimal.Decimal)}
}

func (c *memRateCache) key(currency string, date time.Time) string {
	return currency + "::" + date.Format("2006-01-02")
}

func (c *memRateCache) Rate(currency string, date time.Time) (decimal.Decimal, bool, error) {
	rate, ok := c.rates[c.key(currency, date)]
	return rate, ok, nil
}

func (c *memRateCache) PutRate(currency string, date time.Time, rate decimal.Decimal) error {
	c.rates[c.key(currency, date)] = rate
	return nil
}

type stubRateSource struct {
	rate  decimal.Decimal
	calls int
}

func (s *stubRateSource) Rate(_ context.Context, _ string, _ time.Time) (decimal.Decimal, error) {
	s.calls++
	return s.rate, nil
}

func TestResolveMemoAnnotation(t *testing.T) {
	cfg := forexConfig(t)
	r := NewForexResolver(cfg, nil, newMemRateCache())

	tx := ynab.Transaction{
		Account: "Euro Account", Date: day(t, "2019-03-14"), Payee: "Trattoria",
		Memo: "EUR 45.00 dinner", Outflow: dec(t, "51.30"),
	}
	got, err := r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign == nil {
		t.Fatal("Foreign not set")
	}
	if got.Foreign.Currency != "EUR" || got.Foreign.Amount.String() != "45" {
		t.Errorf("foreign = %s %s, want EUR 45", got.Foreign.Currency, got.Foreign.Amount)
	}
	if got.Memo != "dinner" {
		t.Errorf("memo = %q, want the annotation stripped", got.Memo)
	}
}

func TestResolveMemoThousandsMultiplier(t *testing.T) {
	cfg := forexConfig(t)
	r := NewForexResolver(cfg, nil, newMemRateCache())

	tx := ynab.Transaction{
		Account: "Yen Account", Date: day(t, "2019-03-14"), Payee: "Hotel",
		Memo: "JPY 12K", Outflow: dec(t, "108.00"),
	}
	got, err := r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign == nil || got.Foreign.Amount.String() != "12000" {
		t.Fatalf("got %+v, want 12000 JPY", got.Foreign)
	}
}

func TestResolveIdempotent(t *testing.T) {
	cfg := forexConfig(t)
	r := NewForexResolver(cfg, nil, newMemRateCache())

	tx := ynab.Transaction{
		Account: "Euro Account", Date: day(t, "2019-03-14"), Payee: "Trattoria",
		Memo: "leftover EUR 99.00 text", Outflow: dec(t, "51.30"),
		Foreign: &ynab.ForeignAmount{Amount: dec(t, "45"), Currency: "EUR"},
	}
	got, err := r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign.Amount.String() != "45" || got.Memo != tx.Memo {
		t.Errorf("resolving a resolved record must be a no-op, got %+v", got)
	}
}

func TestResolveLocalAccountUntouched(t *testing.T) {
	cfg := forexConfig(t)
	r := NewForexResolver(cfg, nil, newMemRateCache())

	tx := ynab.Transaction{
		Account: "Checking", Date: day(t, "2019-03-14"), Payee: "SuperMart",
		Memo: "EUR 45.00 looks foreign but is not", Outflow: dec(t, "42.50"),
	}
	got, err := r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign != nil {
		t.Errorf("local-currency record got a foreign amount: %+v", got.Foreign)
	}
}

func TestResolveRateFallback(t *testing.T) {
	cfg := forexConfig(t)
	cache := newMemRateCache()
	source := &stubRateSource{rate: dec(t, "0.9")}
	r := NewForexResolver(cfg, source, cache)

	tx := ynab.Transaction{
		Account: "Euro Account", Date: day(t, "2019-03-14"), Payee: "Trattoria",
		Memo: "no annotation here", Outflow: dec(t, "50.00"),
	}
	got, err := r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign == nil || got.Foreign.Amount.String() != "45" {
		t.Fatalf("got %+v, want 45 EUR (50.00 * 0.9)", got.Foreign)
	}
	if source.calls != 1 {
		t.Errorf("source calls = %d, want 1", source.calls)
	}

	// The fetched rate must be cached: a second record on the same day does
	// not hit the source again.
	tx2 := tx
	tx2.Outflow = dec(t, "10.00")
	if _, err := r.Resolve(context.Background(), tx2); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("source calls after cached resolve = %d, want 1", source.calls)
	}
}

func TestResolveNoRateAvailable(t *testing.T) {
	cfg := forexConfig(t)
	r := NewForexResolver(cfg, nil, newMemRateCache())

	tx := ynab.Transaction{
		Account: "Euro Account", Date: day(t, "2019-03-14"), Payee: "Trattoria",
		Memo: "no annotation", Outflow: dec(t, "50.00"),
	}
	if _, err := r.Resolve(context.Background(), tx); err == nil {
		t.Fatal("expected an error when neither memo nor rate source can resolve")
	}
}

func TestResolveOffline(t *testing.T) {
	cfg := forexConfig(t)
	cache := newMemRateCache()
	r := NewOfflineForexResolver(cfg, cache)

	tx := ynab.Transaction{
		Account: "Euro Account", Date: day(t, "2019-03-14"), Payee: "Trattoria",
		Memo: "no annotation", Outflow: dec(t, "50.00"),
	}

	// Without a cached rate the record is left unresolved instead of failing
	// or fetching.
	got, err := r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign != nil {
		t.Errorf("offline resolve produced a foreign amount from nowhere: %+v", got.Foreign)
	}

	// A cached rate still resolves.
	if err := cache.PutRate("EUR", tx.Date, dec(t, "0.9")); err != nil {
		t.Fatalf("PutRate: %v", err)
	}
	got, err = r.Resolve(context.Background(), tx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign == nil || got.Foreign.Amount.String() != "45" {
		t.Fatalf("got %+v, want 45 EUR from the cached rate", got.Foreign)
	}

	// Memo annotations resolve as usual.
	annotated := ynab.Transaction{
		Account: "Yen Account", Date: day(t, "2019-03-14"), Payee: "Hotel",
		Memo: "JPY 12K", Outflow: dec(t, "108.00"),
	}
	got, err = r.Resolve(context.Background(), annotated)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Foreign == nil || got.Foreign.Amount.String() != "12000" {
		t.Fatalf("got %+v, want 12000 JPY from the memo", got.Foreign)
	}
}

func TestResolveCrossForeignTransfer(t *testing.T) {
	cfg := forexConfig(t)
	r := NewForexResolver(cfg, nil, newMemRateCache())

	tx := Canonicalize(ynab.Transaction{
		Account: "Euro Account", Date: day(t, "2019-03-14"),
		Payee: "Transfer : Yen Account", Outflow: dec(t, "100.00"),
	})
	_, err := r.Resolve(context.Background(), tx)
	if err == nil || !strings.Contains(err.Error(), "different foreign currencies") {
		t.Fatalf("expected a cross-currency transfer error, got %v", err)
	}
}
