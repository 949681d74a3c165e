package ledger

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ynab2firefly/internal/config"
	"ynab2firefly/internal/ynab"
)

// RateSource supplies an exchange rate from the default currency to the given
// currency on the given date.
type RateSource interface {
	Rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error)
}

// RateCache persists resolved rates keyed by (currency, date). Historical
// rates never change, so entries are kept forever.
type RateCache interface {
	Rate(currency string, date time.Time) (decimal.Decimal, bool, error)
	PutRate(currency string, date time.Time, rate decimal.Decimal) error
}

// memoAmountRe matches an inline annotation like "EUR 45.00 dinner" or
// "JPY 12K". The trailing K multiplies the amount by 1000.
var memoAmountRe = regexp.MustCompile(`([A-Z]{3})\s+([0-9][0-9,.]*)(K)?;?\s*(.*)$`)

// ForexResolver computes the true foreign-currency amount for any record
// touching a foreign-currency account. Resolution is eager: once Resolve
// returns, the record's Foreign field is final and no downstream stage does
// rate lookups.
type ForexResolver struct {
	cfg     *config.Config
	source  RateSource
	cache   RateCache
	offline bool
}

// NewForexResolver builds a resolver. cache may not be nil; source may be nil
// to force memo- or cache-only resolution.
func NewForexResolver(cfg *config.Config, source RateSource, cache RateCache) *ForexResolver {
	return &ForexResolver{cfg: cfg, source: source, cache: cache}
}

// NewOfflineForexResolver builds a resolver that never touches the network:
// it resolves from memo annotations and already-cached rates, and leaves any
// other record unresolved instead of failing. Used by dry runs.
func NewOfflineForexResolver(cfg *config.Config, cache RateCache) *ForexResolver {
	return &ForexResolver{cfg: cfg, cache: cache, offline: true}
}

// Resolve populates tx.Foreign when the record touches a foreign account.
// For transfers both account fields must already be in canonical orientation.
// Resolving an already resolved record is a no-op, so resolution is
// idempotent.
func (r *ForexResolver) Resolve(ctx context.Context, tx ynab.Transaction) (ynab.Transaction, error) {
	if tx.Foreign != nil {
		return tx, nil
	}

	accForeign := r.cfg.IsForeign(tx.Account)
	payeeForeign := tx.IsTransfer() && r.cfg.IsForeign(tx.TransferAccount())
	if !accForeign && !payeeForeign {
		return tx, nil
	}

	if accForeign && payeeForeign {
		from, to := r.cfg.AccountCurrency(tx.Account), r.cfg.AccountCurrency(tx.TransferAccount())
		if from != to {
			return tx, fmt.Errorf("ledger: transfer between two different foreign currencies (%s -> %s) on %s: %s",
				from, to, tx.Date.Format("2006-01-02"), tx.Payee)
		}
	}

	foreignAccount := tx.Account
	if !accForeign {
		foreignAccount = tx.TransferAccount()
	}
	code := r.cfg.AccountCurrency(foreignAccount)

	// Prefer the inline memo annotation, which records the exact amount at
	// transaction time.
	if m := memoAmountRe.FindStringSubmatch(tx.Memo); m != nil && m[1] == code {
		amount, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
		if err != nil {
			return tx, fmt.Errorf("ledger: bad memo amount %q in %q", m[2], tx.Memo)
		}
		if m[3] == "K" {
			amount = amount.Mul(decimal.NewFromInt(1000))
		}
		tx.Memo = strings.TrimSpace(m[4])
		tx.Foreign = &ynab.ForeignAmount{Amount: amount, Currency: code}
		return tx, nil
	}

	if r.offline {
		rate, ok, err := r.cache.Rate(code, tx.Date)
		if err != nil {
			return tx, err
		}
		if !ok {
			// The record stays pending; the real run fetches the rate.
			return tx, nil
		}
		tx.Foreign = &ynab.ForeignAmount{Amount: tx.Amount().Mul(rate), Currency: code}
		return tx, nil
	}

	rate, err := r.rate(ctx, code, tx.Date)
	if err != nil {
		return tx, fmt.Errorf("ledger: cannot resolve %s amount for %q on %s (no memo annotation, no rate): %w",
			code, tx.Payee, tx.Date.Format("2006-01-02"), err)
	}
	tx.Foreign = &ynab.ForeignAmount{Amount: tx.Amount().Mul(rate), Currency: code}
	return tx, nil
}

func (r *ForexResolver) rate(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if rate, ok, err := r.cache.Rate(currency, date); err != nil {
		return decimal.Zero, err
	} else if ok {
		return rate, nil
	}
	if r.source == nil {
		return decimal.Zero, fmt.Errorf("no cached rate for %s on %s and no rate source configured",
			currency, date.Format("2006-01-02"))
	}
	rate, err := r.source.Rate(ctx, currency, date)
	if err != nil {
		return decimal.Zero, err
	}
	if err := r.cache.PutRate(currency, date, rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}
