package ledger

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ynab2firefly/internal/ynab"
)

// splitKey groups the sub-records of one split posting. Splits of a transfer
// must share both accounts; splits of a regular posting must share the
// account and direction. The running balance ties the sub-records to one
// physical posting even when the same accounts see several postings on the
// same day.
type splitKey struct {
	account      string
	counterparty string // other account for transfers, empty otherwise
	deposit      bool   // direction for non-transfers
	date         time.Time
	balance      string
}

func newSplitKey(tx ynab.Transaction) splitKey {
	k := splitKey{account: tx.Account, date: tx.Date, balance: tx.RunningBalance.String()}
	if tx.IsTransfer() {
		k.counterparty = tx.TransferAccount()
	} else {
		k.deposit = tx.IsDeposit()
	}
	return k
}

// GroupRecords partitions records into transaction groups: records sharing a
// split key become one group, every other record a singleton. Groups are
// ordered by the date of their first record; split groups of a day sort
// before that day's singletons, preserving the source order otherwise.
func GroupRecords(records []ynab.Transaction) [][]ynab.Transaction {
	var splitOrder []splitKey
	splits := make(map[splitKey][]ynab.Transaction)
	var singles []ynab.Transaction

	for _, tx := range records {
		if tx.IsSplit() {
			k := newSplitKey(tx)
			if _, ok := splits[k]; !ok {
				splitOrder = append(splitOrder, k)
			}
			splits[k] = append(splits[k], tx)
		} else {
			singles = append(singles, tx)
		}
	}

	groups := make([][]ynab.Transaction, 0, len(splitOrder)+len(singles))
	for _, k := range splitOrder {
		groups = append(groups, splits[k])
	}
	for _, tx := range singles {
		groups = append(groups, []ynab.Transaction{tx})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i][0].Date.Before(groups[j][0].Date)
	})
	return groups
}

// Canonicalize reorients a transfer leg so that its account is always the
// side money flows out of and its payee names the receiving account. The
// payee keeps the transfer marker so the record still reads as a transfer.
// Non-transfer records pass through unchanged.
func Canonicalize(tx ynab.Transaction) ynab.Transaction {
	if !tx.IsTransfer() {
		return tx
	}
	other := tx.TransferAccount()
	if tx.Outflow.IsPositive() {
		tx.Payee = ynab.TransferPayee(other)
		return tx
	}
	tx.Account, tx.Payee = other, ynab.TransferPayee(tx.Account)
	tx.Outflow, tx.Inflow = tx.Inflow, tx.Outflow
	return tx
}

// transferKey identifies one logical transfer: both raw legs of a transfer
// share the (sorted) account pair, date, and absolute amount.
type transferKey struct {
	a, b   string
	date   time.Time
	amount string
}

func newTransferKey(tx ynab.Transaction) transferKey {
	a, b := tx.Account, tx.TransferAccount()
	if b < a {
		a, b = b, a
	}
	return transferKey{a: a, b: b, date: tx.Date, amount: tx.Outflow.Sub(tx.Inflow).Abs().String()}
}

// TransferDeduper drops the second of the two raw records every logical
// transfer produces. Records must already be canonicalized.
type TransferDeduper struct {
	seen map[transferKey]int
	log  zerolog.Logger
}

// NewTransferDeduper creates a deduper that logs data-integrity warnings to
// the given logger.
func NewTransferDeduper(log zerolog.Logger) *TransferDeduper {
	return &TransferDeduper{seen: make(map[transferKey]int), log: log}
}

// Keep reports whether the transfer record is the first leg of its pair and
// should be kept. The counterpart leg returns false. The source format
// guarantees exactly two records per key; when a third shows up the pairing
// restarts, but it is flagged loudly since the data can no longer be trusted
// to pair correctly.
func (d *TransferDeduper) Keep(tx ynab.Transaction) bool {
	k := newTransferKey(tx)
	n := d.seen[k]
	d.seen[k] = n + 1
	if n%2 == 1 {
		return false
	}
	if n > 0 {
		d.log.Warn().
			Str("accounts", k.a+" <-> "+k.b).
			Str("date", k.date.Format("2006-01-02")).
			Str("amount", k.amount).
			Int("occurrence", n+1).
			Msg("More than two transfer legs share the same key; pairing restarted, verify this transfer manually")
	}
	return true
}
