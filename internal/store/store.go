// Package store persists the remote entity cache and resolved exchange rates
// in a local bolt database, so interrupted imports resume without re-listing
// the remote system.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/shopspring/decimal"
)

// Entity classes, one bucket each. A class maps natural keys to remote
// entities.
const (
	ClassCurrencies      = "currencies"
	ClassCategories      = "categories"
	ClassBudgets         = "budgets"
	ClassBudgetLimits    = "budget_limits"
	ClassAssetAccounts   = "asset_accounts"
	ClassRevenueAccounts = "revenue_accounts"
	ClassExpenseAccounts = "expense_accounts"
)

var classes = []string{
	ClassCurrencies,
	ClassCategories,
	ClassBudgets,
	ClassBudgetLimits,
	ClassAssetAccounts,
	ClassRevenueAccounts,
	ClassExpenseAccounts,
}

const ratesBucket = "forex_rates"

// Entity is one cached remote object: its remote id plus the attribute set it
// had when last written, used to decide whether an update is needed.
type Entity struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// Store is the cache database. Every mutation is written through in its own
// transaction, so the cache is never ahead of the remote system.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, class := range classes {
			if _, err := tx.CreateBucketIfNotExists([]byte(class)); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists([]byte(ratesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func entityKey(key []string) []byte {
	return []byte(strings.Join(key, "::"))
}

// PutEntity writes one entity under its natural key.
func (s *Store) PutEntity(class string, key []string, e Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store.PutEntity: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(class)).Put(entityKey(key), data)
	})
	if err != nil {
		return fmt.Errorf("store.PutEntity: %s/%s: %w", class, entityKey(key), err)
	}
	return nil
}

// Entity looks up one entity by its natural key.
func (s *Store) Entity(class string, key []string) (Entity, bool, error) {
	var e Entity
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(class)).Get(entityKey(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return Entity{}, false, fmt.Errorf("store.Entity: %s/%s: %w", class, entityKey(key), err)
	}
	return e, found, nil
}

// Entities returns every cached entity in a class, in key order.
func (s *Store) Entities(class string) ([]Entity, error) {
	var all []Entity
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(class)).ForEach(func(_, v []byte) error {
			var e Entity
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			all = append(all, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store.Entities: %s: %w", class, err)
	}
	return all, nil
}

// Count returns the number of cached entities in a class. A nonzero count
// means the class was listed from the remote system at least once.
func (s *Store) Count(class string) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(class)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store.Count: %s: %w", class, err)
	}
	return n, nil
}

func rateKey(currency string, date time.Time) []byte {
	return entityKey([]string{currency, date.Format("2006-01-02")})
}

// Rate returns the cached exchange rate for (currency, date), if any.
func (s *Store) Rate(currency string, date time.Time) (decimal.Decimal, bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket([]byte(ratesBucket)).Get(rateKey(currency, date)); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("store.Rate: %w", err)
	}
	if raw == nil {
		return decimal.Zero, false, nil
	}
	rate, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("store.Rate: corrupt rate %q for %s: %w", raw, rateKey(currency, date), err)
	}
	return rate, true, nil
}

// PutRate caches an exchange rate. Historical rates never change, so entries
// are never invalidated.
func (s *Store) PutRate(currency string, date time.Time, rate decimal.Decimal) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ratesBucket)).Put(rateKey(currency, date), []byte(rate.String()))
	})
	if err != nil {
		return fmt.Errorf("store.PutRate: %w", err)
	}
	return nil
}
