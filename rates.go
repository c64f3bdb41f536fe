package kitty

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/etnz/kitty/date"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RateSource returns the price of one unit of base in target on a given day.
//
// A source with no data for that day must return an error wrapping
// ErrRateUnavailable rather than a stale rate.
type RateSource interface {
	Rate(ctx context.Context, on date.Date, base, target string) (decimal.Decimal, error)
}

// RateFunc adapts a function to the RateSource interface.
type RateFunc func(ctx context.Context, on date.Date, base, target string) (decimal.Decimal, error)

func (f RateFunc) Rate(ctx context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
	return f(ctx, on, base, target)
}

// RateKey identifies a daily exchange rate.
type RateKey struct {
	Date   date.Date
	Base   string
	Target string
}

func (k RateKey) String() string { return fmt.Sprintf("%s:%s:%s", k.Date, k.Base, k.Target) }

type rateResult struct {
	rate decimal.Decimal
	err  error
}

// RateTable is a RateSource answering from rates resolved in advance. Keys
// that were never resolved are unavailable.
type RateTable struct {
	mu    sync.RWMutex
	rates map[RateKey]rateResult
}

// NewRateTable returns an empty table.
func NewRateTable() *RateTable {
	return &RateTable{rates: make(map[RateKey]rateResult)}
}

// Set records a resolved rate.
func (t *RateTable) Set(key RateKey, rate decimal.Decimal) { t.set(key, rateResult{rate: rate}) }

func (t *RateTable) set(key RateKey, r rateResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[key] = r
}

// Len returns the number of keys in the table, resolved or not.
func (t *RateTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rates)
}

func (t *RateTable) Rate(_ context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
	if base == target {
		return decimal.NewFromInt(1), nil
	}
	key := RateKey{Date: on, Base: base, Target: target}
	t.mu.RLock()
	r, ok := t.rates[key]
	t.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%s not prefetched: %w", key, ErrRateUnavailable)
	}
	return r.rate, r.err
}

// RateKeys returns the distinct rates needed to aggregate expenses into
// reference, sorted by date then currency.
func RateKeys(expenses []Expense, reference string) []RateKey {
	set := make(map[RateKey]struct{})
	for _, e := range expenses {
		if e.Currency == reference {
			continue
		}
		set[RateKey{Date: e.Date, Base: e.Currency, Target: reference}] = struct{}{}
	}
	keys := make([]RateKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date.Before(keys[j].Date)
		}
		return keys[i].Base < keys[j].Base
	})
	return keys
}

// Prefetch resolves concurrently, at most limit at a time, every rate needed
// to aggregate expenses into reference.
//
// Failed lookups are recorded in the table and will surface as conversion
// warnings when aggregating. Prefetch only fails if ctx is done.
func Prefetch(ctx context.Context, source RateSource, expenses []Expense, reference string, limit int) (*RateTable, error) {
	table := NewRateTable()
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, key := range RateKeys(expenses, reference) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rate, err := source.Rate(gctx, key.Date, key.Base, key.Target)
			table.set(key, rateResult{rate: rate, err: err})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("prefetching rates: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("prefetching rates: %w", err)
	}
	return table, nil
}
