package kitty

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/etnz/kitty/date"
	"github.com/shopspring/decimal"
)

// RateCache stores resolved rates for a limited time.
type RateCache interface {
	// Get returns the cached rate and true, or false on a miss.
	Get(ctx context.Context, key RateKey) (decimal.Decimal, bool, error)
	Put(ctx context.Context, key RateKey, rate decimal.Decimal, ttl time.Duration) error
}

// CachedSource is a RateSource that remembers successful lookups of Source in
// Cache for TTL. Unavailable rates are never cached: a day without data yet
// may get one later.
type CachedSource struct {
	Source RateSource
	Cache  RateCache
	TTL    time.Duration
}

func (c *CachedSource) Rate(ctx context.Context, on date.Date, base, target string) (decimal.Decimal, error) {
	key := RateKey{Date: on, Base: base, Target: target}
	rate, ok, err := c.Cache.Get(ctx, key)
	if err != nil {
		log.Printf("rate cache read err (ignored): %v", err)
	} else if ok {
		return rate, nil
	}

	rate, err = c.Source.Rate(ctx, on, base, target)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.Cache.Put(ctx, key, rate, c.TTL); err != nil {
		log.Printf("rate cache write err (ignored): %v", err)
	}
	return rate, nil
}

type memoryEntry struct {
	rate    decimal.Decimal
	expires time.Time // zero never expires
}

// MemoryCache is an in-process RateCache. Its zero value is not usable, use
// NewMemoryCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[RateKey]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty cache using the wall clock.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[RateKey]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key RateKey) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return decimal.Zero, false, nil
	}
	return e.rate, true, nil
}

// Put stores rate for ttl, a ttl of 0 means forever.
func (m *MemoryCache) Put(_ context.Context, key RateKey, rate decimal.Decimal, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{rate: rate}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}
