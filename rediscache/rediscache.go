// Package rediscache stores exchange rates in Redis so that several kitty
// processes share the lookups they already paid for.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etnz/kitty"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// KeyPrefix namespaces the rate keys.
const KeyPrefix = "kitty:rate:"

// Cache is a kitty.RateCache backed by Redis.
type Cache struct {
	rdb *redis.Client
}

var _ kitty.RateCache = (*Cache)(nil)

// New returns a cache using rdb.
func New(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

// Dial connects to the Redis server at addr and checks it answers.
func Dial(ctx context.Context, addr string) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", addr, err)
	}
	return New(rdb), nil
}

// Close closes the underlying client.
func (c *Cache) Close() error { return c.rdb.Close() }

func key(k kitty.RateKey) string { return KeyPrefix + k.String() }

func (c *Cache) Get(ctx context.Context, k kitty.RateKey) (decimal.Decimal, bool, error) {
	val, err := c.rdb.Get(ctx, key(k)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupted rate %q for %s: %w", val, k, err)
	}
	return rate, true, nil
}

// Put stores the rate as its exact decimal string. A ttl of 0 keeps it forever.
func (c *Cache) Put(ctx context.Context, k kitty.RateKey, rate decimal.Decimal, ttl time.Duration) error {
	return c.rdb.Set(ctx, key(k), rate.String(), ttl).Err()
}
