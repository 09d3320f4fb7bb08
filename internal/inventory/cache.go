package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-florist/internal/obs"
)

// DefaultCachePrefix namespaces inventory keys in Redis.
const DefaultCachePrefix = "pricing:"

// jsonCache wraps Redis helpers for JSON payloads.
type jsonCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// get unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c jsonCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// set serialises v as JSON and stores it with the configured TTL.
func (c jsonCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

type cachedBase struct {
	Price decimal.Decimal `json:"price"`
	Known bool            `json:"known"`
}

// CachedIndex is a read-through Redis cache in front of another Index. Cache
// failures are logged and the lookup falls through to Next.
type CachedIndex struct {
	Next   Index
	cache  jsonCache
	prefix string
}

// NewCachedIndex wraps next with a Redis cache using ttl for every entry.
func NewCachedIndex(next Index, client redis.Cmdable, ttl time.Duration, prefix string) *CachedIndex {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &CachedIndex{Next: next, cache: jsonCache{client: client, ttl: ttl}, prefix: prefix}
}

func (c *CachedIndex) warmedKey() string               { return c.prefix + "warmed" }
func (c *CachedIndex) lotsKey(productID string) string { return c.prefix + "lots:" + productID }
func (c *CachedIndex) baseKey(productID string) string { return c.prefix + "base:" + productID }

func (c *CachedIndex) LotsFor(ctx context.Context, productID string) ([]SupplyLot, error) {
	var lots []SupplyLot
	if c.lookup(ctx, c.lotsKey(productID), &lots) {
		return SortLots(lots), nil
	}
	lots, err := c.Next.LotsFor(ctx, productID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, c.lotsKey(productID), lots)
	return lots, nil
}

func (c *CachedIndex) BasePrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	var entry cachedBase
	if c.lookup(ctx, c.baseKey(productID), &entry) {
		return entry.Price, entry.Known, nil
	}
	price, known, err := c.Next.BasePrice(ctx, productID)
	if err != nil {
		return decimal.Zero, false, err
	}
	c.store(ctx, c.baseKey(productID), cachedBase{Price: price, Known: known})
	return price, known, nil
}

// Put writes a product's lots and base price into the cache.
func (c *CachedIndex) Put(ctx context.Context, productID string, lots []SupplyLot, basePrice decimal.Decimal, known bool) error {
	if lots == nil {
		lots = []SupplyLot{}
	}
	if err := c.cache.set(ctx, c.lotsKey(productID), lots); err != nil {
		return err
	}
	return c.cache.set(ctx, c.baseKey(productID), cachedBase{Price: basePrice, Known: known})
}

// Warmed returns the products written by the last completed warm run.
func (c *CachedIndex) Warmed(ctx context.Context) ([]string, error) {
	return c.cache.client.SMembers(ctx, c.warmedKey()).Result()
}

// SetWarmed replaces the set of warmed products.
func (c *CachedIndex) SetWarmed(ctx context.Context, productIDs []string) error {
	_, err := c.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.warmedKey())
		if len(productIDs) > 0 {
			members := make([]any, len(productIDs))
			for i, id := range productIDs {
				members[i] = id
			}
			pipe.SAdd(ctx, c.warmedKey(), members...)
		}
		return nil
	})
	return err
}

func (c *CachedIndex) lookup(ctx context.Context, key string, dst any) bool {
	ok, err := c.cache.get(ctx, key, dst)
	switch {
	case err != nil:
		obs.ObserveCache("error")
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("inventory_cache_read_failed")
		return false
	case ok:
		obs.ObserveCache("hit")
		return true
	default:
		obs.ObserveCache("miss")
		return false
	}
}

func (c *CachedIndex) store(ctx context.Context, key string, v any) {
	if err := c.cache.set(ctx, key, v); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("inventory_cache_write_failed")
	}
}
