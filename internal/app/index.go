// Package app assembles the pricing API from its parts.
package app

import (
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-florist/internal/config"
	"github.com/noah-isme/backend-florist/internal/inventory"
	"github.com/noah-isme/backend-florist/internal/pricing"
	"github.com/noah-isme/backend-florist/internal/resilience"
)

const retryJitter = 0.2

// NewIndex builds the lot index chain for the configured source:
// the source itself, a timeout and breaker guard around it (one breaker for
// lots and one for list prices), and a Redis
// read-through cache in front when rdb is set. Cache hits never touch the
// breaker.
func NewIndex(cfg *config.Config, db inventory.Querier, rdb redis.Cmdable, logger zerolog.Logger) (inventory.Index, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	newBreaker := func(target string) *resilience.Breaker {
		return resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
			WithWindow(cfg.BreakerWindow).
			WithTarget(target).
			WithLogger(logger)
	}

	guarded := inventory.GuardedIndex{Timeout: cfg.InventoryLookupTimeout, Source: cfg.InventorySource}
	switch cfg.InventorySource {
	case config.InventorySourcePostgres:
		if db == nil {
			return nil, errors.New("app: postgres inventory requires a database")
		}
		guarded.Next = inventory.PostgresIndex{DB: db}
		guarded.Breaker = newBreaker("inventory")
		guarded.PriceBreaker = newBreaker("inventory-prices")
	case config.InventorySourceRemote:
		// The HTTP clients own the breakers so retries and breaker accounting agree.
		httpClient := inventory.NewRemoteHTTPClient()
		remoteClient := func(target string) resilience.HTTPClient {
			return resilience.HTTPClient{
				Client:      httpClient,
				Breaker:     newBreaker(target),
				BaseBackoff: cfg.RetryBase,
				MaxAttempts: cfg.RetryMaxAttempts,
				Jitter:      retryJitter,
				Timeout:     cfg.InventoryLookupTimeout,
			}
		}
		guarded.Next = inventory.RemoteIndex{
			BaseURL: cfg.InventoryRemoteURL,
			HTTP:    remoteClient("inventory-remote"),
			Prices:  remoteClient("inventory-remote-prices"),
		}
	default:
		return nil, fmt.Errorf("app: unsupported inventory source %q", cfg.InventorySource)
	}

	if rdb == nil || cfg.InventoryCacheTTL <= 0 {
		return guarded, nil
	}
	return inventory.NewCachedIndex(guarded, rdb, cfg.InventoryCacheTTL, ""), nil
}

// FeePolicy converts the configured fee settings into a validated policy.
func FeePolicy(cfg *config.Config) (pricing.FeePolicy, error) {
	policy := pricing.FeePolicy{
		Percent:    cfg.FeePercent,
		FlatAmount: cfg.FeeFlat,
		MinFee:     cfg.FeeMin,
		MaxFee:     cfg.FeeMax,
	}
	if err := policy.Validate(); err != nil {
		return pricing.FeePolicy{}, err
	}
	return policy, nil
}
