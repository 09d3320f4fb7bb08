package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-florist/internal/lock"
)

// WarmLockKey guards concurrent warm runs across workers.
const WarmLockKey = "pricing:lock:warm"

// Source is an Index that can also enumerate its stocked products.
type Source interface {
	Index
	Lister
}

// Warmer copies the lots of every stocked product from Source into Cache.
type Warmer struct {
	Source  Source
	Cache   *CachedIndex
	Locker  lock.Locker
	LockTTL time.Duration
}

// WarmOnce refreshes the cache and returns the number of products written.
// Products warmed by the previous run that are no longer stocked are
// rewritten too, so a sold-out product stops serving its old lots. A run
// already in progress elsewhere makes it return 0 and no error.
func (w Warmer) WarmOnce(ctx context.Context) (int, error) {
	if w.Source == nil || w.Cache == nil {
		return 0, errors.New("inventory: warmer not configured")
	}
	logger := zerolog.Ctx(ctx)
	warmed := 0
	err := w.Locker.TryWithLock(ctx, WarmLockKey, w.LockTTL, func(ctx context.Context) error {
		ids, err := w.Source.StockedProducts(ctx)
		if err != nil {
			return fmt.Errorf("list stocked products: %w", err)
		}
		previous, err := w.Cache.Warmed(ctx)
		if err != nil {
			return fmt.Errorf("list warmed products: %w", err)
		}
		stocked := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			stocked[id] = struct{}{}
		}
		targets := ids
		for _, id := range previous {
			if _, ok := stocked[id]; !ok {
				targets = append(targets, id)
			}
		}
		for _, id := range targets {
			if err := w.warmProduct(ctx, id); err != nil {
				return err
			}
			warmed++
		}
		if dropped := len(targets) - len(ids); dropped > 0 {
			logger.Debug().Int("products", dropped).Msg("inventory_warm_sold_out")
		}
		if err := w.Cache.SetWarmed(ctx, ids); err != nil {
			return fmt.Errorf("record warmed products: %w", err)
		}
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug().Msg("inventory_warm_skipped")
		return 0, nil
	}
	if err != nil {
		return warmed, err
	}
	logger.Info().Int("products", warmed).Msg("inventory_warm_completed")
	return warmed, nil
}

func (w Warmer) warmProduct(ctx context.Context, productID string) error {
	lots, err := w.Source.LotsFor(ctx, productID)
	if err != nil {
		return fmt.Errorf("lots for %s: %w", productID, err)
	}
	price, known, err := w.Source.BasePrice(ctx, productID)
	if err != nil {
		return fmt.Errorf("base price for %s: %w", productID, err)
	}
	if err := w.Cache.Put(ctx, productID, lots, price, known); err != nil {
		return fmt.Errorf("cache %s: %w", productID, err)
	}
	return nil
}
