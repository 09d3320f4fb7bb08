package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-florist/internal/obs"
	"github.com/noah-isme/backend-florist/internal/resilience"
)

// GuardedIndex bounds lookups on Next with a timeout and optional circuit
// breakers. Every failure is reported as ErrUnavailable.
//
// Lot and list-price lookups trip separate breakers: a quote falls back to
// list prices while lots are down, so a lot outage must not block them.
type GuardedIndex struct {
	Next Index
	// Breaker guards LotsFor.
	Breaker *resilience.Breaker
	// PriceBreaker guards BasePrice.
	PriceBreaker *resilience.Breaker
	Timeout      time.Duration
	// Source labels lookup latency metrics.
	Source string
}

func (g GuardedIndex) LotsFor(ctx context.Context, productID string) ([]SupplyLot, error) {
	var lots []SupplyLot
	err := g.guard(ctx, g.Breaker, func(ctx context.Context) error {
		var err error
		lots, err = g.Next.LotsFor(ctx, productID)
		return err
	})
	return lots, err
}

func (g GuardedIndex) BasePrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	var (
		price decimal.Decimal
		known bool
	)
	err := g.guard(ctx, g.PriceBreaker, func(ctx context.Context) error {
		var err error
		price, known, err = g.Next.BasePrice(ctx, productID)
		return err
	})
	return price, known, err
}

func (g GuardedIndex) guard(ctx context.Context, breaker *resilience.Breaker, fn func(context.Context) error) error {
	call := fn
	if g.Timeout > 0 {
		call = func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, g.Timeout)
			defer cancel()
			return fn(ctx)
		}
	}
	start := time.Now()
	var err error
	if breaker != nil {
		err = breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	obs.ObserveLotLookup(g.source(), obs.DurationMillis(time.Since(start)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (g GuardedIndex) source() string {
	if g.Source == "" {
		return "default"
	}
	return g.Source
}
