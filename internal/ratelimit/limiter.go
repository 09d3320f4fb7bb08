// Package ratelimit throttles pricing requests per client.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts events for a key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error)
}

func unlimited(max int, window time.Duration, now time.Time) Decision {
	return Decision{Allowed: true, Remaining: max, ResetAt: now.Add(window)}
}
