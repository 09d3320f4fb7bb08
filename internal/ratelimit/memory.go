package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// MemoryLimiter is a process-local limiter used when Redis is not configured.
type MemoryLimiter struct {
	mu    sync.Mutex
	rates map[string]*limiter.Limiter
}

// NewMemoryLimiter constructs an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{rates: map[string]*limiter.Limiter{}}
}

func (m *MemoryLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	if max <= 0 || window <= 0 {
		return unlimited(max, window, time.Now()), nil
	}
	lctx, err := m.limiterFor(window, max).Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Remaining: int(lctx.Remaining),
		ResetAt:   time.Unix(lctx.Reset, 0),
	}, nil
}

func (m *MemoryLimiter) limiterFor(window time.Duration, max int) *limiter.Limiter {
	id := fmt.Sprintf("%d/%s", max, window)
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.rates[id]; ok {
		return l
	}
	// One store per rate so that keys limited at different rates never share counters.
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "ratelimit:" + id,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
	l := limiter.New(store, limiter.Rate{Period: window, Limit: int64(max)})
	m.rates[id] = l
	return l
}
