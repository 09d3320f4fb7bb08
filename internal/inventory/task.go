package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeWarmCache is the task type processed by Warmer.
const TypeWarmCache = "inventory:warm_cache"

// NewWarmTask builds the periodic cache warm task. Overlapping runs are
// already excluded by the warm lock, so failed runs are not retried; the
// next tick takes over.
func NewWarmTask(timeout time.Duration) *asynq.Task {
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeWarmCache, nil, opts...)
}

// ProcessTask implements asynq.Handler.
func (w Warmer) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeWarmCache {
		return fmt.Errorf("inventory: unexpected task %q: %w", t.Type(), asynq.SkipRetry)
	}
	_, err := w.WarmOnce(ctx)
	return err
}
