package resilience

import (
	"math/rand/v2"
	"time"
)

const maxBackoffShift = 16

// Backoff returns the exponential delay before retry attempt (1-based),
// spread by ±jitter (0.2 means 20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << min(max(attempt, 1)-1, maxBackoffShift)
	if jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * jitter * float64(d))
	}
	return d
}
