package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const defaultWindow = time.Minute

type counts struct {
	requests int
	failures int
}

// Breaker is a failure-ratio circuit breaker. While closed it counts outcomes
// in fixed windows; once a window holds at least minRequests outcomes and the
// failure ratio reaches the threshold it opens for openFor, then admits one
// half-open probe whose result closes or re-opens it.
type Breaker struct {
	mu           sync.Mutex
	state        State
	window       counts
	windowStart  time.Time
	windowSize   time.Duration
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	openedAt     time.Time
	probing      bool

	target string
	logger zerolog.Logger
	now    func() time.Time
}

// NewBreaker constructs a closed breaker. Out of range settings fall back to
// one request, a 50% ratio and a 30s cool-off.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: min(failureRatio, 1),
		openFor:      openFor,
		windowSize:   defaultWindow,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithWindow sets how long closed-state outcomes are counted before the
// counters start over.
func (b *Breaker) WithWindow(d time.Duration) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > 0 {
		b.windowSize = d
	}
	return b
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishState()
	return b
}

// WithLogger sets the logger used for transitions when the request context
// carries none.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. Every admitted request must be
// followed by Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.setState(ctx, HalfOpen)
	case HalfOpen:
		if b.probing {
			return false
		}
	default:
		return true
	}
	b.probing = true
	return true
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.setState(ctx, Closed)
		} else {
			b.setState(ctx, Open)
		}
		return
	}

	if now := b.now(); now.Sub(b.windowStart) >= b.windowSize {
		b.window = counts{}
		b.windowStart = now
	}
	b.window.requests++
	if !success {
		b.window.failures++
	}
	if b.window.requests < b.minRequests {
		return
	}
	if float64(b.window.failures)/float64(b.window.requests) >= b.failureRatio {
		b.setState(ctx, Open)
	}
}

// Execute runs fn when the breaker admits it and reports the outcome.
// Cancellation by the caller says nothing about the dependency and is not
// counted.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		b.Abandon()
		return err
	}
	b.Report(ctx, err == nil)
	return err
}

// Abandon releases an admitted request without recording an outcome. A
// half-open breaker admits its next probe.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *Breaker) setState(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.now()
	b.state = next
	b.window = counts{}
	b.windowStart = now
	b.probing = false
	if next == Open {
		b.openedAt = now
	}
	b.publishState()
	b.publishTransition(ctx, prev, next)
}

func (b *Breaker) targetLabel() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}
