package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return RedisLimiter{Client: client, Prefix: "test:"}, mr
}

func TestRedisLimiterSlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l, _ := newRedisLimiter(t)
	l.Now = func() time.Time { return now }
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "key", window, 2)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		require.Equal(t, 1-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, now.Add(window), d.ResetAt)

	now = now.Add(window + time.Millisecond)
	d, err = l.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed, "events older than the window must not count")
}

func TestRedisLimiterDoesNotCountRejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l, mr := newRedisLimiter(t)
	l.Now = func() time.Time { return now }
	ctx := context.Background()

	_, err := l.Allow(ctx, "k", time.Minute, 1)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		d, err := l.Allow(ctx, "k", time.Minute, 1)
		require.NoError(t, err)
		require.False(t, d.Allowed)
	}
	members, err := mr.ZMembers("test:k")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	d, err := l.Allow(ctx, "ip-1", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)

	_, err = l.Allow(ctx, "ip-1", time.Minute, 2)
	require.NoError(t, err)
	d, err = l.Allow(ctx, "ip-1", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = l.Allow(ctx, "ip-2", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed, "keys are limited independently")
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	handler := Handler{
		Limiter: NewMemoryLimiter(),
		Config:  Config{Key: ByClientIP("pricing:"), Window: time.Minute, Max: 1},
	}
	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/cart/calculate-price", nil)
	req.RemoteAddr = "198.51.100.2:4000"

	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
	require.JSONEq(t,
		`{"succeeded":false,"message":"rate limit exceeded","error":{"code":"RATE_LIMITED","message":"rate limit exceeded"}}`,
		rr2.Body.String())

	other := req.Clone(req.Context())
	other.RemoteAddr = "198.51.100.3:4000"
	rr3 := httptest.NewRecorder()
	counted.ServeHTTP(rr3, other)
	require.Equal(t, http.StatusOK, rr3.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Duration, int) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestHandlerMiddlewareFailsOpen(t *testing.T) {
	var reported error
	handler := Handler{
		Limiter: failingLimiter{},
		Config:  Config{Key: ByClientIP(""), Window: time.Second, Max: 1},
		OnError: func(_ *http.Request, err error) { reported = err },
	}
	rr := httptest.NewRecorder()
	handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualError(t, reported, "redis down")
}
