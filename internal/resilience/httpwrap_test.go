package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-florist/internal/resilience"
)

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"rose"}`))
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 2, BaseBackoff: time.Millisecond}
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.GetJSON(context.Background(), srv.URL, &out))
	require.Equal(t, "rose", out.Name)
	require.EqualValues(t, 2, calls.Load())
}

func TestGetJSONNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{Client: srv.Client()}
	var out map[string]any
	err := client.GetJSON(context.Background(), srv.URL+"/missing", &out)
	require.ErrorIs(t, err, resilience.ErrNotFound)
}

func TestHTTPClientStopsWhenBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(1, 0.5, time.Minute),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}
	var out map[string]any
	err := client.GetJSON(context.Background(), srv.URL, &out)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 1, calls.Load())
}

func TestHTTPClientRecoversAfterProbeHitsDeadline(t *testing.T) {
	const (
		failing = iota
		slow
		healthy
	)
	var mode atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch mode.Load() {
		case failing:
			w.WriteHeader(http.StatusInternalServerError)
			return
		case slow:
			select {
			case <-time.After(100 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"rose"}`))
	}))
	t.Cleanup(srv.Close)

	breaker := resilience.NewBreaker(1, 0.5, 20*time.Millisecond)
	client := resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, MaxAttempts: 1}
	var out map[string]any

	require.Error(t, client.GetJSON(context.Background(), srv.URL, &out))
	require.Equal(t, resilience.Open, breaker.State())

	time.Sleep(30 * time.Millisecond)
	mode.Store(slow)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, client.GetJSON(ctx, srv.URL, &out), context.DeadlineExceeded)
	require.Equal(t, resilience.Open, breaker.State(), "a timed out probe re-opens the breaker")

	mode.Store(healthy)
	require.Eventually(t, func() bool {
		return client.GetJSON(context.Background(), srv.URL, &out) == nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestHTTPClientReleasesCancelledProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		cancel()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	breaker := resilience.NewBreaker(1, 0.5, 10*time.Millisecond)
	client := resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, MaxAttempts: 1}
	var out map[string]any

	require.Error(t, client.GetJSON(context.Background(), srv.URL, &out))
	time.Sleep(15 * time.Millisecond)
	failing.Store(false)

	require.ErrorIs(t, client.GetJSON(ctx, srv.URL, &out), context.Canceled)
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.True(t, breaker.Allow(context.Background()), "a cancelled probe must not block the next one")
}
