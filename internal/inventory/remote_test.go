package inventory_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-florist/internal/inventory"
	"github.com/noah-isme/backend-florist/internal/resilience"
)

func newSupplierService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/products/rose/lots", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"lots":[
			{"lotId":"8","supplierId":"s2","unitPrice":12000,"quantityAvailable":4,"receivedAt":"2024-01-02T00:00:00Z"},
			{"lotId":"5","supplierId":"s1","unitPrice":10000,"quantityAvailable":3,"receivedAt":"2024-01-01T00:00:00Z"},
			{"lotId":"6","supplierId":"s1","unitPrice":9000,"quantityAvailable":0,"receivedAt":"2024-01-01T00:00:00Z"}
		]}`))
	})
	mux.HandleFunc("/products/rose", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"rose","basePrice":"15000.00"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteIndexLots(t *testing.T) {
	srv := newSupplierService(t)
	idx := inventory.RemoteIndex{BaseURL: srv.URL + "/", HTTP: resilience.HTTPClient{Client: srv.Client()}}
	ctx := context.Background()

	lots, err := idx.LotsFor(ctx, "rose")
	require.NoError(t, err)
	require.Equal(t, []string{"5", "8"}, lotIDs(lots))
	require.Equal(t, "rose", lots[0].ProductID)

	lots, err = idx.LotsFor(ctx, "tulip")
	require.NoError(t, err)
	require.Empty(t, lots)

	price, known, err := idx.BasePrice(ctx, "rose")
	require.NoError(t, err)
	require.True(t, known)
	require.True(t, price.Equal(decimal.RequireFromString("15000")))

	_, known, err = idx.BasePrice(ctx, "tulip")
	require.NoError(t, err)
	require.False(t, known)
}

type slowIndex struct{ inventory.Index }

func (slowIndex) LotsFor(ctx context.Context, _ string) ([]inventory.SupplyLot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGuardedIndexTimesOut(t *testing.T) {
	guarded := inventory.GuardedIndex{Next: slowIndex{}, Timeout: 10 * time.Millisecond}

	_, err := guarded.LotsFor(context.Background(), "rose")
	require.ErrorIs(t, err, inventory.ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuardedIndexOpensBreaker(t *testing.T) {
	counting := &countingIndex{Index: seededIndex(), err: errors.New("connection refused")}
	guarded := inventory.GuardedIndex{
		Next:         counting,
		Breaker:      resilience.NewBreaker(2, 0.5, time.Minute),
		PriceBreaker: resilience.NewBreaker(2, 0.5, time.Minute),
		Source:       "test",
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := guarded.LotsFor(ctx, "rose")
		require.ErrorIs(t, err, inventory.ErrUnavailable)
	}
	counting.err = nil

	_, err := guarded.LotsFor(ctx, "rose")
	require.ErrorIs(t, err, inventory.ErrUnavailable)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.EqualValues(t, 2, counting.lotCalls.Load())

	price, known, err := guarded.BasePrice(ctx, "rose")
	require.NoError(t, err, "list prices have their own breaker")
	require.True(t, known)
	require.True(t, price.Equal(decimal.RequireFromString("15000")))
	require.EqualValues(t, 1, counting.baseCalls.Load())
}

func TestRemoteIndexPricesSurviveLotOutage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products/7/lots", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/products/7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"7","basePrice":"15000"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := func() resilience.HTTPClient {
		return resilience.HTTPClient{Client: srv.Client(), Breaker: resilience.NewBreaker(1, 0.5, time.Minute), MaxAttempts: 1}
	}
	idx := inventory.RemoteIndex{BaseURL: srv.URL, HTTP: client(), Prices: client()}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := idx.LotsFor(ctx, "7")
		require.Error(t, err)
		price, known, err := idx.BasePrice(ctx, "7")
		require.NoError(t, err)
		require.True(t, known)
		require.True(t, price.Equal(decimal.NewFromInt(15000)))
	}
	require.Equal(t, resilience.Open, idx.HTTP.Breaker.State())
	require.Equal(t, resilience.Closed, idx.Prices.Breaker.State())
}

func TestGuardedIndexPassesThrough(t *testing.T) {
	guarded := inventory.GuardedIndex{Next: seededIndex(), Breaker: resilience.NewBreaker(1, 0.5, time.Minute)}
	lots, err := guarded.LotsFor(context.Background(), "rose")
	require.NoError(t, err)
	require.Len(t, lots, 2)
}
