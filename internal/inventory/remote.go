package inventory

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-florist/internal/resilience"
)

// RemoteIndex reads lots from an external supplier-listing service. Prices,
// when its Client is set, serves product lookups so they keep their own
// breaker; otherwise HTTP serves both.
type RemoteIndex struct {
	BaseURL string
	HTTP    resilience.HTTPClient
	Prices  resilience.HTTPClient
}

// NewRemoteHTTPClient returns an http.Client whose transport emits client spans.
func NewRemoteHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

type remoteLots struct {
	Lots []SupplyLot `json:"lots"`
}

type remoteProduct struct {
	ID        string          `json:"id"`
	BasePrice decimal.Decimal `json:"basePrice"`
}

func (r RemoteIndex) LotsFor(ctx context.Context, productID string) ([]SupplyLot, error) {
	var payload remoteLots
	err := r.HTTP.GetJSON(ctx, r.productURL(productID, "lots"), &payload)
	if errors.Is(err, resilience.ErrNotFound) {
		return []SupplyLot{}, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range payload.Lots {
		if payload.Lots[i].ProductID == "" {
			payload.Lots[i].ProductID = productID
		}
	}
	return SortLots(payload.Lots), nil
}

func (r RemoteIndex) BasePrice(ctx context.Context, productID string) (decimal.Decimal, bool, error) {
	var payload remoteProduct
	err := r.priceClient().GetJSON(ctx, r.productURL(productID), &payload)
	if errors.Is(err, resilience.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return payload.BasePrice, true, nil
}

func (r RemoteIndex) priceClient() resilience.HTTPClient {
	if r.Prices.Client != nil {
		return r.Prices
	}
	return r.HTTP
}

func (r RemoteIndex) productURL(productID string, parts ...string) string {
	segments := append([]string{"products", url.PathEscape(productID)}, parts...)
	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.Join(segments, "/")
}
