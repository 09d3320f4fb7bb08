package cart_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-florist/internal/cart"
	"github.com/noah-isme/backend-florist/internal/inventory"
)

type envelope struct {
	Succeeded bool            `json:"succeeded"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Error     *struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newRouter(index inventory.Index) http.Handler {
	h := &cart.Handler{Svc: newService(index)}
	r := chi.NewRouter()
	r.Post("/cart/calculate-price", h.CalculatePrice)
	r.Post("/cart/verify-quote", h.VerifyQuote)
	r.Get("/inventory/products/{productId}/lots", h.ProductLots)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func decodeData(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	require.NoError(t, dec.Decode(&data))
	return data
}

func TestCalculatePriceEndpoint(t *testing.T) {
	router := newRouter(newIndex())
	rec, env := do(t, router, http.MethodPost, "/cart/calculate-price",
		`{"cartItems":[{"cartItemId":"c1","productId":7,"quantity":5},{"productId":"8","quantity":1}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.True(t, env.Succeeded)

	data := decodeData(t, env.Data)
	require.Equal(t, json.Number("74000.00"), data["subtotal"])
	require.Equal(t, json.Number("7400.00"), data["serviceFee"])
	require.Equal(t, json.Number("81400.00"), data["totalAmount"])
	require.Equal(t, "VND", data["currency"])
	require.Equal(t, true, data["hasShortfall"])

	items := data["cartItems"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	require.Equal(t, "c1", first["cartItemId"])
	require.Equal(t, json.Number("7"), first["productId"])
	require.Equal(t, json.Number("10800.00"), first["calculatedUnitPrice"])
	require.Equal(t, json.Number("54000.00"), first["lineTotal"])
	second := items[1].(map[string]any)
	require.Equal(t, "8", second["productId"])
	require.NotContains(t, second, "cartItemId")
	require.Equal(t, json.Number("1"), second["shortfall"])
}

func TestCalculatePriceIsIdempotent(t *testing.T) {
	router := newRouter(newIndex())
	body := `{"cartItems":[{"productId":7,"quantity":4},{"productId":7,"quantity":12}]}`

	first, _ := do(t, router, http.MethodPost, "/cart/calculate-price", body)
	second, _ := do(t, router, http.MethodPost, "/cart/calculate-price", body)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, first.Body.Bytes(), second.Body.Bytes())
}

func TestCalculatePriceNormalisesNumericIDs(t *testing.T) {
	router := newRouter(newIndex())
	rec, env := do(t, router, http.MethodPost, "/cart/calculate-price",
		`{"cartItems":[{"productId":7,"quantity":1},{"productId":7.0,"quantity":1},{"productId":7e0,"quantity":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, env.Data)
	require.Equal(t, json.Number("30000.00"), data["subtotal"])
	require.Equal(t, false, data["hasShortfall"])
	for _, raw := range data["cartItems"].([]any) {
		require.Equal(t, json.Number("7"), raw.(map[string]any)["productId"])
	}
}

func TestCalculatePriceValidation(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "zero quantity", body: `{"cartItems":[{"productId":7,"quantity":0}]}`, field: "cartItems[0].quantity"},
		{name: "negative quantity", body: `{"cartItems":[{"productId":7,"quantity":-1}]}`, field: "cartItems[0].quantity"},
		{name: "missing product", body: `{"cartItems":[{"quantity":1}]}`, field: "cartItems[0].productId"},
		{name: "empty cart", body: `{"cartItems":[]}`, field: "cartItems"},
		{name: "bad currency", body: `{"cartItems":[{"productId":7,"quantity":1}],"currency":"US1"}`, field: "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			index := &stubIndex{Index: newIndex()}
			rec, env := do(t, newRouter(index), http.MethodPost, "/cart/calculate-price", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.False(t, env.Succeeded)
			require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
			require.Contains(t, env.Error.Details, tc.field)
			require.Zero(t, index.calls)
		})
	}
}

func TestCalculatePriceMalformedBody(t *testing.T) {
	router := newRouter(newIndex())
	for _, body := range []string{
		`{"cartItems":`,
		`{"cartItems":[{"productId":true,"quantity":1}]}`,
		`{"cartItems":[{"productId":7.5,"quantity":1}]}`,
		`{"items":[]}`,
		``,
	} {
		rec, env := do(t, router, http.MethodPost, "/cart/calculate-price", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.False(t, env.Succeeded)
	}
}

func TestCalculatePriceUnavailable(t *testing.T) {
	index := &stubIndex{Index: newIndex(), lotsErr: inventory.ErrUnavailable, baseErr: inventory.ErrUnavailable}
	rec, env := do(t, newRouter(index), http.MethodPost, "/cart/calculate-price", `{"cartItems":[{"productId":7,"quantity":1}]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, env.Succeeded)
	require.Equal(t, "INVENTORY_UNAVAILABLE", env.Error.Code)
}

func TestVerifyQuoteEndpoint(t *testing.T) {
	index := newIndex()
	router := newRouter(index)
	_, env := do(t, router, http.MethodPost, "/cart/calculate-price", `{"cartItems":[{"productId":7,"quantity":5}]}`)
	fingerprint := decodeData(t, env.Data)["fingerprint"].(string)

	body := `{"cartItems":[{"productId":7,"quantity":5}],"fingerprint":"` + fingerprint + `"}`
	rec, env := do(t, router, http.MethodPost, "/cart/verify-quote", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Succeeded)

	index.AddLot(inventory.SupplyLot{LotID: "9", ProductID: "7", SupplierID: "hue", UnitPrice: dec("9000"), QuantityAvailable: 1})
	rec, env = do(t, router, http.MethodPost, "/cart/verify-quote", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, env.Succeeded)
	require.Equal(t, "PRICE_CHANGED", env.Error.Code)
	fresh := decodeData(t, env.Data)
	require.Equal(t, json.Number("51000.00"), fresh["subtotal"])
	require.NotEqual(t, fingerprint, fresh["fingerprint"])
}

func TestProductLotsEndpoint(t *testing.T) {
	router := newRouter(newIndex())

	rec, env := do(t, router, http.MethodGet, "/inventory/products/7/lots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, env.Data)
	require.Equal(t, json.Number("15000.00"), data["basePrice"])
	lots := data["lots"].([]any)
	require.Len(t, lots, 2)
	require.Equal(t, json.Number("10000.00"), lots[0].(map[string]any)["unitPrice"])

	rec, env = do(t, router, http.MethodGet, "/inventory/products/404/lots", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHandlerWithoutService(t *testing.T) {
	rec := httptest.NewRecorder()
	(&cart.Handler{}).CalculatePrice(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
