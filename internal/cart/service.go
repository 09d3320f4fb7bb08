// Package cart prices storefront carts against supplier lot inventory.
package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-florist/internal/common"
	"github.com/noah-isme/backend-florist/internal/inventory"
	"github.com/noah-isme/backend-florist/internal/obs"
	"github.com/noah-isme/backend-florist/internal/pricing"
)

var (
	// ErrInvalidInput marks carts rejected before any allocation happens.
	ErrInvalidInput = errors.New("cart: invalid input")
	// ErrPricingUnavailable means not even list prices could be read.
	ErrPricingUnavailable = errors.New("cart: pricing unavailable")
	// ErrPriceChanged is returned by Verify when a quote no longer matches.
	ErrPriceChanged = errors.New("cart: price changed")
)

// Warning codes attached to a quote.
const (
	WarningShortfall            = "SHORTFALL"
	WarningUnknownProduct       = "UNKNOWN_PRODUCT"
	WarningInventoryUnavailable = "INVENTORY_UNAVAILABLE"
)

// Item is one requested cart line.
type Item struct {
	CartItemID string
	ProductID  ProductRef
	Quantity   int
}

// Warning flags a line or quote that was priced with caveats.
type Warning struct {
	Code      string
	ProductID *ProductRef
	Message   string
}

// Quote is the priced cart returned to callers.
type Quote struct {
	Currency    string
	Items       []Item
	Summary     pricing.Summary
	Degraded    bool
	Warnings    []Warning
	Fingerprint string
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Index       inventory.Index
	Fee         pricing.FeePolicy
	Currency    string
	MaxLines    int
	MaxQuantity int
}

// Service prices carts. It holds no per-request state.
type Service struct {
	Index       inventory.Index
	Engine      pricing.Engine
	Currency    string
	MaxLines    int
	MaxQuantity int
}

// NewService constructs a Service, applying defaults for unset limits.
func NewService(cfg ServiceConfig) *Service {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "VND"
	}
	maxLines := cfg.MaxLines
	if maxLines <= 0 {
		maxLines = 100
	}
	maxQty := cfg.MaxQuantity
	if maxQty <= 0 {
		maxQty = 10000
	}
	return &Service{
		Index:       cfg.Index,
		Engine:      pricing.Engine{Fee: cfg.Fee},
		Currency:    currency,
		MaxLines:    maxLines,
		MaxQuantity: maxQty,
	}
}

// Quote prices items against a single snapshot of the lot index. Validation
// failures return an AppError wrapping ErrInvalidInput. When lots cannot be
// read every line falls back to its list price and the quote is marked
// degraded; when list prices cannot be read either, ErrPricingUnavailable is returned.
func (s *Service) Quote(ctx context.Context, items []Item, currency string) (*Quote, error) {
	if err := s.validate(items, currency); err != nil {
		obs.ObserveQuote("invalid")
		return nil, err
	}
	logger := zerolog.Ctx(ctx)

	lines := make([]pricing.Line, len(items))
	refs := make(map[string]ProductRef, len(items))
	order := make([]string, 0, len(items))
	for i, it := range items {
		id := it.ProductID.String()
		lines[i] = pricing.Line{ProductID: id, Quantity: it.Quantity}
		if _, seen := refs[id]; !seen {
			refs[id] = it.ProductID
			order = append(order, id)
		}
	}

	snap := inventory.NewSnapshot(s.Index)
	lots := make(map[string][]inventory.SupplyLot, len(order))
	var lotErr error
	for _, id := range order {
		found, err := snap.LotsFor(ctx, id)
		if err != nil {
			lotErr = err
			break
		}
		lots[id] = found
	}

	var warnings []Warning
	basePrices := make(map[string]pricing.Money, len(order))
	unknown := map[string]bool{}
	for _, id := range order {
		price, known, err := snap.BasePrice(ctx, id)
		if err != nil {
			obs.ObserveQuote("unavailable")
			logger.Error().Err(err).AnErr("lots_error", lotErr).Msg("pricing_unavailable")
			return nil, common.NewAppError(common.CodeInventoryUnavailable, "pricing is temporarily unavailable",
				http.StatusServiceUnavailable, fmt.Errorf("%w: %w", ErrPricingUnavailable, err))
		}
		if !known {
			unknown[id] = true
			ref := refs[id]
			warnings = append(warnings, Warning{
				Code:      WarningUnknownProduct,
				ProductID: &ref,
				Message:   "product is not in the catalogue",
			})
		}
		basePrices[id] = price
	}

	quote := &Quote{Currency: s.Currency, Items: items}
	if lotErr != nil {
		logger.Warn().Err(lotErr).Int("lines", len(lines)).Msg("pricing_degraded")
		quote.Degraded = true
		quote.Summary = s.Engine.PriceAtBase(lines, basePrices)
		warnings = append(warnings, Warning{
			Code:    WarningInventoryUnavailable,
			Message: "supplier lots are unavailable; lines are priced at list price",
		})
	} else {
		stock := make(map[string]pricing.Stock, len(order))
		for _, id := range order {
			// Lots of a product missing from the catalogue are never sold.
			if unknown[id] {
				stock[id] = pricing.Stock{BasePrice: basePrices[id]}
				continue
			}
			stock[id] = pricing.Stock{Lots: toPricingLots(lots[id]), BasePrice: basePrices[id]}
		}
		quote.Summary = s.Engine.Price(lines, stock)
		warnings = append(warnings, shortfallWarnings(items, quote.Summary.Lines, unknown)...)
	}
	quote.Warnings = warnings
	quote.Fingerprint = pricing.Fingerprint(quote.Summary, quote.Currency)

	shortfalls := 0
	for _, l := range quote.Summary.Lines {
		if l.Shortfall > 0 {
			shortfalls++
		}
	}
	obs.ObserveShortfall(shortfalls)
	if quote.Degraded {
		obs.ObserveQuote("degraded")
	} else {
		obs.ObserveQuote("ok")
	}
	logger.Debug().
		Int("lines", len(lines)).
		Str("subtotal", quote.Summary.Subtotal.StringFixed(pricing.MinorUnits)).
		Str("total", quote.Summary.TotalAmount.StringFixed(pricing.MinorUnits)).
		Int("shortfall_lines", shortfalls).
		Bool("degraded", quote.Degraded).
		Msg("cart_priced")
	return quote, nil
}

// Verify re-prices items and compares the result with a fingerprint issued
// earlier. On mismatch the fresh quote is returned along with an AppError
// wrapping ErrPriceChanged.
func (s *Service) Verify(ctx context.Context, items []Item, currency, fingerprint string) (*Quote, error) {
	quote, err := s.Quote(ctx, items, currency)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(fingerprint), quote.Fingerprint) {
		return quote, common.NewAppError(common.CodePriceChanged, "cart prices have changed", http.StatusConflict, ErrPriceChanged)
	}
	return quote, nil
}

// Lots returns the stocked lots for one product, cheapest first. Products
// missing from the catalogue yield a NOT_FOUND AppError even when lots remain.
func (s *Service) Lots(ctx context.Context, productID string) ([]inventory.SupplyLot, pricing.Money, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pricing.Money{}, common.ValidationError("productId is required", ErrInvalidInput)
	}
	lots, err := s.Index.LotsFor(ctx, productID)
	if err != nil {
		return nil, pricing.Money{}, unavailable(err)
	}
	price, known, err := s.Index.BasePrice(ctx, productID)
	if err != nil {
		return nil, pricing.Money{}, unavailable(err)
	}
	if !known {
		return nil, pricing.Money{}, common.NewAppError(common.CodeNotFound, "product not found", http.StatusNotFound, nil)
	}
	return lots, price, nil
}

func unavailable(err error) error {
	return common.NewAppError(common.CodeInventoryUnavailable, "inventory is temporarily unavailable",
		http.StatusServiceUnavailable, err)
}

func (s *Service) validate(items []Item, currency string) error {
	if len(items) == 0 {
		return common.ValidationError("cart must contain at least one item", ErrInvalidInput).
			WithDetails(map[string]string{"cartItems": "must contain at least 1 item"})
	}
	if len(items) > s.MaxLines {
		return common.ValidationError("cart has too many items", ErrInvalidInput).
			WithDetails(map[string]string{"cartItems": fmt.Sprintf("must contain at most %d items", s.MaxLines)})
	}
	details := map[string]string{}
	for i, it := range items {
		if it.ProductID.String() == "" {
			details[fmt.Sprintf("cartItems[%d].productId", i)] = "is required"
		}
		switch {
		case it.Quantity <= 0:
			details[fmt.Sprintf("cartItems[%d].quantity", i)] = "must be greater than 0"
		case it.Quantity > s.MaxQuantity:
			details[fmt.Sprintf("cartItems[%d].quantity", i)] = fmt.Sprintf("must be at most %d", s.MaxQuantity)
		}
	}
	if c := strings.TrimSpace(currency); c != "" && !strings.EqualFold(c, s.Currency) {
		details["currency"] = fmt.Sprintf("must be %s", s.Currency)
	}
	if len(details) > 0 {
		return common.ValidationError("validation failed", ErrInvalidInput).WithDetails(details)
	}
	return nil
}

// shortfallWarnings flags lines that lots could not cover. Unknown products
// already carry their own warning.
func shortfallWarnings(items []Item, lines []pricing.LineResult, unknown map[string]bool) []Warning {
	var out []Warning
	for i, line := range lines {
		if line.Shortfall == 0 || unknown[line.ProductID] {
			continue
		}
		ref := items[i].ProductID
		out = append(out, Warning{
			Code:      WarningShortfall,
			ProductID: &ref,
			Message: fmt.Sprintf("%d of %d units are not covered by supplier lots and are priced at %s",
				line.Shortfall, line.Quantity, line.BasePrice.StringFixed(pricing.MinorUnits)),
		})
	}
	return out
}

func toPricingLots(lots []inventory.SupplyLot) []pricing.Lot {
	out := make([]pricing.Lot, len(lots))
	for i, l := range lots {
		out[i] = pricing.Lot{
			ID:         l.LotID,
			SupplierID: l.SupplierID,
			UnitPrice:  l.UnitPrice,
			Quantity:   l.QuantityAvailable,
		}
	}
	return out
}
