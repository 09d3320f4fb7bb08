// Package inventory resolves supplier lots and list prices for products.
package inventory

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable indicates the inventory collaborator could not be reached.
var ErrUnavailable = errors.New("inventory unavailable")

// SupplyLot is a batch of stock from one supplier import.
type SupplyLot struct {
	LotID             string          `json:"lotId"`
	ProductID         string          `json:"productId"`
	SupplierID        string          `json:"supplierId"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	QuantityAvailable int             `json:"quantityAvailable"`
	ReceivedAt        time.Time       `json:"receivedAt"`
}

// Index is the read-only lot lookup used for pricing.
type Index interface {
	// LotsFor returns the product's stocked lots cheapest first. Unknown
	// products yield an empty slice and no error.
	LotsFor(ctx context.Context, productID string) ([]SupplyLot, error)
	// BasePrice returns the product's list price and whether the product exists.
	BasePrice(ctx context.Context, productID string) (decimal.Decimal, bool, error)
}

// Lister enumerates products that currently hold stock.
type Lister interface {
	StockedProducts(ctx context.Context) ([]string, error)
}

// SortLots drops empty lots and orders the rest by unit price, then oldest
// first, then by lot id. The input slice is left untouched.
func SortLots(lots []SupplyLot) []SupplyLot {
	out := make([]SupplyLot, 0, len(lots))
	for _, lot := range lots {
		if lot.QuantityAvailable > 0 {
			out = append(out, lot)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.UnitPrice.Cmp(b.UnitPrice); c != 0 {
			return c < 0
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return lessLotID(a.LotID, b.LotID)
	})
	return out
}

func lessLotID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}
