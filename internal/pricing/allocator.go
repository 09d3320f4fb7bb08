package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Line is a single product/quantity request to be priced.
type Line struct {
	ProductID string
	Quantity  int
}

// Lot is a priced batch of supplier stock available to a line.
type Lot struct {
	ID         string
	SupplierID string
	UnitPrice  Money
	Quantity   int
}

// Allocation records the units drawn from one lot.
type Allocation struct {
	LotID      string
	SupplierID string
	Quantity   int
	UnitPrice  Money
}

// LineResult is the priced outcome of a Line.
type LineResult struct {
	ProductID string
	Quantity  int
	// CalculatedUnitPrice is the weighted average over the units satisfied
	// from lots, or the base price when no lot could serve the line.
	CalculatedUnitPrice Money
	LineTotal           Money
	Shortfall           int
	BasePrice           Money
	Allocations         []Allocation
}

// OrderLots returns a copy of lots ordered by unit price ascending. The sort
// is stable so callers that pre-order ties (oldest lot first) keep that order.
func OrderLots(lots []Lot) []Lot {
	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].UnitPrice.LessThan(ordered[j].UnitPrice)
	})
	return ordered
}

// Allocate fills line greedily from the cheapest lots first. Units no lot can
// cover are reported as Shortfall and priced at basePrice. The input slice is
// never modified; the lots left over after allocation are returned so a caller
// pricing several lines of the same product can draw them down in turn.
func Allocate(line Line, lots []Lot, basePrice Money) (LineResult, []Lot) {
	res := LineResult{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		BasePrice: Round(basePrice),
	}
	need := line.Quantity
	if need < 0 {
		need = 0
	}

	cost := decimal.Zero
	satisfied := 0
	rest := make([]Lot, 0, len(lots))
	for _, lot := range OrderLots(lots) {
		if lot.Quantity <= 0 {
			continue
		}
		if need == 0 {
			rest = append(rest, lot)
			continue
		}
		take := min(need, lot.Quantity)
		cost = cost.Add(lot.UnitPrice.Mul(qty(take)))
		satisfied += take
		need -= take
		res.Allocations = append(res.Allocations, Allocation{
			LotID:      lot.ID,
			SupplierID: lot.SupplierID,
			Quantity:   take,
			UnitPrice:  lot.UnitPrice,
		})
		lot.Quantity -= take
		if lot.Quantity > 0 {
			rest = append(rest, lot)
		}
	}

	res.Shortfall = need
	total := cost
	if need > 0 {
		total = total.Add(basePrice.Mul(qty(need)))
	}
	res.LineTotal = Round(total)
	if satisfied > 0 {
		res.CalculatedUnitPrice = cost.DivRound(qty(satisfied), MinorUnits)
	} else {
		res.CalculatedUnitPrice = Round(basePrice)
	}
	return res, rest
}
