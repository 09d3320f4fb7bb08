package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Stock is the lot snapshot and list price for one product.
type Stock struct {
	Lots      []Lot
	BasePrice Money
}

// Summary aggregates the priced lines of a cart.
type Summary struct {
	Subtotal     Money
	ServiceFee   Money
	TotalAmount  Money
	Lines        []LineResult
	HasShortfall bool
}

// Engine prices carts against a stock snapshot.
type Engine struct {
	Fee FeePolicy
}

// Price allocates every line in order and summarises the result. Products
// missing from stock are priced as having no lots and a zero base price.
// Lines that repeat a product draw from what earlier lines left behind.
func (e Engine) Price(lines []Line, stock map[string]Stock) Summary {
	remaining := make(map[string][]Lot, len(stock))
	results := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		st := stock[line.ProductID]
		lots, seen := remaining[line.ProductID]
		if !seen {
			lots = st.Lots
		}
		res, rest := Allocate(line, lots, st.BasePrice)
		remaining[line.ProductID] = rest
		results = append(results, res)
	}
	return Summarize(results, e.Fee)
}

// PriceAtBase prices every line at its product's list price without touching
// lots. It is used when the lot index cannot be read.
func (e Engine) PriceAtBase(lines []Line, basePrices map[string]Money) Summary {
	results := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		base := Round(basePrices[line.ProductID])
		results = append(results, LineResult{
			ProductID:           line.ProductID,
			Quantity:            line.Quantity,
			CalculatedUnitPrice: base,
			LineTotal:           Round(base.Mul(qty(line.Quantity))),
			BasePrice:           base,
		})
	}
	return Summarize(results, e.Fee)
}

// Summarize folds line results into a Summary. Line totals are already
// rounded, so the subtotal is their exact sum.
func Summarize(lines []LineResult, fee FeePolicy) Summary {
	subtotal := decimal.Zero
	shortfall := false
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
		if l.Shortfall > 0 {
			shortfall = true
		}
	}
	subtotal = Round(subtotal)
	serviceFee := fee.Apply(subtotal)
	return Summary{
		Subtotal:     subtotal,
		ServiceFee:   serviceFee,
		TotalAmount:  subtotal.Add(serviceFee),
		Lines:        lines,
		HasShortfall: shortfall,
	}
}

// Fingerprint returns a stable digest of the priced amounts. Two quotes with
// the same fingerprint charge the same amounts for the same lines.
func Fingerprint(s Summary, currency string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(strings.TrimSpace(currency)))
	for _, l := range s.Lines {
		b.WriteByte('|')
		b.WriteString(l.ProductID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l.Quantity))
		b.WriteByte(':')
		b.WriteString(l.CalculatedUnitPrice.StringFixed(MinorUnits))
		b.WriteByte(':')
		b.WriteString(l.LineTotal.StringFixed(MinorUnits))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(l.Shortfall))
	}
	b.WriteString("|subtotal=")
	b.WriteString(s.Subtotal.StringFixed(MinorUnits))
	b.WriteString("|fee=")
	b.WriteString(s.ServiceFee.StringFixed(MinorUnits))
	b.WriteString("|total=")
	b.WriteString(s.TotalAmount.StringFixed(MinorUnits))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
