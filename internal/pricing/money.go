package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount in the store currency.
type Money = decimal.Decimal

// MinorUnits is the number of decimal places kept for every monetary result.
const MinorUnits = 2

var hundred = decimal.NewFromInt(100)

// Round rounds to the currency minor unit. Halves round away from zero, which
// is round-half-up for the non-negative amounts handled here.
func Round(m Money) Money {
	return m.Round(MinorUnits)
}

// ParseMoney parses a decimal string such as "12000" or "12000.50".
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	m, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse money %q: %w", value, err)
	}
	return m, nil
}

func qty(n int) Money {
	return decimal.NewFromInt(int64(n))
}
