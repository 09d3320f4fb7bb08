package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// FeePolicy derives the service fee from a cart subtotal.
type FeePolicy struct {
	// Percent is a percentage of the subtotal, 5 meaning 5%.
	Percent    Money
	FlatAmount Money
	MinFee     Money
	// MaxFee caps the fee; zero leaves it uncapped.
	MaxFee Money
}

// Validate reports whether the policy is usable.
func (p FeePolicy) Validate() error {
	if p.Percent.IsNegative() || p.FlatAmount.IsNegative() || p.MinFee.IsNegative() || p.MaxFee.IsNegative() {
		return errors.New("pricing: fee policy values must not be negative")
	}
	if p.MaxFee.IsPositive() && p.MinFee.GreaterThan(p.MaxFee) {
		return errors.New("pricing: minimum fee exceeds maximum fee")
	}
	return nil
}

// Apply computes the fee for subtotal. An empty or zero subtotal carries no fee.
func (p FeePolicy) Apply(subtotal Money) Money {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	fee := Round(subtotal.Mul(p.Percent).Div(hundred).Add(p.FlatAmount))
	if fee.LessThan(p.MinFee) {
		fee = p.MinFee
	}
	if p.MaxFee.IsPositive() && fee.GreaterThan(p.MaxFee) {
		fee = p.MaxFee
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return Round(fee)
}
