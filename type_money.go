package kitty

import (
	"errors"
	"fmt"
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ValidateCurrency checks that code is a known ISO-4217 currency.
func ValidateCurrency(code string) error {
	if code == "" {
		return fmt.Errorf("currency is missing")
	}
	if money.GetCurrency(code) == nil {
		return fmt.Errorf("unknown currency %q", code)
	}
	return nil
}

// fraction returns the number of minor unit digits of a known currency.
func fraction(code string) int32 {
	return int32(money.GetCurrency(code).Fraction)
}

// Format returns the amount in minor units formatted with its currency
// symbol, e.g. "€9.00". It does not do any locale specific formatting.
func Format(amount int64, currency string) string {
	return money.New(amount, currency).Display()
}

// exactConversion returns the real valued conversion of amount (minor units of
// from) into minor units of to.
func exactConversion(amount int64, rate decimal.Decimal, from, to string) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(rate).Shift(fraction(to) - fraction(from))
}

var (
	errOverflow = errors.New("amount overflows int64")

	minAmount = decimal.NewFromInt(math.MinInt64)
	maxAmount = decimal.NewFromInt(math.MaxInt64)
)

// add returns a+b, or errOverflow if it does not fit in an int64.
func add(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, errOverflow
	}
	return s, nil
}

// toAmount returns the integer d, or errOverflow if it does not fit in an int64.
func toAmount(d decimal.Decimal) (int64, error) {
	if d.LessThan(minAmount) || d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%v: %w", d, errOverflow)
	}
	return d.IntPart(), nil
}

// Convert converts amount from minor units of from into minor units of to
// using rate, the price of one major unit of from in to. The result is rounded
// half to even, so it is never more than half a minor unit away from the exact
// value. It fails if the result does not fit in an int64.
func Convert(amount int64, rate decimal.Decimal, from, to string) (int64, error) {
	return toAmount(exactConversion(amount, rate, from, to).RoundBank(0))
}
