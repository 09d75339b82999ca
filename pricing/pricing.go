// Package pricing holds the fixed-point amount math shared by every venue:
// unit conversion, price impact and slippage floors.
package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseUnits converts a decimal string into raw integer units. More
// fractional digits than decimals is an error, not a silent truncation.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders raw units as a decimal string. Whole numbers keep one
// fractional digit ("3000.0").
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		raw = new(big.Int)
	}
	s := decimal.NewFromBigInt(raw, -int32(decimals)).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ToDecimal converts raw units to a decimal value.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// PriceImpact is max(0, (expected-actual)/expected*100), in percent.
func PriceImpact(expected, actual *big.Int) decimal.Decimal {
	if expected == nil || expected.Sign() <= 0 || actual == nil {
		return decimal.Zero
	}
	if actual.Cmp(expected) >= 0 {
		return decimal.Zero
	}
	e := decimal.NewFromBigInt(expected, 0)
	a := decimal.NewFromBigInt(actual, 0)
	return e.Sub(a).Div(e).Mul(hundred)
}

// ExceedsImpact reports whether impact is above the ceiling (both percent).
func ExceedsImpact(impact, ceiling decimal.Decimal) bool {
	return impact.GreaterThan(ceiling)
}

// MinAmountOut subtracts the slippage floor actual*tolerance from actual. The
// floor is at least one unit so the minimum is strictly below actual.
func MinAmountOut(actual *big.Int, tolerance decimal.Decimal) (*big.Int, error) {
	if actual == nil || actual.Sign() <= 0 {
		return nil, fmt.Errorf("cannot bound a non-positive output")
	}
	if !tolerance.IsPositive() || tolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("slippage tolerance %s must be in (0, 1)", tolerance)
	}
	floor := decimal.NewFromBigInt(actual, 0).Mul(tolerance).Floor().BigInt()
	if floor.Sign() == 0 {
		floor.SetInt64(1)
	}
	return new(big.Int).Sub(actual, floor), nil
}

var ladder = []int64{1, 2, 5}

// ReferenceAmounts returns the small input sizes used to sample the spot
// rate, in the order they should be tried: a hundredth of one whole token,
// then 1%, 2% and 5% of the real trade size.
func ReferenceAmounts(amountIn *big.Int, decimals uint8) []*big.Int {
	var out []*big.Int
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	if hundredth := unit.Div(unit, big.NewInt(100)); hundredth.Sign() > 0 {
		out = append(out, hundredth)
	}
	if amountIn == nil {
		return out
	}
	for _, pct := range ladder {
		v := new(big.Int).Mul(amountIn, big.NewInt(pct))
		v.Div(v, big.NewInt(100))
		if v.Sign() > 0 {
			out = append(out, v)
		}
	}
	return out
}

// ScaleExpected extrapolates a reference quote to the full input size:
// refOut * amountIn / refIn.
func ScaleExpected(refIn, refOut, amountIn *big.Int) *big.Int {
	if refIn == nil || refIn.Sign() == 0 || refOut == nil || amountIn == nil {
		return new(big.Int)
	}
	v := new(big.Int).Mul(refOut, amountIn)
	return v.Div(v, refIn)
}

// FiatToNative converts a fiat amount to raw native units at spot (fiat per
// native unit), rounding down to the native precision.
func FiatToNative(fiat, spot decimal.Decimal, nativeDecimals uint8) (*big.Int, error) {
	if !spot.IsPositive() {
		return nil, fmt.Errorf("spot price %s is not positive", spot)
	}
	native := fiat.DivRound(spot, int32(nativeDecimals)+2).Truncate(int32(nativeDecimals))
	return ParseUnits(native.StringFixed(int32(nativeDecimals)), nativeDecimals)
}
