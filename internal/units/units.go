// Package units converts between human token amounts and base units.
package units

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxDecimals bounds the decimals accepted by Parse and Format.
const MaxDecimals = 77

// Parse converts a human amount such as "1.5" into base units for a token
// with the given decimals. Fraction digits beyond decimals are rounded half up.
func Parse(text string, decimals uint8) (*uint256.Int, error) {
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("decimals out of range: %d", decimals)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount: %s", text)
	}

	base := d.Shift(int32(decimals)).Round(0)
	out, overflow := uint256.FromBig(base.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount does not fit in 256 bits: %s", text)
	}
	return out, nil
}

// Format renders base units as a human amount without trailing zeros.
func Format(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).String()
}

// FormatFixed renders base units rounded to places fraction digits.
func FormatFixed(value *uint256.Int, decimals uint8, places int32) string {
	if value == nil {
		value = new(uint256.Int)
	}
	return decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).StringFixed(places)
}
