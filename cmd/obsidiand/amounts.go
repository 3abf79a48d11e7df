// amounts.go - Conversion between human token units and ledger base units.
package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// baseUnitExponent is the decimal shift between token units and base units
// (1 token = 1e9 base units).
const baseUnitExponent = 9

// parseAmount converts a human-unit decimal string to base units.
func parseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	base := d.Shift(baseUnitExponent)
	if !base.IsInteger() {
		return 0, fmt.Errorf("amount %q has sub-base-unit precision", s)
	}
	if !base.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	return base.BigInt().Uint64(), nil
}

// formatAmount renders base units back into human token units.
func formatAmount(base uint64) string {
	return decimal.NewFromUint64(base).Shift(-baseUnitExponent).String()
}
