// Package pnl computes per-leg profit/loss figures for recorded positions.
package pnl

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the side of a position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ParseDirection matches long/short case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long":
		return Long, true
	case "short":
		return Short, true
	}
	return "", false
}

var hundred = decimal.NewFromInt(100)

// Value returns the signed USD PnL of one leg:
// (target - entry) * lots * 100, negated for shorts.
// Rounded to 2 decimal places, half away from zero.
func Value(entry, target, lots decimal.Decimal, dir Direction) decimal.Decimal {
	val := target.Sub(entry).Mul(lots).Mul(hundred)
	if dir == Short {
		val = val.Neg()
	}
	return val.Round(2)
}

// PercentOfBase returns the percentage impact of pnl on base.
// A zero base yields zero, not an error.
func PercentOfBase(base, pnl decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(base).Mul(hundred)
}
