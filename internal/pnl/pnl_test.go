package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValue_LongProfit(t *testing.T) {
	// (1.12 - 1.10) * 1 * 100 = 2.00
	got := Value(d("1.10"), d("1.12"), d("1"), Long)
	assert.True(t, got.Equal(d("2.00")), "got %s", got)
}

func TestValue_ShortNegatesLong(t *testing.T) {
	cases := []struct{ entry, target, lots string }{
		{"1.10", "1.12", "1"},
		{"100", "90", "2.5"},
		{"0.5", "0.5", "10"},
		{"3", "7", "-1"},
	}
	for _, c := range cases {
		long := Value(d(c.entry), d(c.target), d(c.lots), Long)
		short := Value(d(c.entry), d(c.target), d(c.lots), Short)
		assert.True(t, long.Equal(short.Neg()), "entry=%s target=%s lots=%s: %s vs %s",
			c.entry, c.target, c.lots, long, short)
	}
}

func TestValue_EntryEqualsTarget(t *testing.T) {
	for _, dir := range []Direction{Long, Short} {
		got := Value(d("42.5"), d("42.5"), d("3"), dir)
		assert.True(t, got.IsZero(), "dir=%s got %s", dir, got)
	}
}

func TestValue_Rounding(t *testing.T) {
	// (1.0001 - 1.0) * 1 * 100 = 0.01 exactly
	assert.True(t, Value(d("1.0"), d("1.0001"), d("1"), Long).Equal(d("0.01")))
	// (1.00005 - 1.0) * 1 * 100 = 0.005 -> 0.01 (half away from zero)
	assert.True(t, Value(d("1.0"), d("1.00005"), d("1"), Long).Equal(d("0.01")))
	assert.True(t, Value(d("1.0"), d("1.00005"), d("1"), Short).Equal(d("-0.01")))
}

func TestPercentOfBase(t *testing.T) {
	assert.True(t, PercentOfBase(decimal.Zero, d("123.45")).IsZero())
	assert.True(t, PercentOfBase(decimal.Zero, d("-50")).IsZero())

	// 2 / 1000 * 100 = 0.2%
	got := PercentOfBase(d("1000"), d("2"))
	assert.True(t, got.Equal(d("0.2")), "got %s", got)

	got = PercentOfBase(d("200"), d("-50"))
	assert.True(t, got.Equal(d("-25")), "got %s", got)
}

func TestParseDirection(t *testing.T) {
	for _, in := range []string{"long", "Long", "LONG", " long "} {
		dir, ok := ParseDirection(in)
		assert.True(t, ok, in)
		assert.Equal(t, Long, dir)
	}
	dir, ok := ParseDirection("Short")
	assert.True(t, ok)
	assert.Equal(t, Short, dir)

	for _, in := range []string{"", "buy", "l", "shortish"} {
		_, ok := ParseDirection(in)
		assert.False(t, ok, in)
	}
}
