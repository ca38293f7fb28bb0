// Package pricing provides epsilon-safe price comparison and rounding
// helpers shared by signal validation and bracket checks.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

func fromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

// Compare returns -1, 0 or 1 comparing a against b without float noise.
func Compare(a, b float64) int {
	return fromFloat(a).Cmp(fromFloat(b))
}

func LTE(a, b float64) bool { return Compare(a, b) <= 0 }
func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }
func GT(a, b float64) bool  { return Compare(a, b) > 0 }

// TickFor picks a tick size from the price magnitude when the real
// exchange filter is unknown. Majors quote in cents, small alts need
// finer steps.
func TickFor(price float64) float64 {
	switch {
	case price >= 100:
		return 0.01
	case price >= 1:
		return 0.0001
	default:
		return 1e-6
	}
}

// RoundToTick snaps a price to the exchange tick size. Tick 0 returns the
// price unchanged.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 || price <= 0 {
		return price
	}
	p := fromFloat(price)
	t := fromFloat(tick)
	steps := p.Div(t).Round(0)
	out, _ := steps.Mul(t).Float64()
	return out
}

// RoundQuantity truncates a position size to the given number of decimal
// places; exchanges reject oversized precision rather than rounding.
func RoundQuantity(qty float64, places int32) float64 {
	if qty <= 0 {
		return 0
	}
	out, _ := fromFloat(qty).RoundDown(places).Float64()
	return out
}
