package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWinRate(t *testing.T) {
	assert.Zero(t, WinRate(nil))

	closed := []Trade{
		{PnL: 100}, {PnL: -50}, {PnL: 30}, {PnL: -10},
	}
	assert.InDelta(t, 0.5, WinRate(closed), 1e-9)

	assert.InDelta(t, 1.0, WinRate([]Trade{{PnL: 1}}), 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		assert.Zero(t, MaxDrawdown(nil))
		assert.Zero(t, MaxDrawdown([]EquityPoint{{Capital: 100}}))
	})

	t.Run("monotonic rise has no drawdown", func(t *testing.T) {
		eq := []EquityPoint{{Capital: 100}, {Capital: 110}, {Capital: 120}}
		assert.Zero(t, MaxDrawdown(eq))
	})

	t.Run("deepest trough against latest peak", func(t *testing.T) {
		eq := []EquityPoint{
			{Capital: 100}, {Capital: 120}, {Capital: 90}, {Capital: 110}, {Capital: 99},
		}
		// trough 90 against peak 120
		assert.InDelta(t, -0.25, MaxDrawdown(eq), 1e-9)
	})

	t.Run("result is non-positive", func(t *testing.T) {
		eq := []EquityPoint{{Capital: 100}, {Capital: 95}, {Capital: 105}}
		assert.LessOrEqual(t, MaxDrawdown(eq), 0.0)
	})
}

func TestProfitFactor(t *testing.T) {
	assert.Zero(t, ProfitFactor(nil))

	t.Run("mixed", func(t *testing.T) {
		closed := []Trade{{PnL: 300}, {PnL: -100}, {PnL: 100}, {PnL: -100}}
		assert.InDelta(t, 2.0, ProfitFactor(closed), 1e-9)
	})

	t.Run("loss free run is infinite", func(t *testing.T) {
		closed := []Trade{{PnL: 50}, {PnL: 10}}
		assert.True(t, math.IsInf(ProfitFactor(closed), 1))
	})

	t.Run("all flat", func(t *testing.T) {
		closed := []Trade{{PnL: 0}, {PnL: 0}}
		assert.Zero(t, ProfitFactor(closed))
	})
}

func TestSharpeRatio(t *testing.T) {
	t.Run("too few points", func(t *testing.T) {
		assert.Zero(t, SharpeRatio(nil, 0.02))
		assert.Zero(t, SharpeRatio([]EquityPoint{{Capital: 100}, {Capital: 110}}, 0.02))
	})

	t.Run("constant equity", func(t *testing.T) {
		eq := []EquityPoint{{Capital: 100}, {Capital: 100}, {Capital: 100}}
		assert.Zero(t, SharpeRatio(eq, 0.02))
	})

	t.Run("steady gains score positive", func(t *testing.T) {
		eq := []EquityPoint{
			{Capital: 100}, {Capital: 103}, {Capital: 105}, {Capital: 109}, {Capital: 112},
		}
		assert.Greater(t, SharpeRatio(eq, 0.02), 0.0)
	})

	t.Run("steady losses score negative", func(t *testing.T) {
		eq := []EquityPoint{
			{Capital: 100}, {Capital: 97}, {Capital: 95}, {Capital: 91},
		}
		assert.Less(t, SharpeRatio(eq, 0.02), 0.0)
	})
}

func TestCalmarRatio(t *testing.T) {
	t.Run("no drawdown yields zero", func(t *testing.T) {
		eq := []EquityPoint{{Capital: 100}, {Capital: 110}}
		assert.Zero(t, CalmarRatio(eq))
	})

	t.Run("positive return over drawdown", func(t *testing.T) {
		eq := []EquityPoint{
			{Capital: 100}, {Capital: 120}, {Capital: 108}, {Capital: 130},
		}
		assert.Greater(t, CalmarRatio(eq), 0.0)
	})
}
