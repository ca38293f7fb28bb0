package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/internal/signal"
)

func buySignal(entry, stop, take, conf float64) signal.Signal {
	sig, err := signal.New(signal.Signal{
		Symbol:     "BTCUSDT",
		Action:     signal.Buy,
		Confidence: conf,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: take,
	})
	if err != nil {
		panic(err)
	}
	return sig
}

func sellSignal(entry, stop, take, conf float64) signal.Signal {
	sig, err := signal.New(signal.Signal{
		Symbol:     "BTCUSDT",
		Action:     signal.Sell,
		Confidence: conf,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: take,
	})
	if err != nil {
		panic(err)
	}
	return sig
}

func TestTracker_OpenTradeSizing(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)
	tr.MarkStart(1000)

	trade := tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)
	require.NotNil(t, trade)

	// qty = capital * riskFraction / |entry - stop| = 10000*0.02/2
	assert.InDelta(t, 100.0, trade.Quantity, 1e-9)
	assert.Equal(t, TradeOpen, trade.Status)
	assert.True(t, tr.HasOpen())
}

func TestTracker_SizingTruncatesQuantityPrecision(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)
	tr.MarkStart(1000)

	// 10000*0.02/3 = 66.6666... truncated at six decimals
	trade := tr.OpenTrade(buySignal(100, 97, 106, 0.8), 100, 2000)
	require.NotNil(t, trade)
	assert.InDelta(t, 66.666666, trade.Quantity, 1e-9)
	assert.Less(t, trade.Quantity, 10000*0.02/3.0, "truncated, not rounded up")
}

func TestTracker_SinglePositionPolicy(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)

	first := tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)
	require.NotNil(t, first)

	second := tr.OpenTrade(buySignal(101, 99, 107, 0.9), 101, 3000)
	assert.Nil(t, second, "second entry must be blocked while a position is open")
	assert.Len(t, tr.Trades(), 1)
}

func TestTracker_DegenerateStopRejected(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)

	sig := signal.Signal{
		Symbol:     "BTCUSDT",
		Action:     signal.Buy,
		Confidence: 0.8,
		EntryPrice: 100,
		StopLoss:   100,
		TakeProfit: 106,
	}
	trade := tr.OpenTrade(sig, 100, 2000)
	assert.Nil(t, trade)
	assert.False(t, tr.HasOpen())
}

func TestTracker_HoldNeverOpens(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)
	trade := tr.OpenTrade(signal.HoldSignal("BTCUSDT", 0.9), 100, 2000)
	assert.Nil(t, trade)
}

func TestTracker_BuyExits(t *testing.T) {
	t.Run("take profit", func(t *testing.T) {
		tr := NewTracker("BTCUSDT", 10000, 0.02)
		tr.MarkStart(1000)
		tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)

		assert.Empty(t, tr.CheckExits(103, 3000), "price inside the bracket holds the position")

		closed := tr.CheckExits(107, 4000)
		require.Len(t, closed, 1)
		assert.Equal(t, TradeTakeProfit, closed[0].Status)
		assert.InDelta(t, 700.0, closed[0].PnL, 1e-9) // (107-100)*100
		assert.InDelta(t, 10700.0, tr.Capital(), 1e-9)
		assert.False(t, tr.HasOpen())
	})

	t.Run("stop loss", func(t *testing.T) {
		tr := NewTracker("BTCUSDT", 10000, 0.02)
		tr.MarkStart(1000)
		tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)

		closed := tr.CheckExits(97, 3000)
		require.Len(t, closed, 1)
		assert.Equal(t, TradeStopped, closed[0].Status)
		assert.InDelta(t, -300.0, closed[0].PnL, 1e-9)
		assert.InDelta(t, 9700.0, tr.Capital(), 1e-9)
	})

	t.Run("exact stop touch triggers", func(t *testing.T) {
		tr := NewTracker("BTCUSDT", 10000, 0.02)
		tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)

		closed := tr.CheckExits(98, 3000)
		require.Len(t, closed, 1)
		assert.Equal(t, TradeStopped, closed[0].Status)
	})
}

func TestTracker_SellExits(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)
	tr.MarkStart(1000)
	tr.OpenTrade(sellSignal(100, 103, 94, 0.8), 100, 2000)

	closed := tr.CheckExits(93, 3000)
	require.Len(t, closed, 1)
	assert.Equal(t, TradeTakeProfit, closed[0].Status)
	assert.Greater(t, closed[0].PnL, 0.0)
}

func TestTracker_CloseAll(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)
	tr.MarkStart(1000)
	tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)

	closed := tr.CloseAll(102, 5000)
	require.Len(t, closed, 1)
	assert.Equal(t, TradeClosed, closed[0].Status)
	assert.InDelta(t, 200.0, closed[0].PnL, 1e-9)
	assert.Empty(t, tr.CloseAll(102, 6000), "flattening twice is a no-op")
}

func TestTracker_CapitalIdentity(t *testing.T) {
	tr := NewTracker("BTCUSDT", 10000, 0.02)
	tr.MarkStart(1000)

	tr.OpenTrade(buySignal(100, 98, 106, 0.8), 100, 2000)
	tr.CheckExits(107, 3000)
	tr.OpenTrade(buySignal(107, 105, 113, 0.8), 107, 4000)
	tr.CheckExits(104, 5000)

	var total float64
	for _, trade := range tr.ClosedTrades() {
		total += trade.PnL
	}
	assert.InDelta(t, tr.InitialCapital()+total, tr.Capital(), 1e-9)

	// equity curve: start point plus one point per closure
	equity := tr.Equity()
	require.Len(t, equity, 3)
	assert.InDelta(t, tr.Capital(), equity[len(equity)-1].Capital, 1e-9)
}
