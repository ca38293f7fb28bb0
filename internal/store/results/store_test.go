package results

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/internal/backtest"
	"kairos/internal/signal"
	"kairos/internal/signal/ai"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun() backtest.Run {
	return backtest.Run{
		ID:        "run-1",
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Source:    "technical",
		Status:    backtest.RunStatusPending,
		StartTS:   3_600_000,
		EndTS:     36_000_000,
		Config:    backtest.Config{InitialCapital: 10000},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func sampleReport() *backtest.Report {
	return &backtest.Report{
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		InitialCapital: 10000,
		FinalCapital:   10700,
		TotalPnL:       700,
		TotalTrades:    1,
		WinningTrades:  1,
		WinRate:        1,
		ProfitFactor:   math.Inf(1),
		Trades: []backtest.Trade{
			{
				ID: 1, Symbol: "BTCUSDT", Action: signal.Buy,
				EntryTime: 7_200_000, ExitTime: 10_800_000,
				EntryPrice: 100, ExitPrice: 107, Quantity: 100,
				StopLoss: 98, TakeProfit: 106, PnL: 700,
				Confidence: 0.8, Status: backtest.TradeTakeProfit,
			},
		},
		Equity: []backtest.EquityPoint{
			{TS: 3_600_000, Capital: 10000},
			{TS: 10_800_000, Capital: 10700},
		},
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, sampleRun()))
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", backtest.RunStatusRunning, "loading candles"))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, backtest.RunStatusRunning, got.Status)
	assert.Equal(t, "loading candles", got.Message)
	assert.Equal(t, "BTCUSDT", got.Symbol)
}

func TestStore_SaveReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, sampleRun()))
	require.NoError(t, store.SaveReport(ctx, "run-1", sampleReport()))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.InDelta(t, 10700.0, run.FinalCapital, 1e-9)
	assert.Equal(t, 1, run.TotalTrades)
	// +Inf profit factor lands as the clamp sentinel
	assert.InDelta(t, 1e12, run.ProfitFactor, 1e-3)
	assert.NotEmpty(t, run.ReportJSON)

	trades, err := store.TradesForRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "TAKE_PROFIT", trades[0].Status)
	assert.InDelta(t, 700.0, trades[0].PnL, 1e-9)

	equity, err := store.EquityForRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, equity, 2)
	assert.InDelta(t, 10700.0, equity[1].Capital, 1e-9)
}

func TestStore_SaveReportReplacesChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, sampleRun()))
	require.NoError(t, store.SaveReport(ctx, "run-1", sampleReport()))
	require.NoError(t, store.SaveReport(ctx, "run-1", sampleReport()))

	trades, err := store.TradesForRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, trades, 1, "resaving must not duplicate trades")
}

func TestStore_ListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := sampleRun()
	require.NoError(t, store.InsertRun(ctx, first))
	second := sampleRun()
	second.ID = "run-2"
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.InsertRun(ctx, second))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
}

func TestCallObserver(t *testing.T) {
	store := newTestStore(t)

	// one observer serves every run, so each record must carry its own run ID
	obs := &CallObserver{Store: store}
	obs.Observe(ai.CallRecord{
		RunID:      "run-1",
		ProviderID: "deepseek",
		Symbol:     "BTCUSDT",
		CandleTS:   3_600_000,
		Prompt:     "snapshot",
		Raw:        `{"action":"HOLD","confidence":0.2}`,
		LatencyMs:  120,
	})
	obs.Observe(ai.CallRecord{
		RunID:      "run-1",
		ProviderID: "deepseek",
		Symbol:     "BTCUSDT",
		CandleTS:   7_200_000,
		Err:        "request timed out",
	})
	obs.Observe(ai.CallRecord{
		RunID:      "run-2",
		ProviderID: "deepseek",
		Symbol:     "ETHUSDT",
		CandleTS:   3_600_000,
	})

	calls, err := store.CallsForRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "deepseek", calls[0].ProviderID)
	assert.Equal(t, "run-1", calls[0].RunID)
	assert.Equal(t, int64(3_600_000), calls[0].CandleTS)
	assert.Equal(t, "request timed out", calls[1].Err)

	other, err := store.CallsForRun(context.Background(), "run-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "ETHUSDT", other[0].Symbol)

	var nilObs *CallObserver
	assert.NotPanics(t, func() { nilObs.Observe(ai.CallRecord{}) })
}

func TestCallObserver_RunScopedFallback(t *testing.T) {
	store := newTestStore(t)

	obs := &CallObserver{Store: store, RunID: "run-9"}
	obs.Observe(ai.CallRecord{ProviderID: "deepseek", Symbol: "BTCUSDT", CandleTS: 3_600_000})

	calls, err := store.CallsForRun(context.Background(), "run-9")
	require.NoError(t, err)
	require.Len(t, calls, 1)
}
