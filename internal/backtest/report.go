package backtest

import (
	"encoding/json"
	"math"
)

// Report is the structured result handed to presentation layers. Closed
// trades are ordered by exit time; still-open trades (when CloseAtEnd is
// disabled) appear in OpenTrades but contribute to no metric.
type Report struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalPnL       float64 `json:"total_pnl"`
	ReturnPct      float64 `json:"return_pct"`
	BuyHoldPct     float64 `json:"buy_hold_pct"`

	TotalTrades   int `json:"total_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`
	OpenTrades    int `json:"open_trades"`

	StepsEvaluated   int `json:"steps_evaluated"`
	StepsFailed      int `json:"steps_failed"`
	SignalsGenerated int `json:"signals_generated"` // non-HOLD signals seen

	WinRate      float64 `json:"win_rate"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	ProfitFactor float64 `json:"profit_factor"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	AvgHoldingMs  int64   `json:"avg_holding_ms"`

	Trades []Trade       `json:"trades"`
	Equity []EquityPoint `json:"equity"`
}

// MarshalJSON clamps the non-finite metric sentinels (a loss-free run has
// +Inf profit factor) so the report survives encoding/json.
func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	out := alias(*r)
	out.ProfitFactor = finite(out.ProfitFactor)
	out.CalmarRatio = finite(out.CalmarRatio)
	return json.Marshal(out)
}

const metricClamp = 1e12

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > metricClamp:
		return metricClamp
	case v < -metricClamp:
		return -metricClamp
	}
	return v
}

func buildReport(cfg Config, tracker *Tracker, candles firstLast, stepsEvaluated, stepsFailed, signalsGenerated int) *Report {
	closed := tracker.ClosedTrades()
	all := tracker.Trades()
	equity := tracker.Equity()

	rep := &Report{
		Symbol:           cfg.Symbol,
		Timeframe:        cfg.Timeframe,
		InitialCapital:   tracker.InitialCapital(),
		FinalCapital:     tracker.Capital(),
		TotalTrades:      len(closed),
		OpenTrades:       len(all) - len(closed),
		StepsEvaluated:   stepsEvaluated,
		StepsFailed:      stepsFailed,
		SignalsGenerated: signalsGenerated,
		WinRate:          WinRate(closed),
		MaxDrawdown:      MaxDrawdown(equity),
		SharpeRatio:      SharpeRatio(equity, cfg.RiskFreeRate),
		ProfitFactor:     ProfitFactor(closed),
		CalmarRatio:      CalmarRatio(equity),
		Trades:           closed,
		Equity:           equity,
	}
	var holding int64
	for _, t := range closed {
		rep.TotalPnL += t.PnL
		holding += t.ExitTime - t.EntryTime
		switch {
		case t.PnL > 0:
			rep.WinningTrades++
			rep.AvgWin += t.PnL
			if t.PnL > rep.LargestWin {
				rep.LargestWin = t.PnL
			}
		case t.PnL < 0:
			rep.LosingTrades++
			rep.AvgLoss += t.PnL
			if t.PnL < rep.LargestLoss {
				rep.LargestLoss = t.PnL
			}
		default:
			rep.LosingTrades++
		}
	}
	if rep.WinningTrades > 0 {
		rep.AvgWin /= float64(rep.WinningTrades)
	}
	if lossCount := rep.LosingTrades; lossCount > 0 {
		rep.AvgLoss /= float64(lossCount)
	}
	if len(closed) > 0 {
		rep.AvgHoldingMs = holding / int64(len(closed))
	}
	if rep.InitialCapital > 0 {
		rep.ReturnPct = rep.TotalPnL / rep.InitialCapital
	}
	if candles.firstClose > 0 {
		rep.BuyHoldPct = (candles.lastClose - candles.firstClose) / candles.firstClose
	}
	return rep
}

type firstLast struct {
	firstClose float64
	lastClose  float64
}
