// Package report renders finished backtest results as terminal text,
// interactive HTML charts and PNG snapshots.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kairos/internal/backtest"
	"kairos/internal/logger"
)

// Render formats a report as an aligned text block.
func Render(rep *backtest.Report) string {
	if rep == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "==== Backtest %s %s ====\n", rep.Symbol, rep.Timeframe)
	fmt.Fprintf(&b, "Capital        %.2f -> %.2f (%+.2f%%)\n", rep.InitialCapital, rep.FinalCapital, rep.ReturnPct*100)
	fmt.Fprintf(&b, "Buy & hold     %+.2f%%\n", rep.BuyHoldPct*100)
	fmt.Fprintf(&b, "Trades         %d closed (%d win / %d loss), %d still open\n",
		rep.TotalTrades, rep.WinningTrades, rep.LosingTrades, rep.OpenTrades)
	fmt.Fprintf(&b, "Win rate       %.1f%%\n", rep.WinRate*100)
	fmt.Fprintf(&b, "Max drawdown   %.2f%%\n", rep.MaxDrawdown*100)
	fmt.Fprintf(&b, "Sharpe         %.3f\n", rep.SharpeRatio)
	fmt.Fprintf(&b, "Profit factor  %s\n", formatProfitFactor(rep.ProfitFactor))
	fmt.Fprintf(&b, "Calmar         %.3f\n", rep.CalmarRatio)
	if rep.TotalTrades > 0 {
		fmt.Fprintf(&b, "Avg win/loss   %+.2f / %+.2f\n", rep.AvgWin, rep.AvgLoss)
		fmt.Fprintf(&b, "Largest        %+.2f / %+.2f\n", rep.LargestWin, rep.LargestLoss)
		fmt.Fprintf(&b, "Avg holding    %s\n", time.Duration(rep.AvgHoldingMs)*time.Millisecond)
	}
	fmt.Fprintf(&b, "Evaluations    %d steps, %d failed, %d signals\n",
		rep.StepsEvaluated, rep.StepsFailed, rep.SignalsGenerated)
	return b.String()
}

// Print logs the report as one multi-line block.
func Print(rep *backtest.Report) {
	if rep == nil {
		return
	}
	logger.InfoBlock(Render(rep))
}

func formatProfitFactor(v float64) string {
	if math.IsInf(v, 1) {
		return "inf (no losing trades)"
	}
	return fmt.Sprintf("%.3f", v)
}
