package backtest

import "math"

// Metric helpers are pure functions over closed trades and the equity
// curve. Every edge case resolves to a defined sentinel instead of NaN:
// empty inputs produce 0, a loss-free run produces +Inf profit factor.

const periodsPerYear = 252

// WinRate is the share of closed trades with positive PnL.
func WinRate(closed []Trade) float64 {
	if len(closed) == 0 {
		return 0
	}
	wins := 0
	for _, t := range closed {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(closed))
}

// MaxDrawdown returns the deepest peak-to-trough decline of the equity
// curve as a non-positive fraction of the peak.
func MaxDrawdown(equity []EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0].Capital
	minDD := 0.0
	for _, p := range equity {
		if p.Capital > peak {
			peak = p.Capital
		}
		if peak <= 0 {
			continue
		}
		dd := (p.Capital - peak) / peak
		if dd < minDD {
			minDD = dd
		}
	}
	return minDD
}

// SharpeRatio annualizes the mean excess return between consecutive
// equity points over its sample standard deviation.
func SharpeRatio(equity []EquityPoint, riskFreeRate float64) float64 {
	returns := pctReturns(equity)
	if len(returns) < 2 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeRate/periodsPerYear
	}
	m := mean(excess)
	sd := sampleStd(excess, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(periodsPerYear)
}

// ProfitFactor is gross winning PnL over gross losing PnL. No losers and
// at least one winner yields +Inf; no trades at all yields 0.
func ProfitFactor(closed []Trade) float64 {
	if len(closed) == 0 {
		return 0
	}
	var wins, losses float64
	for _, t := range closed {
		if t.PnL > 0 {
			wins += t.PnL
		} else if t.PnL < 0 {
			losses += t.PnL
		}
	}
	if losses == 0 {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return math.Abs(wins) / math.Abs(losses)
}

// CalmarRatio is the annualized return over the absolute max drawdown.
func CalmarRatio(equity []EquityPoint) float64 {
	dd := MaxDrawdown(equity)
	if dd == 0 || len(equity) < 2 {
		return 0
	}
	initial := equity[0].Capital
	if initial <= 0 {
		return 0
	}
	totalReturn := (equity[len(equity)-1].Capital - initial) / initial
	periods := len(equity) - 1
	annual := totalReturn / (float64(periods) / periodsPerYear)
	return annual / math.Abs(dd)
}

func pctReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Capital
		if prev == 0 {
			continue
		}
		out = append(out, (equity[i].Capital-prev)/prev)
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sampleStd(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
