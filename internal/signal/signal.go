// Package signal defines the trading signal record produced by all
// signal sources (technical or AI) and consumed by the backtest engine.
package signal

import (
	"context"
	"fmt"
	"strings"

	"kairos/internal/market"
	"kairos/internal/pkg/pricing"
)

type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// ParseAction normalizes common model spellings (long/short/wait) onto
// the three canonical actions.
func ParseAction(raw string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "OPEN_LONG":
		return Buy, nil
	case "SELL", "SHORT", "OPEN_SHORT":
		return Sell, nil
	case "HOLD", "WAIT", "NONE", "":
		return Hold, nil
	default:
		return Hold, fmt.Errorf("unknown action %q", raw)
	}
}

// Signal is one evaluation result. EntryPrice/StopLoss/TakeProfit are
// required whenever Action is not Hold; New enforces the bracket ordering
// per side. Signals are produced fresh per evaluation step and never
// persisted by the engine itself.
type Signal struct {
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	EntryPrice float64  `json:"entry_price,omitempty"`
	StopLoss   float64  `json:"stop_loss,omitempty"`
	TakeProfit float64  `json:"take_profit,omitempty"`
	Timeframe  string   `json:"timeframe,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
}

// HoldSignal is the well-formed no-op signal.
func HoldSignal(symbol string, confidence float64) Signal {
	return Signal{Symbol: symbol, Action: Hold, Confidence: clamp01(confidence)}
}

// New validates a signal at construction. A Hold signal carries no price
// levels; Buy requires stop < entry < take, Sell the reverse.
func New(s Signal) (Signal, error) {
	s.Confidence = clamp01(s.Confidence)
	switch s.Action {
	case Hold:
		s.EntryPrice, s.StopLoss, s.TakeProfit = 0, 0, 0
		return s, nil
	case Buy, Sell:
	default:
		return Signal{}, fmt.Errorf("invalid action %q", s.Action)
	}
	if s.EntryPrice <= 0 || s.StopLoss <= 0 || s.TakeProfit <= 0 {
		return Signal{}, fmt.Errorf("%s signal requires entry/stop/take prices", s.Action)
	}
	if s.Action == Buy {
		if !pricing.LT(s.StopLoss, s.EntryPrice) || !pricing.LT(s.EntryPrice, s.TakeProfit) {
			return Signal{}, fmt.Errorf("buy bracket must satisfy stop < entry < take (%.8f / %.8f / %.8f)",
				s.StopLoss, s.EntryPrice, s.TakeProfit)
		}
	} else {
		if !pricing.GT(s.StopLoss, s.EntryPrice) || !pricing.GT(s.EntryPrice, s.TakeProfit) {
			return Signal{}, fmt.Errorf("sell bracket must satisfy take < entry < stop (%.8f / %.8f / %.8f)",
				s.TakeProfit, s.EntryPrice, s.StopLoss)
		}
	}
	return s, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Source produces one signal for a price-history prefix. The last candle
// of history is the current evaluation candle. Implementations may block
// on network I/O; the engine calls Evaluate strictly sequentially.
type Source interface {
	Evaluate(ctx context.Context, symbol string, history []market.Candle) (Signal, error)
	Name() string
}
