package backtest

import (
	"math"

	"kairos/internal/logger"
	"kairos/internal/pkg/pricing"
	"kairos/internal/signal"
)

type TradeStatus string

const (
	TradeOpen       TradeStatus = "OPEN"
	TradeClosed     TradeStatus = "CLOSED"
	TradeStopped    TradeStatus = "STOPPED"
	TradeTakeProfit TradeStatus = "TAKE_PROFIT"
)

// quantityPlaces bounds position size precision the way exchange lot
// filters do.
const quantityPlaces = 6

// Trade is one position lifecycle. Status moves OPEN -> CLOSED/STOPPED/
// TAKE_PROFIT exactly once; terminal states never transition again.
type Trade struct {
	ID         int           `json:"id"`
	Symbol     string        `json:"symbol"`
	Action     signal.Action `json:"action"` // Buy or Sell
	EntryTime  int64         `json:"entry_time"`
	ExitTime   int64         `json:"exit_time,omitempty"` // 0 until closed
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price,omitempty"`
	Quantity   float64       `json:"quantity"`
	StopLoss   float64       `json:"stop_loss"`
	TakeProfit float64       `json:"take_profit"`
	PnL        float64       `json:"pnl"`
	Confidence float64       `json:"confidence"`
	Status     TradeStatus   `json:"status"`
}

func (t *Trade) closed() bool { return t.Status != TradeOpen }

// EquityPoint is one sample of the capital ledger, appended at run start
// and after every trade closure.
type EquityPoint struct {
	TS      int64   `json:"ts"`
	Capital float64 `json:"capital"`
}

// Tracker owns the canonical trade list and the capital ledger for one
// backtest run. At most one trade per symbol is OPEN at a time; the
// engine never mutates a Trade directly.
type Tracker struct {
	symbol       string
	riskFraction float64

	initialCapital float64
	capital        float64

	trades []*Trade
	open   *Trade
	equity []EquityPoint
	nextID int
}

func NewTracker(symbol string, initialCapital, riskFraction float64) *Tracker {
	return &Tracker{
		symbol:         symbol,
		riskFraction:   riskFraction,
		initialCapital: initialCapital,
		capital:        initialCapital,
		nextID:         1,
	}
}

// MarkStart seeds the equity curve with the initial capital point.
func (t *Tracker) MarkStart(ts int64) {
	if len(t.equity) == 0 {
		t.equity = append(t.equity, EquityPoint{TS: ts, Capital: t.capital})
	}
}

// OpenTrade attempts entry at the given price. Returns nil when the
// single-position policy blocks the entry or the sizing is degenerate.
func (t *Tracker) OpenTrade(sig signal.Signal, price float64, ts int64) *Trade {
	if sig.Action != signal.Buy && sig.Action != signal.Sell {
		return nil
	}
	if t.open != nil {
		logger.Debugf("[tracker] %s: entry skipped, position %d still open", t.symbol, t.open.ID)
		return nil
	}
	dist := math.Abs(price - sig.StopLoss)
	if pricing.Compare(dist, 0) == 0 {
		logger.Warnf("[tracker] %s: degenerate sizing, stop loss equals entry price %.8f", t.symbol, price)
		return nil
	}
	// exchanges reject oversized quantity precision; truncate, never round up
	qty := pricing.RoundQuantity(t.capital*t.riskFraction/dist, quantityPlaces)
	if qty <= 0 {
		logger.Warnf("[tracker] %s: zero quantity at price %.8f", t.symbol, price)
		return nil
	}
	trade := &Trade{
		ID:         t.nextID,
		Symbol:     t.symbol,
		Action:     sig.Action,
		EntryTime:  ts,
		EntryPrice: price,
		Quantity:   qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Confidence: sig.Confidence,
		Status:     TradeOpen,
	}
	t.nextID++
	t.trades = append(t.trades, trade)
	t.open = trade
	logger.Debugf("[tracker] %s: opened %s #%d qty=%.6f entry=%.4f stop=%.4f take=%.4f",
		t.symbol, trade.Action, trade.ID, qty, price, trade.StopLoss, trade.TakeProfit)
	return trade
}

// CheckExits evaluates the open trade against the current price. The
// stop loss is checked before the take profit so a candle gapping across
// both brackets resolves as STOPPED.
func (t *Tracker) CheckExits(price float64, ts int64) []*Trade {
	trade := t.open
	if trade == nil {
		return nil
	}
	var status TradeStatus
	switch trade.Action {
	case signal.Buy:
		switch {
		case pricing.LTE(price, trade.StopLoss):
			status = TradeStopped
		case pricing.GTE(price, trade.TakeProfit):
			status = TradeTakeProfit
		}
	case signal.Sell:
		switch {
		case pricing.GTE(price, trade.StopLoss):
			status = TradeStopped
		case pricing.LTE(price, trade.TakeProfit):
			status = TradeTakeProfit
		}
	}
	if status == "" {
		return nil
	}
	t.close(trade, price, ts, status)
	return []*Trade{trade}
}

// CloseAll flattens the open position at the given price with status
// CLOSED (end-of-data liquidation).
func (t *Tracker) CloseAll(price float64, ts int64) []*Trade {
	trade := t.open
	if trade == nil {
		return nil
	}
	t.close(trade, price, ts, TradeClosed)
	return []*Trade{trade}
}

func (t *Tracker) close(trade *Trade, price float64, ts int64, status TradeStatus) {
	if trade.closed() {
		return
	}
	trade.ExitTime = ts
	trade.ExitPrice = price
	trade.Status = status
	if trade.Action == signal.Buy {
		trade.PnL = (price - trade.EntryPrice) * trade.Quantity
	} else {
		trade.PnL = (trade.EntryPrice - price) * trade.Quantity
	}
	t.capital += trade.PnL
	t.equity = append(t.equity, EquityPoint{TS: ts, Capital: t.capital})
	t.open = nil
	logger.Debugf("[tracker] %s: closed #%d %s pnl=%.4f capital=%.4f",
		t.symbol, trade.ID, status, trade.PnL, t.capital)
}

func (t *Tracker) Capital() float64        { return t.capital }
func (t *Tracker) InitialCapital() float64 { return t.initialCapital }
func (t *Tracker) HasOpen() bool           { return t.open != nil }

// Trades returns all trades, open and closed, in entry order.
func (t *Tracker) Trades() []Trade {
	out := make([]Trade, 0, len(t.trades))
	for _, tr := range t.trades {
		out = append(out, *tr)
	}
	return out
}

// ClosedTrades returns terminal trades in exit order.
func (t *Tracker) ClosedTrades() []Trade {
	out := make([]Trade, 0, len(t.trades))
	for _, tr := range t.trades {
		if tr.closed() {
			out = append(out, *tr)
		}
	}
	return out
}

// Equity returns a copy of the equity curve.
func (t *Tracker) Equity() []EquityPoint {
	return append([]EquityPoint(nil), t.equity...)
}
