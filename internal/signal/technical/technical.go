// Package technical derives trading signals from indicator confluence:
// RSI extremes, MACD crossovers, Bollinger band position and EMA trend,
// combined with fixed weights into one confidence score.
package technical

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"kairos/internal/market"
	"kairos/internal/pkg/pricing"
	"kairos/internal/signal"
)

// Settings control indicator periods and the weight of each vote.
type Settings struct {
	RSIPeriod      int
	RSIOversold    float64
	RSIOverbought  float64
	EMAFast        int
	EMASlow        int
	BollingerLen   int
	ATRPeriod      int
	ATRStopMult    float64
	ATRTakeMult    float64
	WeightRSI      float64
	WeightMACD     float64
	WeightBoll     float64
	WeightEMATrend float64
}

func (s Settings) withDefaults() Settings {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.RSIOversold <= 0 {
		s.RSIOversold = 30
	}
	if s.RSIOverbought <= 0 {
		s.RSIOverbought = 70
	}
	if s.EMAFast <= 0 {
		s.EMAFast = 21
	}
	if s.EMASlow <= 0 {
		s.EMASlow = 50
	}
	if s.BollingerLen <= 0 {
		s.BollingerLen = 20
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = 14
	}
	if s.ATRStopMult <= 0 {
		s.ATRStopMult = 1.5
	}
	if s.ATRTakeMult <= 0 {
		s.ATRTakeMult = 3.0
	}
	if s.WeightRSI <= 0 {
		s.WeightRSI = 0.4
	}
	if s.WeightMACD <= 0 {
		s.WeightMACD = 0.3
	}
	if s.WeightBoll <= 0 {
		s.WeightBoll = 0.2
	}
	if s.WeightEMATrend <= 0 {
		s.WeightEMATrend = 0.1
	}
	return s
}

// Source is a deterministic, pure signal source.
type Source struct {
	settings Settings
}

func New(settings Settings) *Source {
	return &Source{settings: settings.withDefaults()}
}

func (s *Source) Name() string { return "technical" }

func (s *Source) Evaluate(_ context.Context, symbol string, history []market.Candle) (signal.Signal, error) {
	cfg := s.settings
	minLen := maxInt(cfg.EMASlow, cfg.BollingerLen, cfg.RSIPeriod+1, cfg.ATRPeriod+1, 35)
	if len(history) < minLen {
		return signal.Signal{}, fmt.Errorf("need at least %d candles, got %d", minLen, len(history))
	}
	closes := market.Closes(history)
	highs := market.Highs(history)
	lows := market.Lows(history)
	last := len(closes) - 1
	price := closes[last]

	var buyScore, sellScore float64
	var reasons []string

	rsi := talib.Rsi(closes, cfg.RSIPeriod)
	switch {
	case rsi[last] <= cfg.RSIOversold:
		buyScore += cfg.WeightRSI
		reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", rsi[last]))
	case rsi[last] >= cfg.RSIOverbought:
		sellScore += cfg.WeightRSI
		reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", rsi[last]))
	}

	macd, macdSignal, _ := talib.Macd(closes, 12, 26, 9)
	if last >= 1 {
		crossedUp := macd[last-1] <= macdSignal[last-1] && macd[last] > macdSignal[last]
		crossedDown := macd[last-1] >= macdSignal[last-1] && macd[last] < macdSignal[last]
		if crossedUp {
			buyScore += cfg.WeightMACD
			reasons = append(reasons, "MACD bullish crossover")
		} else if crossedDown {
			sellScore += cfg.WeightMACD
			reasons = append(reasons, "MACD bearish crossover")
		}
	}

	upper, _, lower := talib.BBands(closes, cfg.BollingerLen, 2, 2, talib.SMA)
	switch {
	case price <= lower[last]:
		buyScore += cfg.WeightBoll
		reasons = append(reasons, "price at lower Bollinger band")
	case price >= upper[last]:
		sellScore += cfg.WeightBoll
		reasons = append(reasons, "price at upper Bollinger band")
	}

	emaFast := talib.Ema(closes, cfg.EMAFast)
	emaSlow := talib.Ema(closes, cfg.EMASlow)
	if emaFast[last] > emaSlow[last] {
		buyScore += cfg.WeightEMATrend
		reasons = append(reasons, "EMA fast above slow")
	} else if emaFast[last] < emaSlow[last] {
		sellScore += cfg.WeightEMATrend
		reasons = append(reasons, "EMA fast below slow")
	}

	action := signal.Hold
	confidence := 0.0
	switch {
	case buyScore > sellScore:
		action, confidence = signal.Buy, buyScore
	case sellScore > buyScore:
		action, confidence = signal.Sell, sellScore
	}
	if action == signal.Hold {
		return signal.HoldSignal(symbol, math.Max(buyScore, sellScore)), nil
	}

	atr := talib.Atr(highs, lows, closes, cfg.ATRPeriod)
	dist := atr[last]
	if dist <= 0 {
		return signal.HoldSignal(symbol, confidence), nil
	}
	stop := price - cfg.ATRStopMult*dist
	take := price + cfg.ATRTakeMult*dist
	if action == signal.Sell {
		stop = price + cfg.ATRStopMult*dist
		take = price - cfg.ATRTakeMult*dist
	}
	tick := pricing.TickFor(price)
	stop = pricing.RoundToTick(stop, tick)
	take = pricing.RoundToTick(take, tick)
	if pricing.LTE(stop, 0) || pricing.LTE(take, 0) {
		return signal.HoldSignal(symbol, confidence), nil
	}

	return signal.New(signal.Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		EntryPrice: price,
		StopLoss:   stop,
		TakeProfit: take,
		Reasons:    reasons,
	})
}

func maxInt(vals ...int) int {
	out := 0
	for _, v := range vals {
		if v > out {
			out = v
		}
	}
	return out
}
