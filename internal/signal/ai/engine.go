package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/tidwall/gjson"

	"kairos/internal/logger"
	"kairos/internal/market"
	"kairos/internal/pkg/jsonutil"
	"kairos/internal/signal"
)

const systemPrompt = `You are a professional cryptocurrency trading analyst.
Given recent candle data and indicator readings, decide whether to open a
position. Reply with a short reasoning paragraph followed by exactly one
JSON object:

{"action": "BUY"|"SELL"|"HOLD", "confidence": 0.0-1.0,
 "entry_price": number, "stop_loss": number, "take_profit": number,
 "reasoning": "one sentence"}

For BUY the stop_loss must be below entry_price and take_profit above it;
for SELL the reverse. For HOLD omit the price fields.`

// Engine is a signal source backed by a chat model. Each evaluation sends
// a candle summary and parses the JSON object out of the reply.
type Engine struct {
	Provider       ModelProvider
	Timeframe      string
	TimeoutSeconds int
	SummaryCandles int
	Observer       Observer
}

func (e *Engine) Name() string {
	if e.Provider != nil {
		return "ai:" + e.Provider.ID()
	}
	return "ai"
}

func (e *Engine) Evaluate(ctx context.Context, symbol string, history []market.Candle) (signal.Signal, error) {
	if e.Provider == nil || !e.Provider.Enabled() {
		return signal.Signal{}, fmt.Errorf("no enabled model provider")
	}
	if len(history) == 0 {
		return signal.Signal{}, fmt.Errorf("empty history")
	}
	user := e.buildUserSummary(symbol, history)

	cctx := ctx
	if e.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, time.Duration(e.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()
	raw, err := e.Provider.Call(cctx, systemPrompt, user)
	e.observe(ctx, symbol, history[len(history)-1].CloseTime, user, raw, err, time.Since(started))
	if err != nil {
		return signal.Signal{}, fmt.Errorf("model %s: %w", e.Provider.ID(), err)
	}

	payload, offset, ok := jsonutil.ExtractObjectWithOffset(raw)
	if !ok {
		snippet := raw
		if len(snippet) > 160 {
			snippet = snippet[:160] + "..."
		}
		logger.Warnf("model %s reply had no JSON object, snippet: %q", e.Provider.ID(), snippet)
		return signal.Signal{}, fmt.Errorf("no JSON object in model reply")
	}
	if cot := strings.TrimSpace(raw[:offset]); cot != "" {
		if len(cot) > 2000 {
			cot = cot[:2000] + "..."
		}
		logger.Debugf("model %s reasoning: %s", e.Provider.ID(), cot)
	}
	if err := validateReply(payload); err != nil {
		return signal.Signal{}, err
	}
	logger.Debugf("model %s payload:\n%s", e.Provider.ID(), jsonutil.Pretty(payload))
	return e.toSignal(symbol, payload)
}

// ForTimeframe returns a copy of the engine whose prompts and signals
// carry the run's candle timeframe. The provider and observer are shared.
func (e *Engine) ForTimeframe(timeframe string) signal.Source {
	clone := *e
	clone.Timeframe = timeframe
	return &clone
}

// toSignal maps the validated JSON object onto a signal, normalizing the
// action spelling and enforcing bracket ordering via the constructor.
func (e *Engine) toSignal(symbol, payload string) (signal.Signal, error) {
	parsed := gjson.Parse(payload)
	action, err := signal.ParseAction(parsed.Get("action").String())
	if err != nil {
		return signal.Signal{}, err
	}
	confidence := parsed.Get("confidence").Float()
	if action == signal.Hold {
		return signal.HoldSignal(symbol, confidence), nil
	}
	return signal.New(signal.Signal{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		EntryPrice: parsed.Get("entry_price").Float(),
		StopLoss:   parsed.Get("stop_loss").Float(),
		TakeProfit: parsed.Get("take_profit").Float(),
		Timeframe:  e.Timeframe,
		Reasoning:  parsed.Get("reasoning").String(),
	})
}

// buildUserSummary renders the latest candles plus a small indicator
// digest, keeping the prompt bounded regardless of history length.
func (e *Engine) buildUserSummary(symbol string, history []market.Candle) string {
	n := e.SummaryCandles
	if n <= 0 {
		n = 30
	}
	if n > len(history) {
		n = len(history)
	}
	window := history[len(history)-n:]
	closes := market.Closes(history)
	last := window[len(window)-1]

	header := symbol
	if e.Timeframe != "" {
		header += " " + e.Timeframe
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s market snapshot\n\n", header)
	fmt.Fprintf(&b, "Current close: %.6f at %d\n", last.Close, last.CloseTime)
	b.WriteString("Recent candles (open_time, open, high, low, close, volume):\n")
	for _, c := range window {
		fmt.Fprintf(&b, "%d, %.6f, %.6f, %.6f, %.6f, %.3f\n",
			c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	if len(closes) >= 35 {
		lastIdx := len(closes) - 1
		ema20 := talib.Ema(closes, 20)[lastIdx]
		rsi14 := talib.Rsi(closes, 14)[lastIdx]
		macd, macdSig, _ := talib.Macd(closes, 12, 26, 9)
		fmt.Fprintf(&b, "\nIndicators: EMA20=%.4f RSI14=%.2f MACD=%.4f signal=%.4f\n",
			ema20, rsi14, macd[lastIdx], macdSig[lastIdx])
	}
	b.WriteString("\nReply with reasoning then exactly one JSON object as specified.\n")
	return b.String()
}

func (e *Engine) observe(ctx context.Context, symbol string, candleTS int64, prompt, raw string, err error, latency time.Duration) {
	if e.Observer == nil {
		return
	}
	rec := CallRecord{
		RunID:      signal.RunIDFromContext(ctx),
		ProviderID: e.Provider.ID(),
		Symbol:     symbol,
		CandleTS:   candleTS,
		Prompt:     prompt,
		Raw:        raw,
		LatencyMs:  latency.Milliseconds(),
	}
	if err != nil {
		rec.Err = err.Error()
	}
	e.Observer.Observe(rec)
}
