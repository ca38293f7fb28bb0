package backtest

import (
	"context"
	"fmt"
	"time"

	"kairos/internal/logger"
	"kairos/internal/market"
	"kairos/internal/signal"
)

// Config holds run-level parameters. Zero values fall back to the
// defaults the rest of the tool uses.
type Config struct {
	Symbol    string
	Timeframe string

	InitialCapital      float64
	ConfidenceThreshold float64
	Warmup              int
	RiskFraction        float64
	RiskFreeRate        float64

	// EvalEvery resamples the evaluation points for expensive signal
	// sources (AI queries): signals are requested only once per interval
	// and no position changes occur between evaluation points. Zero
	// evaluates every candle.
	EvalEvery time.Duration

	// CloseAtEnd liquidates a still-open position at the last close so
	// the report accounts for it; off by default so open trades survive
	// the run.
	CloseAtEnd bool
}

func (c Config) withDefaults() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = 10000
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.Warmup <= 0 {
		c.Warmup = 50
	}
	if c.RiskFraction <= 0 {
		c.RiskFraction = 0.02
	}
	if c.RiskFreeRate <= 0 {
		c.RiskFreeRate = 0.02
	}
	return c
}

// Engine replays a candle series step by step against a signal source.
// One Engine drives one run and owns one Tracker; runs never share state.
type Engine struct {
	cfg     Config
	tracker *Tracker
}

func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if cfg.RiskFraction > 1 {
		return nil, fmt.Errorf("risk fraction %v exceeds 1", cfg.RiskFraction)
	}
	if cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold %v exceeds 1", cfg.ConfidenceThreshold)
	}
	return &Engine{
		cfg:     cfg,
		tracker: NewTracker(cfg.Symbol, cfg.InitialCapital, cfg.RiskFraction),
	}, nil
}

// Run replays candles in strictly increasing time order. The loop is
// sequential by contract: tracker state from step i is a precondition
// for step i+1, so signal calls are never pipelined. A failing signal
// evaluation is logged and treated as HOLD; cancellation between steps
// returns the partial report together with the context error.
func (e *Engine) Run(ctx context.Context, candles []market.Candle, src signal.Source) (*Report, error) {
	if err := market.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("candle series invalid: %w", err)
	}
	if len(candles) <= e.cfg.Warmup {
		return nil, fmt.Errorf("need more than %d candles for warmup, got %d", e.cfg.Warmup, len(candles))
	}
	if src == nil {
		return nil, fmt.Errorf("signal source cannot be nil")
	}

	e.tracker.MarkStart(candles[e.cfg.Warmup].OpenTime)

	var (
		stepsEvaluated   int
		stepsFailed      int
		signalsGenerated int
		runErr           error
		nextEval         int64 // ms timestamp of the next evaluation point
	)

loop:
	for i := e.cfg.Warmup; i < len(candles); i++ {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}
		candle := candles[i]
		if e.cfg.EvalEvery > 0 {
			if candle.CloseTime < nextEval {
				continue
			}
			nextEval = candle.CloseTime + e.cfg.EvalEvery.Milliseconds()
		}

		history := candles[:i+1]
		stepsEvaluated++
		sig, err := src.Evaluate(ctx, e.cfg.Symbol, history)
		if err != nil {
			stepsFailed++
			logger.Warnf("[backtest] %s step %d signal evaluation failed, treating as HOLD: %v", e.cfg.Symbol, i, err)
			sig = signal.HoldSignal(e.cfg.Symbol, 0)
		}
		if sig.Action != signal.Hold {
			signalsGenerated++
		}
		if (sig.Action == signal.Buy || sig.Action == signal.Sell) && sig.Confidence > e.cfg.ConfidenceThreshold {
			e.tracker.OpenTrade(sig, candle.Close, candle.CloseTime)
		}
		// Exit conditions run every evaluated step regardless of entry.
		e.tracker.CheckExits(candle.Close, candle.CloseTime)
	}

	if e.cfg.CloseAtEnd && e.tracker.HasOpen() {
		last := candles[len(candles)-1]
		e.tracker.CloseAll(last.Close, last.CloseTime)
	}

	rep := buildReport(e.cfg, e.tracker, firstLast{
		firstClose: candles[e.cfg.Warmup].Close,
		lastClose:  candles[len(candles)-1].Close,
	}, stepsEvaluated, stepsFailed, signalsGenerated)
	return rep, runErr
}

// Tracker exposes the run's tracker for inspection in tests and the
// service layer.
func (e *Engine) Tracker() *Tracker { return e.tracker }
