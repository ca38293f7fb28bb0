package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"kairos/internal/logger"
	"kairos/internal/market"
	"kairos/internal/signal"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Recorder persists run lifecycle and results. Implemented by the
// results store; nil-safe wrappers keep the service usable without one.
type Recorder interface {
	InsertRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, id, status, message string) error
	SaveReport(ctx context.Context, id string, rep *Report) error
}

// CandleLoader supplies the candle series for a run (cache plus remote
// fetch is the gateway's concern).
type CandleLoader interface {
	Load(ctx context.Context, exchange, symbol, timeframe string, start, end int64) ([]market.Candle, error)
}

// ServiceConfig wires the run orchestrator.
type ServiceConfig struct {
	Loader        CandleLoader
	Recorder      Recorder
	Sources       map[string]signal.Source // keyed by RunRequest.Source
	DefaultSource string
	Defaults      Config

	// AIConfidenceThreshold replaces Defaults.ConfidenceThreshold for
	// the "ai" source; model confidence runs hotter than indicator
	// confluence so the bar is higher.
	AIConfidenceThreshold float64

	MaxConcurrent int
}

// Service validates requests, executes runs and enforces run-level
// parallelism: concurrent runs each own an Engine and Tracker, steps
// within a run stay strictly sequential.
type Service struct {
	loader        CandleLoader
	recorder      Recorder
	sources       map[string]signal.Source
	defaultSource string
	defaults      Config
	aiThreshold   float64
	sem           chan struct{}

	mu   sync.RWMutex
	runs map[string]*Run
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("candle loader cannot be nil")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one signal source is required")
	}
	defaultSource := cfg.DefaultSource
	if defaultSource == "" {
		for name := range cfg.Sources {
			defaultSource = name
			break
		}
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		loader:        cfg.Loader,
		recorder:      cfg.Recorder,
		sources:       cfg.Sources,
		defaultSource: defaultSource,
		defaults:      cfg.Defaults.withDefaults(),
		aiThreshold:   cfg.AIConfidenceThreshold,
		sem:           make(chan struct{}, maxConcurrent),
		runs:          make(map[string]*Run),
	}, nil
}

func (s *Service) resolve(req RunRequest) (RunRequest, signal.Source, Config, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return req, nil, Config{}, fmt.Errorf("symbol cannot be empty")
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Timeframe == "" {
		req.Timeframe = "1h"
	}
	tf, err := ParseTimeframe(req.Timeframe)
	if err != nil {
		return req, nil, Config{}, err
	}
	req.StartTS, req.EndTS = tf.AlignRange(req.StartTS, req.EndTS)
	if req.StartTS <= 0 || req.EndTS <= req.StartTS {
		return req, nil, Config{}, fmt.Errorf("invalid start/end range")
	}
	name := req.Source
	if name == "" {
		name = s.defaultSource
	}
	src, ok := s.sources[name]
	if !ok {
		return req, nil, Config{}, fmt.Errorf("unknown signal source %q", name)
	}
	if ta, ok := src.(signal.TimeframeAware); ok {
		src = ta.ForTimeframe(tf.Key)
	}
	req.Source = name

	cfg := s.defaults
	cfg.Symbol = req.Symbol
	cfg.Timeframe = tf.Key
	cfg.CloseAtEnd = req.CloseAtEnd
	if name == "ai" && s.aiThreshold > 0 {
		cfg.ConfidenceThreshold = s.aiThreshold
	}
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	if req.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = req.ConfidenceThreshold
	}
	if req.RiskFraction > 0 {
		cfg.RiskFraction = req.RiskFraction
	}
	if req.EvalStep != "" {
		step, err := ParseTimeframe(req.EvalStep)
		if err != nil {
			return req, nil, Config{}, fmt.Errorf("eval_step invalid: %w", err)
		}
		if step.Duration > tf.Duration {
			cfg.EvalEvery = step.Duration
		}
	}
	return req, src, cfg, nil
}

// StartRun registers the run and executes it in the background.
func (s *Service) StartRun(ctx context.Context, req RunRequest) (Run, error) {
	req, src, cfg, err := s.resolve(req)
	if err != nil {
		return Run{}, err
	}
	now := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Source:    req.Source,
		Status:    RunStatusPending,
		StartTS:   req.StartTS,
		EndTS:     req.EndTS,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	if s.recorder != nil {
		if err := s.recorder.InsertRun(ctx, *run); err != nil {
			return Run{}, err
		}
	}
	go s.execute(context.WithoutCancel(ctx), run, req, src, cfg)
	return *run, nil
}

// RunSync executes a run in the calling goroutine and returns the report.
func (s *Service) RunSync(ctx context.Context, req RunRequest) (*Report, error) {
	req, src, cfg, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	return s.runOnce(ctx, req, src, cfg)
}

// RunBatch backtests several symbols with the same request template.
// Parallelism is bounded and strictly run-level.
func (s *Service) RunBatch(ctx context.Context, symbols []string, template RunRequest) (map[string]*Report, error) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(cap(s.sem))
	var mu sync.Mutex
	out := make(map[string]*Report, len(symbols))
	for _, sym := range symbols {
		req := template
		req.Symbol = sym
		group.Go(func() error {
			rep, err := s.RunSync(ctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", req.Symbol, err)
			}
			mu.Lock()
			out[strings.ToUpper(req.Symbol)] = rep
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) execute(ctx context.Context, run *Run, req RunRequest, src signal.Source, cfg Config) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s waiting for a free worker", run.ID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	s.setStatus(ctx, run, RunStatusRunning, "loading candles")
	// Observers hanging off the source (model call logs) pick the run
	// ID up from the evaluation context.
	rep, err := s.runOnce(signal.WithRunID(ctx, run.ID), req, src, cfg)
	if err != nil {
		logger.Warnf("[backtest] run %s failed: %v", run.ID, err)
		s.setStatus(ctx, run, RunStatusFailed, err.Error())
		return
	}
	s.mu.Lock()
	run.Report = rep
	s.mu.Unlock()
	if s.recorder != nil {
		if err := s.recorder.SaveReport(ctx, run.ID, rep); err != nil {
			logger.Warnf("[backtest] run %s: persisting report failed: %v", run.ID, err)
		}
	}
	s.setStatus(ctx, run, RunStatusDone, fmt.Sprintf("%d trades, pnl %.2f", rep.TotalTrades, rep.TotalPnL))
}

func (s *Service) runOnce(ctx context.Context, req RunRequest, src signal.Source, cfg Config) (*Report, error) {
	candles, err := s.loader.Load(ctx, req.Exchange, req.Symbol, req.Timeframe, req.StartTS, req.EndTS)
	if err != nil {
		return nil, fmt.Errorf("loading candles failed: %w", err)
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	rep, err := engine.Run(ctx, candles, src)
	if rep != nil && err != nil {
		// Cancellation between steps: partial results stay valid.
		logger.Warnf("[backtest] %s run interrupted, returning partial report: %v", req.Symbol, err)
		return rep, nil
	}
	return rep, err
}

func (s *Service) setStatus(ctx context.Context, run *Run, status, message string) {
	s.mu.Lock()
	run.Status = status
	run.Message = message
	run.UpdatedAt = time.Now()
	s.mu.Unlock()
	if s.recorder != nil {
		if err := s.recorder.UpdateRunStatus(ctx, run.ID, status, message); err != nil {
			logger.Debugf("update run status failed: %v", err)
		}
	}
}

// GetRun returns a snapshot of the run by ID.
func (s *Service) GetRun(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// ListRuns returns snapshots of all known runs, newest first.
func (s *Service) ListRuns() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
