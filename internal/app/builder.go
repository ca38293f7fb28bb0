package app

import (
	"fmt"
	"time"

	"kairos/internal/backtest"
	"kairos/internal/config"
	"kairos/internal/gateway/binance"
	"kairos/internal/gateway/bybit"
	"kairos/internal/gateway/fetch"
	"kairos/internal/logger"
	"kairos/internal/market"
	"kairos/internal/profile"
	"kairos/internal/signal"
	"kairos/internal/signal/ai"
	"kairos/internal/signal/technical"
	"kairos/internal/store/candle"
	"kairos/internal/store/results"
	backtesthttp "kairos/internal/transport/http"
)

// Builder assembles the application from config. Construction order
// matters: stores first, then gateways, then the run service, then HTTP.
type Builder struct {
	cfg *config.Config
}

func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	cache, err := candle.NewCache(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("candle cache: %w", err)
	}
	resultStore, err := results.NewStore(cfg.Data.ResultsPath)
	if err != nil {
		return nil, fmt.Errorf("result store: %w", err)
	}

	httpTimeout := time.Duration(cfg.Data.TimeoutSeconds) * time.Second
	exchanges := map[string]market.Source{
		"binance": binance.New(binance.Config{BaseURL: cfg.Data.BinanceBaseURL, HTTPTimeout: httpTimeout}),
		"bybit":   bybit.New(bybit.Config{BaseURL: cfg.Data.BybitBaseURL, HTTPTimeout: httpTimeout}),
	}
	fetcher, err := fetch.NewService(fetch.ServiceConfig{
		Cache:           cache,
		Sources:         exchanges,
		DefaultExchange: cfg.Data.DefaultExchange,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
		MaxBatch:        cfg.Data.MaxBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch service: %w", err)
	}

	sources := map[string]signal.Source{
		"technical": technical.New(technical.Settings{}),
	}
	if cfg.AI.Enabled {
		engine, err := ai.FromConfig(cfg.AI, &results.CallObserver{Store: resultStore})
		if err != nil {
			return nil, fmt.Errorf("ai source: %w", err)
		}
		sources["ai"] = engine
		logger.Infof("ai signal source enabled (preset=%s)", cfg.AI.ActivePreset)
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Loader:        fetcher,
		Recorder:      resultStore,
		Sources:       sources,
		DefaultSource: "technical",
		Defaults: backtest.Config{
			InitialCapital:      cfg.Backtest.InitialCapital,
			ConfidenceThreshold: cfg.Backtest.ConfidenceThreshold,
			Warmup:              cfg.Backtest.WarmupCandles,
			RiskFraction:        cfg.Backtest.RiskFraction,
			RiskFreeRate:        cfg.Backtest.RiskFreeRate,
			CloseAtEnd:          cfg.Backtest.CloseAtEnd,
		},
		AIConfidenceThreshold: cfg.Backtest.AIConfidenceThreshold,
		MaxConcurrent:         cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("backtest service: %w", err)
	}

	var profiles *profile.Registry
	if cfg.App.ProfilesPath != "" {
		profiles, err = profile.NewRegistry(cfg.App.ProfilesPath)
		if err != nil {
			// profiles are optional; runs can spell out every knob
			logger.Warnf("profile registry disabled: %v", err)
			profiles = nil
		}
	}

	server, err := backtesthttp.NewServer(backtesthttp.Config{
		Addr:      cfg.App.HTTPAddr,
		Svc:       svc,
		Fetcher:   fetcher,
		Cache:     cache,
		Results:   resultStore,
		Profiles:  profiles,
		ReportDir: cfg.Report.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		cache:    cache,
		results:  resultStore,
		fetcher:  fetcher,
		svc:      svc,
		profiles: profiles,
		server:   server,
	}, nil
}
