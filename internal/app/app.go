// Package app wires configuration, stores, gateways and the HTTP API
// into one runnable unit.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"kairos/internal/backtest"
	"kairos/internal/config"
	"kairos/internal/gateway/fetch"
	"kairos/internal/logger"
	"kairos/internal/profile"
	"kairos/internal/store/candle"
	"kairos/internal/store/results"
	backtesthttp "kairos/internal/transport/http"
)

type App struct {
	cfg      *config.Config
	cache    *candle.Cache
	results  *results.Store
	fetcher  *fetch.Service
	svc      *backtest.Service
	profiles *profile.Registry
	server   *backtesthttp.Server
}

// New builds the application from config without starting it.
func New(cfg *config.Config) (*App, error) {
	return NewBuilder(cfg).Build()
}

// Run serves HTTP until ctx is cancelled, then closes the stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	logger.Infof("kairos listening on %s (exchange=%s, data=%s)",
		a.cfg.App.HTTPAddr, a.cfg.Data.DefaultExchange, a.cfg.Data.Root)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	return err
}

// Service exposes the run orchestrator for CLI-style one-shot runs.
func (a *App) Service() *backtest.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

// Cache exposes the candle cache so one-shot runs can reload the
// candles they just backtested over for chart rendering.
func (a *App) Cache() *candle.Cache {
	if a == nil {
		return nil
	}
	return a.cache
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Warnf("closing candle cache: %v", err)
		}
	}
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			logger.Warnf("closing result store: %v", err)
		}
	}
}
