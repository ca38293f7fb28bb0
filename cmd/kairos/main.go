package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"kairos/internal/app"
	"kairos/internal/backtest"
	"kairos/internal/config"
	"kairos/internal/logger"
	"kairos/internal/report"
)

func main() {
	var (
		symbol   = flag.String("symbol", "", "run one backtest for this symbol and exit")
		timefr   = flag.String("timeframe", "1h", "candle timeframe for -symbol runs")
		source   = flag.String("source", "", "signal source for -symbol runs (technical|ai)")
		startTS  = flag.Int64("start", 0, "range start in unix milliseconds")
		endTS    = flag.Int64("end", 0, "range end in unix milliseconds")
		exchange = flag.String("exchange", "", "exchange override for -symbol runs")
	)
	flag.Parse()

	cfgPath := os.Getenv("KAIROS_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("initializing log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, exchange=%s)", cfg.App.Env, cfg.Data.DefaultExchange)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("initializing app failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *symbol != "" {
		defer a.Close()
		rep, err := a.Service().RunSync(ctx, backtest.RunRequest{
			Symbol:    *symbol,
			Timeframe: *timefr,
			Exchange:  *exchange,
			Source:    *source,
			StartTS:   *startTS,
			EndTS:     *endTS,
		})
		if err != nil {
			log.Fatalf("backtest failed: %v", err)
		}
		report.Print(rep)
		writeArtifacts(ctx, a, cfg, rep, *startTS, *endTS)
		return
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

// writeArtifacts renders the configured chart outputs for a one-shot
// run. Failures are logged, not fatal, since the text report already
// printed.
func writeArtifacts(ctx context.Context, a *app.App, cfg *config.Config, rep *backtest.Report, startTS, endTS int64) {
	if rep == nil || (!cfg.Report.Charts && !cfg.Report.Snapshot) {
		return
	}
	candles, err := a.Cache().Range(ctx, rep.Symbol, rep.Timeframe, startTS, endTS)
	if err != nil {
		logger.Warnf("loading candles for chart: %v", err)
		return
	}
	if cfg.Report.Charts {
		path, err := report.WriteHTML(rep, candles, cfg.Report.Dir)
		if err != nil {
			logger.Warnf("writing chart: %v", err)
		} else {
			logger.Infof("chart written to %s", path)
		}
	}
	if cfg.Report.Snapshot {
		path, err := report.WritePNG(ctx, rep, candles, cfg.Report.Dir)
		if err != nil {
			logger.Warnf("writing snapshot: %v", err)
		} else {
			logger.Infof("snapshot written to %s", path)
		}
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
