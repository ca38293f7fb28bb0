// Package fetch keeps the candle cache in sync with exchange sources
// and serves complete series to the backtest engine.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"kairos/internal/backtest"
	"kairos/internal/logger"
	"kairos/internal/market"
	"kairos/internal/store/candle"
)

// Gap is one missing [From, To] open_time span.
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// SyncResult reports what one Sync call did.
type SyncResult struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Exchange  string `json:"exchange"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	Expected  int64  `json:"expected"`
	Present   int64  `json:"present"`
	Fetched   int    `json:"fetched"`
	Gaps      []Gap  `json:"gaps,omitempty"`
}

type ServiceConfig struct {
	Cache           *candle.Cache
	Sources         map[string]market.Source // keyed by lowercase exchange name
	DefaultExchange string
	RateLimitPerMin int
	MaxBatch        int
}

type Service struct {
	cache           *candle.Cache
	sources         map[string]market.Source
	defaultExchange string
	maxBatch        int
	limiter         *rate.Limiter

	mu sync.Mutex // serializes sync per process; sqlite files dislike concurrent writers
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("candle cache is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one exchange source is required")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 8
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	svc := &Service{
		cache:           cfg.Cache,
		sources:         make(map[string]market.Source),
		defaultExchange: strings.ToLower(cfg.DefaultExchange),
		maxBatch:        maxBatch,
		limiter:         rate.NewLimiter(ratePerSec, maxBatch),
	}
	for k, v := range cfg.Sources {
		svc.sources[strings.ToLower(k)] = v
	}
	if svc.defaultExchange == "" {
		for k := range svc.sources {
			svc.defaultExchange = k
			break
		}
	}
	return svc, nil
}

// Load implements the engine's candle loader: fill any gaps from the
// exchange, then return the cached range validated and ascending.
func (s *Service) Load(ctx context.Context, exchange, symbol, timeframe string, start, end int64) ([]market.Candle, error) {
	if _, err := s.Sync(ctx, exchange, symbol, timeframe, start, end); err != nil {
		return nil, err
	}
	out, err := s.cache.Range(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if err := market.ValidateSeries(out); err != nil {
		return nil, fmt.Errorf("cached series %s %s: %w", symbol, timeframe, err)
	}
	return out, nil
}

// Sync fetches whatever part of [start, end] the cache is missing.
func (s *Service) Sync(ctx context.Context, exchange, symbol, timeframe string, start, end int64) (SyncResult, error) {
	tf, err := backtest.ParseTimeframe(timeframe)
	if err != nil {
		return SyncResult{}, err
	}
	if exchange == "" {
		exchange = s.defaultExchange
	}
	src := s.sources[strings.ToLower(exchange)]
	if src == nil {
		return SyncResult{}, fmt.Errorf("unknown exchange %q", exchange)
	}
	start, end = tf.AlignRange(start, end)
	if start >= end {
		return SyncResult{}, fmt.Errorf("start/end do not form a range")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	res := SyncResult{
		Symbol:    symbol,
		Timeframe: tf.Key,
		Exchange:  src.Name(),
		Start:     start,
		End:       end,
		Expected:  tf.ExpectedCandles(start, end),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gaps, present, err := s.missingRanges(ctx, symbol, tf, start, end)
	if err != nil {
		return res, err
	}
	res.Present = present
	if len(gaps) == 0 {
		return res, nil
	}
	logger.Infof("[fetch] %s %s gaps=%d expected=%d present=%d", symbol, tf.Key, len(gaps), res.Expected, present)

	step := tf.Duration.Milliseconds()
	for _, gap := range gaps {
		cursor := gap.From
		for cursor <= gap.To {
			if err := s.limiter.Wait(ctx); err != nil {
				return res, err
			}
			remaining := int((gap.To-cursor)/step) + 1
			if remaining > s.maxBatch {
				remaining = s.maxBatch
			}
			data, err := src.Fetch(ctx, market.FetchRequest{
				Symbol:   symbol,
				Interval: tf.SourceInterval,
				Start:    cursor,
				End:      gap.To,
				Limit:    remaining,
			})
			if err != nil {
				return res, fmt.Errorf("%s fetch failed: %w", src.Name(), err)
			}
			if len(data) == 0 {
				// exchange has no data for this span (listing gap)
				res.Gaps = append(res.Gaps, Gap{From: cursor, To: gap.To})
				break
			}
			inserted, err := s.cache.Insert(ctx, symbol, tf.Key, data)
			if err != nil {
				return res, err
			}
			res.Fetched += inserted
			cursor = data[len(data)-1].OpenTime + step
		}
	}
	res.Present = min64(res.Present+int64(res.Fetched), res.Expected)
	return res, nil
}

// missingRanges walks the expected open_time grid against what the cache
// already holds and coalesces the holes into spans.
func (s *Service) missingRanges(ctx context.Context, symbol string, tf backtest.Timeframe, start, end int64) ([]Gap, int64, error) {
	have, err := s.cache.OpenTimes(ctx, symbol, tf.Key, start, end)
	if err != nil {
		return nil, 0, err
	}
	present := make(map[int64]struct{}, len(have))
	for _, ts := range have {
		present[ts] = struct{}{}
	}
	step := tf.Duration.Milliseconds()
	var gaps []Gap
	var open *Gap
	for ts := start; ts <= end; ts += step {
		if _, ok := present[ts]; ok {
			if open != nil {
				gaps = append(gaps, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &Gap{From: ts, To: ts}
		} else {
			open.To = ts
		}
	}
	if open != nil {
		gaps = append(gaps, *open)
	}
	return gaps, int64(len(have)), nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
