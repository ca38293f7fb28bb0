// Package binance fetches historical futures klines through the
// go-binance SDK.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"kairos/internal/market"
)

const maxBatchLimit = 1500

type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// Source implements market.Source over the futures klines endpoint.
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(final.BaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

func (s *Source) Name() string { return "binance" }

// Fetch pages through the klines endpoint until the requested range is
// covered or the exchange returns a short batch.
func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	limit := req.Limit
	if limit <= 0 || limit > maxBatchLimit {
		limit = maxBatchLimit
	}

	var out []market.Candle
	cursor := req.Start
	for {
		svc := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
		if cursor > 0 {
			svc = svc.StartTime(cursor)
		}
		if req.End > 0 {
			svc = svc.EndTime(req.End)
		}
		kls, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			out = append(out, market.Candle{
				OpenTime:  kl.OpenTime,
				CloseTime: kl.CloseTime,
				Open:      parseFloat(kl.Open),
				High:      parseFloat(kl.High),
				Low:       parseFloat(kl.Low),
				Close:     parseFloat(kl.Close),
				Volume:    parseFloat(kl.Volume),
				Trades:    kl.TradeNum,
			})
		}
		if len(kls) < limit {
			break
		}
		last := out[len(out)-1]
		next := last.OpenTime + 1
		if req.End > 0 && next > req.End {
			break
		}
		if next <= cursor {
			break
		}
		cursor = next
	}
	return market.SortAndDedup(out), nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
