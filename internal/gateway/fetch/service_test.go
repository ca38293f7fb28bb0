package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/internal/market"
	"kairos/internal/store/candle"
)

const hourMs = 3_600_000

// gridSource serves a fixed hourly grid, recording what was requested.
type gridSource struct {
	from, to int64
	requests []market.FetchRequest
}

func (g *gridSource) Name() string { return "grid" }

func (g *gridSource) Fetch(_ context.Context, req market.FetchRequest) ([]market.Candle, error) {
	g.requests = append(g.requests, req)
	var out []market.Candle
	for ts := req.Start; ts <= req.End && len(out) < req.Limit; ts += hourMs {
		if ts < g.from || ts > g.to {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  ts,
			CloseTime: ts + hourMs - 1,
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 10,
		})
	}
	return out, nil
}

func newTestService(t *testing.T, src market.Source) (*Service, *candle.Cache) {
	t.Helper()
	cache, err := candle.NewCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	svc, err := NewService(ServiceConfig{
		Cache:           cache,
		Sources:         map[string]market.Source{"grid": src},
		DefaultExchange: "grid",
		RateLimitPerMin: 60_000,
		MaxBatch:        1000,
	})
	require.NoError(t, err)
	return svc, cache
}

func TestService_SyncColdCache(t *testing.T) {
	src := &gridSource{from: hourMs, to: 10 * hourMs}
	svc, _ := newTestService(t, src)

	res, err := svc.Sync(context.Background(), "", "btcusdt", "1h", hourMs, 10*hourMs)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Equal(t, int64(10), res.Expected)
	assert.Equal(t, 10, res.Fetched)
	assert.Empty(t, res.Gaps)
	require.Len(t, src.requests, 1)
	assert.Equal(t, int64(hourMs), src.requests[0].Start)
}

func TestService_SyncWarmCacheSkipsFetch(t *testing.T) {
	src := &gridSource{from: hourMs, to: 10 * hourMs}
	svc, _ := newTestService(t, src)

	_, err := svc.Sync(context.Background(), "", "BTCUSDT", "1h", hourMs, 10*hourMs)
	require.NoError(t, err)
	require.Len(t, src.requests, 1)

	res, err := svc.Sync(context.Background(), "", "BTCUSDT", "1h", hourMs, 10*hourMs)
	require.NoError(t, err)
	assert.Len(t, src.requests, 1, "fully cached range must not refetch")
	assert.Equal(t, res.Expected, res.Present)
	assert.Zero(t, res.Fetched)
}

func TestService_SyncFillsInteriorGap(t *testing.T) {
	src := &gridSource{from: hourMs, to: 10 * hourMs}
	svc, cache := newTestService(t, src)

	// seed the edges, leaving hours 4..7 missing
	seed := func(ts int64) market.Candle {
		return market.Candle{OpenTime: ts, CloseTime: ts + hourMs - 1, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	var edges []market.Candle
	for _, h := range []int64{1, 2, 3, 8, 9, 10} {
		edges = append(edges, seed(h*hourMs))
	}
	_, err := cache.Insert(context.Background(), "BTCUSDT", "1h", edges)
	require.NoError(t, err)

	res, err := svc.Sync(context.Background(), "", "BTCUSDT", "1h", hourMs, 10*hourMs)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	require.Len(t, src.requests, 1)
	assert.Equal(t, int64(4*hourMs), src.requests[0].Start)
	assert.Equal(t, int64(7*hourMs), src.requests[0].End)
}

func TestService_SyncRecordsResidualGap(t *testing.T) {
	// exchange has no data in the requested range at all (pre-listing)
	src := &gridSource{from: 20 * hourMs, to: 30 * hourMs}
	svc, _ := newTestService(t, src)

	res, err := svc.Sync(context.Background(), "", "BTCUSDT", "1h", hourMs, 10*hourMs)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, int64(hourMs), res.Gaps[0].From)
	assert.Equal(t, int64(10*hourMs), res.Gaps[0].To)
}

func TestService_SyncValidation(t *testing.T) {
	src := &gridSource{}
	svc, _ := newTestService(t, src)

	_, err := svc.Sync(context.Background(), "", "BTCUSDT", "2h", hourMs, 10*hourMs)
	assert.Error(t, err, "unsupported timeframe")

	_, err = svc.Sync(context.Background(), "kraken", "BTCUSDT", "1h", hourMs, 10*hourMs)
	assert.Error(t, err, "unknown exchange")

	_, err = svc.Sync(context.Background(), "", "BTCUSDT", "1h", hourMs, hourMs)
	assert.Error(t, err, "empty range")
}

func TestService_Load(t *testing.T) {
	src := &gridSource{from: hourMs, to: 10 * hourMs}
	svc, _ := newTestService(t, src)

	candles, err := svc.Load(context.Background(), "", "BTCUSDT", "1h", hourMs, 10*hourMs)
	require.NoError(t, err)
	require.Len(t, candles, 10)
	assert.Equal(t, int64(hourMs), candles[0].OpenTime)
	assert.Equal(t, int64(10*hourMs), candles[9].OpenTime)
}
