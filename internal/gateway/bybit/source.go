// Package bybit fetches historical klines from the Bybit v5 market API.
// There is no maintained SDK for the read-only endpoints we need, so the
// single GET is issued directly.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kairos/internal/market"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	maxBatchLimit  = 1000
)

// intervalMap converts the common "5m"/"1h" spellings onto Bybit codes.
var intervalMap = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W",
}

type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

type Source struct {
	baseURL string
	httpc   *http.Client
}

func New(cfg Config) *Source {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Source{baseURL: base, httpc: &http.Client{Timeout: timeout}}
}

func (s *Source) Name() string { return "bybit" }

func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	code, ok := intervalMap[strings.ToLower(strings.TrimSpace(req.Interval))]
	if !ok {
		return nil, fmt.Errorf("unsupported bybit interval %q", req.Interval)
	}
	limit := req.Limit
	if limit <= 0 || limit > maxBatchLimit {
		limit = maxBatchLimit
	}

	var out []market.Candle
	cursor := req.Start
	for {
		batch, err := s.fetchBatch(ctx, symbol, code, cursor, req.End, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < limit {
			break
		}
		next := batch[len(batch)-1].OpenTime + 1
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

func (s *Source) fetchBatch(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("category", "linear")
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	if start > 0 {
		q.Set("start", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		q.Set("end", strconv.FormatInt(end, 10))
	}
	reqURL := s.baseURL + "/v5/market/kline?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpc.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit kline: status=%d", resp.StatusCode)
	}

	var body struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.RetCode != 0 {
		return nil, fmt.Errorf("bybit kline: retCode=%d msg=%s", body.RetCode, body.RetMsg)
	}

	// Rows arrive newest first as [startTime, open, high, low, close,
	// volume, turnover]; close_time is derived from the interval.
	ivMs := intervalMillis(interval)
	out := make([]market.Candle, 0, len(body.Result.List))
	for i := len(body.Result.List) - 1; i >= 0; i-- {
		row := body.Result.List[i]
		if len(row) < 6 {
			continue
		}
		openTime, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		k := market.Candle{
			OpenTime: openTime,
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		}
		if ivMs > 0 {
			k.CloseTime = openTime + ivMs - 1
		}
		out = append(out, k)
	}
	return out, nil
}

func intervalMillis(code string) int64 {
	switch code {
	case "D":
		return 24 * time.Hour.Milliseconds()
	case "W":
		return 7 * 24 * time.Hour.Milliseconds()
	default:
		mins, err := strconv.Atoi(code)
		if err != nil {
			return 0
		}
		return int64(mins) * time.Minute.Milliseconds()
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
