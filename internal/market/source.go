package market

import "context"

// FetchRequest describes one remote kline request.
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms
	End      int64 // Unix ms, 0 means open-ended
	Limit    int
}

// Source unifies kline retrieval across exchanges. Implementations must
// return candles sorted ascending by open time with no duplicates.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Candle, error)
	Name() string
}
