package signal

import "context"

type runIDKey struct{}

// WithRunID tags ctx with the backtest run an evaluation belongs to.
// Sources and their observers read it back to correlate persisted
// artifacts, model call logs in particular, with the run row.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run ID set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// TimeframeAware is implemented by sources whose prompts or output carry
// the candle timeframe. The run service derives a per-run variant from
// the shared instance before handing it to the engine.
type TimeframeAware interface {
	ForTimeframe(timeframe string) Source
}
