package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/internal/market"
	"kairos/internal/signal"
)

type fakeProvider struct {
	reply   string
	err     error
	enabled bool

	lastUserPrompt string
}

func (f *fakeProvider) ID() string    { return "fake" }
func (f *fakeProvider) Enabled() bool { return f.enabled }

func (f *fakeProvider) Call(_ context.Context, _, userPrompt string) (string, error) {
	f.lastUserPrompt = userPrompt
	return f.reply, f.err
}

type recordingObserver struct {
	records []CallRecord
}

func (r *recordingObserver) Observe(rec CallRecord) { r.records = append(r.records, rec) }

func testHistory(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		open := int64(i) * 3_600_000
		price := 100.0 + float64(i)*0.5
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + 3_600_000 - 1,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    50,
		}
	}
	return out
}

func TestEngine_EvaluateBuyReply(t *testing.T) {
	provider := &fakeProvider{
		enabled: true,
		reply: "Momentum is strong and RSI has room.\n```json\n" +
			`{"action": "BUY", "confidence": 0.82, "entry_price": 120.0, "stop_loss": 116.0, "take_profit": 130.0, "reasoning": "uptrend continuation"}` +
			"\n```",
	}
	eng := &Engine{Provider: provider, Timeframe: "1h"}

	sig, err := eng.Evaluate(context.Background(), "BTCUSDT", testHistory(40))
	require.NoError(t, err)
	assert.Equal(t, signal.Buy, sig.Action)
	assert.InDelta(t, 0.82, sig.Confidence, 1e-9)
	assert.InDelta(t, 120.0, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 116.0, sig.StopLoss, 1e-9)
	assert.InDelta(t, 130.0, sig.TakeProfit, 1e-9)
	assert.Equal(t, "uptrend continuation", sig.Reasoning)
	assert.Equal(t, "1h", sig.Timeframe)
}

func TestEngine_EvaluateHoldOmitsPrices(t *testing.T) {
	provider := &fakeProvider{
		enabled: true,
		reply:   `{"action": "WAIT", "confidence": 0.4}`,
	}
	eng := &Engine{Provider: provider}

	sig, err := eng.Evaluate(context.Background(), "ETHUSDT", testHistory(10))
	require.NoError(t, err)
	assert.Equal(t, signal.Hold, sig.Action)
	assert.Zero(t, sig.EntryPrice)
}

func TestEngine_EvaluateRejectsBadReplies(t *testing.T) {
	cases := map[string]string{
		"no json":          "I would rather not commit to a trade right now.",
		"missing action":   `{"confidence": 0.9}`,
		"confidence range": `{"action": "BUY", "confidence": 1.4, "entry_price": 100, "stop_loss": 95, "take_profit": 110}`,
		"negative price":   `{"action": "BUY", "confidence": 0.8, "entry_price": -5, "stop_loss": 95, "take_profit": 110}`,
		"inverted bracket": `{"action": "BUY", "confidence": 0.8, "entry_price": 100, "stop_loss": 105, "take_profit": 110}`,
		"unknown action":   `{"action": "LEVERAGE_UP", "confidence": 0.8}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			eng := &Engine{Provider: &fakeProvider{enabled: true, reply: reply}}
			_, err := eng.Evaluate(context.Background(), "BTCUSDT", testHistory(10))
			assert.Error(t, err)
		})
	}
}

func TestEngine_EvaluateProviderFailure(t *testing.T) {
	eng := &Engine{Provider: &fakeProvider{enabled: true, err: errors.New("rate limited")}}
	_, err := eng.Evaluate(context.Background(), "BTCUSDT", testHistory(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestEngine_EvaluateDisabledProvider(t *testing.T) {
	eng := &Engine{Provider: &fakeProvider{enabled: false}}
	_, err := eng.Evaluate(context.Background(), "BTCUSDT", testHistory(10))
	assert.Error(t, err)
}

func TestEngine_ObserverSeesEveryCall(t *testing.T) {
	obs := &recordingObserver{}
	provider := &fakeProvider{enabled: true, err: errors.New("boom")}
	eng := &Engine{Provider: provider, Observer: obs}

	history := testHistory(10)
	_, _ = eng.Evaluate(context.Background(), "BTCUSDT", history)

	require.Len(t, obs.records, 1)
	rec := obs.records[0]
	assert.Equal(t, "fake", rec.ProviderID)
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, history[len(history)-1].CloseTime, rec.CandleTS)
	assert.Equal(t, "boom", rec.Err)
	assert.Empty(t, rec.RunID, "no run in context")
}

func TestEngine_ObserverRecordCarriesRunID(t *testing.T) {
	obs := &recordingObserver{}
	provider := &fakeProvider{enabled: true, reply: `{"action": "HOLD", "confidence": 0.2}`}
	eng := &Engine{Provider: provider, Observer: obs}

	ctx := signal.WithRunID(context.Background(), "run-42")
	_, err := eng.Evaluate(ctx, "BTCUSDT", testHistory(10))
	require.NoError(t, err)

	require.Len(t, obs.records, 1)
	assert.Equal(t, "run-42", obs.records[0].RunID)
}

func TestEngine_ForTimeframe(t *testing.T) {
	provider := &fakeProvider{enabled: true, reply: `{"action": "HOLD", "confidence": 0.1}`}
	eng := &Engine{Provider: provider}

	scoped, ok := eng.ForTimeframe("4h").(*Engine)
	require.True(t, ok)
	assert.Equal(t, "4h", scoped.Timeframe)
	assert.Empty(t, eng.Timeframe, "shared instance stays untouched")

	_, err := scoped.Evaluate(context.Background(), "BTCUSDT", testHistory(10))
	require.NoError(t, err)
	assert.Contains(t, provider.lastUserPrompt, "# BTCUSDT 4h market snapshot")

	_, err = eng.Evaluate(context.Background(), "BTCUSDT", testHistory(10))
	require.NoError(t, err)
	assert.Contains(t, provider.lastUserPrompt, "# BTCUSDT market snapshot")
}

func TestEngine_SummaryWindowBounded(t *testing.T) {
	provider := &fakeProvider{enabled: true, reply: `{"action": "HOLD", "confidence": 0.1}`}
	eng := &Engine{Provider: provider, SummaryCandles: 5}

	_, err := eng.Evaluate(context.Background(), "BTCUSDT", testHistory(40))
	require.NoError(t, err)

	lines := strings.Split(provider.lastUserPrompt, "\n")
	candleLines := 0
	for _, line := range lines {
		if strings.Count(line, ",") == 5 {
			candleLines++
		}
	}
	assert.Equal(t, 5, candleLines)
	assert.Contains(t, provider.lastUserPrompt, "Indicators:", "long histories include the indicator digest")
}

func TestValidateReply(t *testing.T) {
	assert.NoError(t, validateReply(`{"action": "HOLD", "confidence": 0.5}`))
	assert.Error(t, validateReply(`not json at all`))
	assert.Error(t, validateReply(`{"action": "BUY"}`))
}
