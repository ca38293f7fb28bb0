// Package ai evaluates candle history through an OpenAI-compatible chat
// model and converts its JSON reply into a trading signal.
package ai

import "context"

// ModelProvider abstracts one configured model endpoint.
type ModelProvider interface {
	ID() string
	Enabled() bool
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CallRecord captures one round trip with a model for later inspection.
// RunID is filled from the evaluation context when the call happens
// inside a backtest run.
type CallRecord struct {
	RunID      string
	ProviderID string
	Symbol     string
	CandleTS   int64
	Prompt     string
	Raw        string
	Err        string
	LatencyMs  int64
}

// Observer receives a record per model call. Used to persist call logs.
type Observer interface {
	Observe(rec CallRecord)
}
