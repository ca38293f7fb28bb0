package backtest

import "time"

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunRequest is what callers (HTTP, batch runner) submit.
type RunRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe"`
	Exchange  string `json:"exchange"`
	Source    string `json:"source"` // "technical" | "ai"
	StartTS   int64  `json:"start_ts" binding:"required"`
	EndTS     int64  `json:"end_ts" binding:"required"`

	InitialCapital      float64 `json:"initial_capital"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	RiskFraction        float64 `json:"risk_fraction"`
	EvalStep            string  `json:"eval_step"` // only meaningful for the AI source
	CloseAtEnd          bool    `json:"close_at_end"`
}

// Run is one backtest task and its lifecycle.
type Run struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	StartTS   int64     `json:"start_ts"`
	EndTS     int64     `json:"end_ts"`
	Config    Config    `json:"-"`
	Report    *Report   `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
