package results

import (
	"gorm.io/datatypes"
)

type RunModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	Symbol    string `gorm:"column:symbol;index"`
	Timeframe string `gorm:"column:timeframe"`
	Source    string `gorm:"column:source"`
	Status    string `gorm:"column:status;index"`
	Message   string `gorm:"column:message"`
	StartTS   int64  `gorm:"column:start_ts"`
	EndTS     int64  `gorm:"column:end_ts"`

	InitialCapital float64 `gorm:"column:initial_capital"`
	FinalCapital   float64 `gorm:"column:final_capital"`
	TotalPnL       float64 `gorm:"column:total_pnl"`
	ReturnPct      float64 `gorm:"column:return_pct"`
	BuyHoldPct     float64 `gorm:"column:buy_hold_pct"`
	TotalTrades    int     `gorm:"column:total_trades"`
	WinningTrades  int     `gorm:"column:winning_trades"`
	LosingTrades   int     `gorm:"column:losing_trades"`
	OpenTrades     int     `gorm:"column:open_trades"`
	WinRate        float64 `gorm:"column:win_rate"`
	MaxDrawdown    float64 `gorm:"column:max_drawdown"`
	SharpeRatio    float64 `gorm:"column:sharpe_ratio"`
	ProfitFactor   float64 `gorm:"column:profit_factor"`
	CalmarRatio    float64 `gorm:"column:calmar_ratio"`

	ReportJSON datatypes.JSON `gorm:"column:report_json;type:TEXT"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
	UpdatedAtUnix int64 `gorm:"column:updated_at"`
}

func (RunModel) TableName() string { return "backtest_runs" }

type TradeModel struct {
	ID         int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string  `gorm:"column:run_id;index"`
	Seq        int     `gorm:"column:seq"`
	Symbol     string  `gorm:"column:symbol"`
	Action     string  `gorm:"column:action"`
	EntryTime  int64   `gorm:"column:entry_time"`
	ExitTime   int64   `gorm:"column:exit_time"`
	EntryPrice float64 `gorm:"column:entry_price"`
	ExitPrice  float64 `gorm:"column:exit_price"`
	Quantity   float64 `gorm:"column:quantity"`
	StopLoss   float64 `gorm:"column:stop_loss"`
	TakeProfit float64 `gorm:"column:take_profit"`
	PnL        float64 `gorm:"column:pnl"`
	Confidence float64 `gorm:"column:confidence"`
	Status     string  `gorm:"column:status"`
}

func (TradeModel) TableName() string { return "backtest_trades" }

type EquityPointModel struct {
	ID      int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID   string  `gorm:"column:run_id;index"`
	TS      int64   `gorm:"column:ts"`
	Capital float64 `gorm:"column:capital"`
}

func (EquityPointModel) TableName() string { return "backtest_equity" }

// ModelCallModel keeps the raw prompt/response of each AI model call so
// a run's decisions can be audited afterwards.
type ModelCallModel struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string `gorm:"column:run_id;index"`
	ProviderID string `gorm:"column:provider_id"`
	Symbol     string `gorm:"column:symbol"`
	CandleTS   int64  `gorm:"column:candle_ts"`
	Prompt     string `gorm:"column:prompt;type:TEXT"`
	Raw        string `gorm:"column:raw;type:TEXT"`
	Err        string `gorm:"column:err"`
	LatencyMs  int64  `gorm:"column:latency_ms"`
	CreatedAt  int64  `gorm:"column:created_at"`
}

func (ModelCallModel) TableName() string { return "model_calls" }
