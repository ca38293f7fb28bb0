package config

// Config is the top-level configuration carrier for kairos.
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	AI       AIConfig       `toml:"ai"`
	Backtest BacktestConfig `toml:"backtest"`
	Report   ReportConfig   `toml:"report"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	ProfilesPath string `toml:"profiles_path"`
}

// DataConfig controls the candle cache and exchange sources.
type DataConfig struct {
	Root            string `toml:"root"`
	ResultsPath     string `toml:"results_path"`
	DefaultExchange string `toml:"default_exchange"` // "binance" | "bybit"
	BinanceBaseURL  string `toml:"binance_base_url"`
	BybitBaseURL    string `toml:"bybit_base_url"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	MaxBatch        int    `toml:"max_batch"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// ModelPreset describes a reusable chat-completion endpoint.
type ModelPreset struct {
	APIURL     string            `toml:"api_url"`
	APIKey     string            `toml:"api_key"`
	Model      string            `toml:"model"`
	Headers    map[string]string `toml:"headers"`
	ExpectJSON bool              `toml:"expect_json"`
}

// AIConfig selects which model backend produces signals. The presets map
// lets deepseek/openai style endpoints coexist; ActivePreset picks one.
type AIConfig struct {
	Enabled        bool                   `toml:"enabled"`
	ActivePreset   string                 `toml:"active_preset"`
	Presets        map[string]ModelPreset `toml:"presets"`
	TimeoutSeconds int                    `toml:"timeout_seconds"`
	MaxRetries     int                    `toml:"max_retries"`
	Temperature    float64                `toml:"temperature"`
}

// BacktestConfig carries run-level defaults. Per-run overrides come in
// through the HTTP request.
type BacktestConfig struct {
	InitialCapital        float64 `toml:"initial_capital"`
	ConfidenceThreshold   float64 `toml:"confidence_threshold"`
	AIConfidenceThreshold float64 `toml:"ai_confidence_threshold"`
	WarmupCandles         int     `toml:"warmup_candles"`
	RiskFraction          float64 `toml:"risk_fraction"`
	RiskFreeRate          float64 `toml:"risk_free_rate"`
	EvalStep              string  `toml:"eval_step"` // resampled evaluation interval for AI runs, e.g. "1d"
	CloseAtEnd            bool    `toml:"close_at_end"`
	MaxConcurrent         int     `toml:"max_concurrent"`
}

type ReportConfig struct {
	Dir      string `toml:"dir"`
	Charts   bool   `toml:"charts"`
	Snapshot bool   `toml:"snapshot"` // render chart PNG via headless chrome
}
