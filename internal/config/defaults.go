package config

const (
	defaultHTTPAddr        = ":9985"
	defaultDataRoot        = "data/candles"
	defaultResultsPath     = "data/results.db"
	defaultExchange        = "binance"
	defaultRateLimitPerMin = 480
	defaultMaxBatch        = 1000

	// DefaultConfidenceThreshold gates technical signals; AI signals use
	// the stricter DefaultAIConfidenceThreshold.
	DefaultConfidenceThreshold   = 0.6
	DefaultAIConfidenceThreshold = 0.7
	DefaultWarmupCandles         = 50
	DefaultRiskFraction          = 0.02
	DefaultRiskFreeRate          = 0.02
	DefaultInitialCapital        = 10000
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultHTTPAddr
	}
	if c.App.ProfilesPath == "" {
		c.App.ProfilesPath = "configs/profiles.yaml"
	}

	if c.Data.Root == "" {
		c.Data.Root = defaultDataRoot
	}
	if c.Data.ResultsPath == "" {
		c.Data.ResultsPath = defaultResultsPath
	}
	if c.Data.DefaultExchange == "" {
		c.Data.DefaultExchange = defaultExchange
	}
	if c.Data.RateLimitPerMin <= 0 {
		c.Data.RateLimitPerMin = defaultRateLimitPerMin
	}
	if c.Data.MaxBatch <= 0 {
		c.Data.MaxBatch = defaultMaxBatch
	}
	if c.Data.TimeoutSeconds <= 0 {
		c.Data.TimeoutSeconds = 15
	}

	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 60
	}
	if c.AI.MaxRetries <= 0 {
		c.AI.MaxRetries = 2
	}
	if c.AI.Temperature <= 0 {
		c.AI.Temperature = 0.3
	}

	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = DefaultInitialCapital
	}
	if c.Backtest.ConfidenceThreshold <= 0 {
		c.Backtest.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.Backtest.AIConfidenceThreshold <= 0 {
		c.Backtest.AIConfidenceThreshold = DefaultAIConfidenceThreshold
	}
	if c.Backtest.WarmupCandles <= 0 {
		c.Backtest.WarmupCandles = DefaultWarmupCandles
	}
	if c.Backtest.RiskFraction <= 0 {
		c.Backtest.RiskFraction = DefaultRiskFraction
	}
	if c.Backtest.RiskFreeRate <= 0 {
		c.Backtest.RiskFreeRate = DefaultRiskFreeRate
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = 2
	}

	if c.Report.Dir == "" {
		c.Report.Dir = "data/reports"
	}
}
