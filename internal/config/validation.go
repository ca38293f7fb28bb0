package config

import (
	"fmt"
	"strings"
)

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Data.DefaultExchange) {
	case "binance", "bybit":
	default:
		return fmt.Errorf("unknown default exchange %q", cfg.Data.DefaultExchange)
	}
	if cfg.Backtest.RiskFraction <= 0 || cfg.Backtest.RiskFraction > 1 {
		return fmt.Errorf("backtest.risk_fraction must be in (0, 1], got %v", cfg.Backtest.RiskFraction)
	}
	if cfg.Backtest.ConfidenceThreshold < 0 || cfg.Backtest.ConfidenceThreshold > 1 {
		return fmt.Errorf("backtest.confidence_threshold must be in [0, 1], got %v", cfg.Backtest.ConfidenceThreshold)
	}
	if cfg.Backtest.AIConfidenceThreshold < 0 || cfg.Backtest.AIConfidenceThreshold > 1 {
		return fmt.Errorf("backtest.ai_confidence_threshold must be in [0, 1], got %v", cfg.Backtest.AIConfidenceThreshold)
	}
	if cfg.Backtest.WarmupCandles < 1 {
		return fmt.Errorf("backtest.warmup_candles must be positive, got %d", cfg.Backtest.WarmupCandles)
	}
	if cfg.AI.Enabled {
		preset, ok := cfg.AI.Presets[cfg.AI.ActivePreset]
		if !ok {
			return fmt.Errorf("ai.active_preset %q not found in presets", cfg.AI.ActivePreset)
		}
		if strings.TrimSpace(preset.Model) == "" {
			return fmt.Errorf("ai preset %q: model cannot be empty", cfg.AI.ActivePreset)
		}
	}
	return nil
}
