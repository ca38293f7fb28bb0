package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
  log_level: debug
data:
  default_exchange: bybit
backtest:
  initial_capital: 5000
  risk_fraction: 0.01
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "bybit", cfg.Data.DefaultExchange)
	assert.InDelta(t, 5000.0, cfg.Backtest.InitialCapital, 1e-9)
	assert.InDelta(t, 0.01, cfg.Backtest.RiskFraction, 1e-9)

	// untouched sections pick up defaults
	assert.Equal(t, ":9985", cfg.App.HTTPAddr)
	assert.Equal(t, 50, cfg.Backtest.WarmupCandles)
	assert.InDelta(t, 0.6, cfg.Backtest.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Backtest.AIConfidenceThreshold, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown exchange", func(t *testing.T) {
		_, err := Load(writeConfig(t, "data:\n  default_exchange: kraken\n"))
		assert.Error(t, err)
	})

	t.Run("risk fraction out of range", func(t *testing.T) {
		_, err := Load(writeConfig(t, "backtest:\n  risk_fraction: 1.5\n"))
		assert.Error(t, err)
	})

	t.Run("ai enabled without preset", func(t *testing.T) {
		_, err := Load(writeConfig(t, "ai:\n  enabled: true\n  active_preset: ghost\n"))
		assert.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "binance", cfg.Data.DefaultExchange)
	assert.InDelta(t, 10000.0, cfg.Backtest.InitialCapital, 1e-9)
	assert.Equal(t, 2, cfg.Backtest.MaxConcurrent)
	assert.Equal(t, "data/candles", cfg.Data.Root)
}

func TestLoad_AIPreset(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
ai:
  enabled: true
  active_preset: deepseek
  presets:
    deepseek:
      api_url: https://api.deepseek.com/v1
      api_key: sk-test
      model: deepseek-chat
`))
	require.NoError(t, err)
	preset := cfg.AI.Presets["deepseek"]
	assert.Equal(t, "deepseek-chat", preset.Model)
	assert.Equal(t, 60, cfg.AI.TimeoutSeconds)
	assert.Equal(t, 2, cfg.AI.MaxRetries)
}
