package ai

import (
	"fmt"
	"time"

	"kairos/internal/config"
)

// FromConfig builds an engine around the active model preset. The
// timeframe stays unset here; the run service stamps it per run via
// ForTimeframe.
func FromConfig(cfg config.AIConfig, obs Observer) (*Engine, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("ai signal source disabled in config")
	}
	preset, ok := cfg.Presets[cfg.ActivePreset]
	if !ok {
		return nil, fmt.Errorf("ai preset %q not found", cfg.ActivePreset)
	}
	client := NewOpenAIChatClient(cfg.ActivePreset, OpenAIChatClient{
		BaseURL:      preset.APIURL,
		APIKey:       preset.APIKey,
		Model:        preset.Model,
		Temperature:  cfg.Temperature,
		Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries:   cfg.MaxRetries,
		ExtraHeaders: preset.Headers,
	})
	return &Engine{
		Provider:       client,
		TimeoutSeconds: cfg.TimeoutSeconds,
		Observer:       obs,
	}, nil
}
