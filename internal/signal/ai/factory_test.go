package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := config.AIConfig{
		Enabled:      true,
		ActivePreset: "deepseek",
		Presets: map[string]config.ModelPreset{
			"deepseek": {
				APIURL: "https://api.deepseek.com/v1",
				APIKey: "sk-test",
				Model:  "deepseek-chat",
			},
		},
		TimeoutSeconds: 30,
		MaxRetries:     3,
		Temperature:    0.4,
	}

	eng, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ai:deepseek", eng.Name())
	assert.Equal(t, 30, eng.TimeoutSeconds)
	assert.Empty(t, eng.Timeframe, "stamped per run, not at construction")

	client, ok := eng.Provider.(*OpenAIChatClient)
	require.True(t, ok)
	assert.Equal(t, "deepseek-chat", client.Model)
	assert.True(t, client.Enabled())
}

func TestFromConfig_Errors(t *testing.T) {
	_, err := FromConfig(config.AIConfig{}, nil)
	assert.Error(t, err, "disabled config")

	_, err = FromConfig(config.AIConfig{Enabled: true, ActivePreset: "ghost"}, nil)
	assert.Error(t, err, "missing preset")
}
