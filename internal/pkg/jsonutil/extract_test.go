package jsonutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject_FencedWithLanguageTag(t *testing.T) {
	raw := "The market looks bullish.\n```json\n{\"action\": \"BUY\", \"confidence\": 0.8}\n```\nDone."
	obj, ok := ExtractObject(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"action":"BUY","confidence":0.8}`, obj)
}

func TestExtractObject_BareFence(t *testing.T) {
	raw := "```\n{\"action\": \"HOLD\", \"confidence\": 0.3}\n```"
	obj, ok := ExtractObject(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"action":"HOLD","confidence":0.3}`, obj)
}

func TestExtractObject_NoFence(t *testing.T) {
	raw := `momentum is fading so {"action": "SELL", "confidence": 0.72, "entry_price": 101.5} is my call`
	obj, ok := ExtractObject(raw)
	require.True(t, ok)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(obj), &parsed))
	assert.Equal(t, "SELL", parsed["action"])
}

func TestExtractObject_NestedBraces(t *testing.T) {
	raw := `{"action": "BUY", "detail": {"trend": "up", "note": "resists {100}"}}`
	obj, ok := ExtractObject(raw)
	require.True(t, ok)
	assert.Equal(t, raw, obj)
}

func TestExtractObject_BracesInsideStrings(t *testing.T) {
	raw := `{"reasoning": "the range {98..102} held, \"key\" level", "action": "HOLD"}`
	obj, ok := ExtractObject(raw)
	require.True(t, ok)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(obj), &parsed))
	assert.Equal(t, "HOLD", parsed["action"])
}

func TestExtractObjectWithOffset(t *testing.T) {
	prefix := "Step 1: check RSI. Step 2: decide. "
	payload := `{"action": "HOLD"}`
	obj, offset, ok := ExtractObjectWithOffset(prefix + payload)
	require.True(t, ok)
	assert.Equal(t, payload, obj)
	assert.Equal(t, len(prefix), offset)
}

func TestExtractObjectWithOffset_LeadingWhitespace(t *testing.T) {
	raw := "\n\n  The trend is exhausted.\n" + `{"action": "SELL"}`
	obj, offset, ok := ExtractObjectWithOffset(raw)
	require.True(t, ok)
	assert.Equal(t, `{"action": "SELL"}`, obj)
	// offset must index into the original string, not a trimmed copy
	assert.Equal(t, byte('{'), raw[offset])
	assert.Equal(t, "The trend is exhausted.", strings.TrimSpace(raw[:offset]))
}

func TestPretty(t *testing.T) {
	out := Pretty(`{"action":"BUY","confidence":0.8}`)
	assert.Equal(t, "{\n  \"action\": \"BUY\",\n  \"confidence\": 0.8\n}", out)
	assert.Equal(t, "not json at all", Pretty("not json at all"))
	assert.Equal(t, "", Pretty(""))
}

func TestExtractObject_Failures(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":      "",
		"whitespace": "   \n ",
		"no object":  "only prose, no payload here",
		"unbalanced": `{"action": "BUY"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := ExtractObject(raw)
			assert.False(t, ok)
		})
	}
}
