package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Pretty re-indents a JSON payload for logging, preserving key order.
// Anything that does not parse as JSON comes back unchanged.
func Pretty(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
