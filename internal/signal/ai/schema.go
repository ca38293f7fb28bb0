package ai

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// signalSchema constrains the model's reply before any field is trusted.
const signalSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["action", "confidence"],
  "properties": {
    "action": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "entry_price": {"type": "number", "exclusiveMinimum": 0},
    "stop_loss": {"type": "number", "exclusiveMinimum": 0},
    "take_profit": {"type": "number", "exclusiveMinimum": 0},
    "reasoning": {"type": "string"}
  }
}`

var compiledSignalSchema = jsonschema.MustCompileString("signal.json", signalSchema)

// validateReply checks the extracted JSON object against the schema.
func validateReply(raw string) error {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return fmt.Errorf("parse model json: %w", err)
	}
	if err := compiledSignalSchema.Validate(v); err != nil {
		return fmt.Errorf("model json rejected by schema: %w", err)
	}
	return nil
}
