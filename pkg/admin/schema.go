package admin

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains config documents submitted through the admin API.
// Structural validation happens here; semantic checks (token presence,
// provider names) are the config provider's job.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "telegram": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "bot_token": {"type": "string"}
      },
      "additionalProperties": false
    },
    "admin": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      },
      "additionalProperties": false
    },
    "ai": {
      "type": "object",
      "properties": {
        "provider": {"type": "string", "enum": ["openai", "anthropic"]},
        "api_key": {"type": "string"},
        "classifier_model": {"type": "string"},
        "reply_model": {"type": "string"}
      },
      "additionalProperties": false
    },
    "ingest": {
      "type": "object",
      "properties": {
        "cooldown_seconds": {"type": "integer", "minimum": 0},
        "fetch_timeout_seconds": {"type": "integer", "minimum": 1},
        "classify_timeout_seconds": {"type": "integer", "minimum": 1}
      },
      "additionalProperties": false
    },
    "reply": {
      "type": "object",
      "properties": {
        "probability": {"type": "number", "minimum": 0, "maximum": 1},
        "menu_sample_cap": {"type": "integer", "minimum": 1}
      },
      "additionalProperties": false
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string", "enum": ["trace", "debug", "info", "warn", "error"]},
        "file": {"type": "string"}
      },
      "additionalProperties": false
    },
    "data_dir": {"type": "string"}
  },
  "additionalProperties": false
}`

// ValidateConfigJSON checks a config document against the schema
func ValidateConfigJSON(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("invalid config document: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
	}

	return nil
}
