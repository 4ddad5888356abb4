package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema is the JSON Schema for config.json, matching spec.md §6's
// documented shape. It is compiled once and reused across Load calls.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": true,
  "properties": {
    "server": {
      "type": "object",
      "properties": { "port": { "type": "integer", "minimum": 1, "maximum": 65535 } }
    },
    "profile": { "type": "string" },
    "transports": {
      "type": "array",
      "items": { "type": "string", "enum": ["stdio", "ws", "http"] }
    },
    "rbac": {
      "type": "object",
      "properties": {
        "policies_path": { "type": "string" },
        "fs_allowlist": { "type": "array", "items": { "type": "string" } }
      }
    },
    "observability": {
      "type": "object",
      "properties": {
        "otel_exporter": { "type": "string" },
        "log_level": { "type": "string" },
        "log_format": { "type": "string" }
      }
    },
    "context_engine": {
      "type": "object",
      "properties": {
        "enabled": { "type": "boolean" },
        "changeCapPctPerDay": { "type": "number", "minimum": 0, "maximum": 100 },
        "minConfidence": { "type": "number", "minimum": 0, "maximum": 1 }
      }
    },
    "performance": {
      "type": "object",
      "properties": {
        "maxInflight": { "type": "integer", "minimum": 1 },
        "batchSize": { "type": "integer", "minimum": 1 },
        "queueWatermark": { "type": "number", "minimum": 0, "maximum": 1 }
      }
    },
    "sandbox": {
      "type": "object",
      "properties": {
        "runtime_binary": { "type": "string" },
        "timeout_ms": { "type": "integer", "minimum": 0 },
        "session_compress_script": { "type": "string" }
      }
    },
    "manifest_dir": { "type": "string" }
  }
}`

var (
	schemaOnce    sync.Once
	compiledSchma *jsonschema.Schema
	schemaErr     error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchma, schemaErr = jsonschema.CompileString("config.schema.json", configSchema)
	})
	return compiledSchma, schemaErr
}

// Validate checks a raw, $include-resolved config document against the
// JSON Schema. A violation here is a startup misconfiguration per spec
// §6 Exit Codes: non-zero exit, no daemon start.
func Validate(raw map[string]any) error {
	schema, err := compiled()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode config for validation: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode config for validation: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
