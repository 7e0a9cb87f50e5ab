package team

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema coerces an event payload into the shape its handler expects.
// A returned error marks the event invalid; it never aborts dispatch.
type Schema interface {
	Coerce(payload map[string]any) (map[string]any, error)
}

// =============================================================================
// JSON Schema
// =============================================================================

// JSONSchema 以 JSON Schema 校验 payload，并为缺失的顶层属性填充 default
type JSONSchema struct {
	schema   *gojsonschema.Schema
	defaults map[string]any
}

// NewJSONSchema compiles a JSON Schema document.
func NewJSONSchema(document string) (*JSONSchema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	var shape struct {
		Properties map[string]struct {
			Default any `json:"default"`
		} `json:"properties"`
	}
	if err := json.Unmarshal([]byte(document), &shape); err != nil {
		return nil, fmt.Errorf("read payload schema: %w", err)
	}
	defaults := make(map[string]any)
	for name, prop := range shape.Properties {
		if prop.Default != nil {
			defaults[name] = prop.Default
		}
	}
	return &JSONSchema{schema: compiled, defaults: defaults}, nil
}

// MustJSONSchema is NewJSONSchema for package-level schema tables.
func MustJSONSchema(document string) *JSONSchema {
	s, err := NewJSONSchema(document)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *JSONSchema) Coerce(payload map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(payload)+len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	for k, v := range payload {
		out[k] = v
	}

	result, err := s.schema.Validate(gojsonschema.NewGoLoader(out))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var buf bytes.Buffer
		for i, e := range result.Errors() {
			if i > 0 {
				buf.WriteString("; ")
			}
			buf.WriteString(e.String())
		}
		return nil, errors.New(buf.String())
	}
	return out, nil
}

// =============================================================================
// Go struct
// =============================================================================

// StructSchema decodes the payload into T, rejecting unknown fields, and
// re-encodes the typed value so zero values and json tags are applied.
type StructSchema[T any] struct{}

func (StructSchema[T]) Coerce(payload map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var typed T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&typed); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}
