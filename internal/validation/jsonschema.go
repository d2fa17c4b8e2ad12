package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/chatflow/pkg/schema"
)

// manifestSchemaJSON is the JSON Schema for TributaryManifest validation.
// Embedded as a constant to avoid filesystem dependencies.
const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://chatflow.dev/schemas/manifest.json",
  "type": "object",
  "required": ["tributaries"],
  "properties": {
    "tributaries": {
      "type": "array",
      "items": { "$ref": "#/$defs/tributary" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "tributary": {
      "type": "object",
      "required": ["name", "engine", "expression"],
      "properties": {
        "name": {
          "type": "string",
          "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"
        },
        "engine": {
          "type": "string",
          "enum": ["cel", "expr", "jq"]
        },
        "expression": {
          "type": "string",
          "minLength": 1
        },
        "description": { "type": "string" },
        "parameter_schema": {
          "type": ["object", "boolean"]
        }
      },
      "additionalProperties": false
    }
  }
}`

const manifestSchemaURL = "https://chatflow.dev/schemas/manifest.json"

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	manifestSchema *jsonschema.Schema

	// mu guards the cache of compiled value schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the manifest schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal manifest schema: %w", err)
	}
	if err := c.AddResource(manifestSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add manifest schema resource: %w", err)
	}

	compiled, err := c.Compile(manifestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	return &JSONSchemaValidator{
		manifestSchema: compiled,
		cache:          make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateManifest checks raw manifest JSON against the manifest schema and
// decodes it. Tributary names must be unique.
func (v *JSONSchemaValidator) ValidateManifest(raw []byte) (*schema.TributaryManifest, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "manifest is not valid JSON").WithCause(err)
	}

	if err := v.manifestSchema.Validate(doc); err != nil {
		return nil, toChatflowError(err)
	}

	var manifest schema.TributaryManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode manifest").WithCause(err)
	}

	// Structural checks that JSON Schema cannot express: duplicate names.
	seen := make(map[string]struct{}, len(manifest.Tributaries))
	for _, def := range manifest.Tributaries {
		if _, exists := seen[def.Name]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate tributary %q", def.Name).
				WithDetails(map[string]any{"name": def.Name})
		}
		seen[def.Name] = struct{}{}
	}

	return &manifest, nil
}

// ValidateValue validates a value against a JSON Schema provided as raw bytes.
// The schema is compiled and cached for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateValue(value any, valueSchema []byte) error {
	if len(valueSchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(valueSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid value schema").WithCause(err)
	}

	// Convert to a JSON-compatible value (json.Number for numbers).
	doc, err := toJSONValue(value)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize value").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toChatflowError(err)
	}

	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions in the compiler.
	url := fmt.Sprintf("chatflow://value-schema/%d", len(v.cache))

	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toChatflowError converts a jsonschema.ValidationError into a ChatflowError
// listing every leaf violation.
func toChatflowError(err error) *schema.ChatflowError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*JSONSchemaValidator)(nil)
