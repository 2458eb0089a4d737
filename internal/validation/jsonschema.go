package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/lexhub/agentrun/pkg/schema"
)

// stepsSchemaJSON is the JSON Schema for a custom agent's step list.
// Embedded as a constant to avoid filesystem dependencies.
const stepsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://lexhub.dev/schemas/steps.json",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["tool"],
    "properties": {
      "name": { "type": "string" },
      "tool": { "type": "string", "minLength": 1 },
      "parameters": { "type": "object" },
      "continue_on_error": { "type": "boolean" }
    },
    "additionalProperties": false
  }
}`

// JSONSchemaValidator validates tool inputs and custom step lists using
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	stepsSchema *jsonschema.Schema

	// mu guards the cache for dynamic schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the steps schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(stepsSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal steps schema: %w", err)
	}
	if err := c.AddResource("https://lexhub.dev/schemas/steps.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add steps schema resource: %w", err)
	}

	compiled, err := c.Compile("https://lexhub.dev/schemas/steps.json")
	if err != nil {
		return nil, fmt.Errorf("compile steps schema: %w", err)
	}

	return &JSONSchemaValidator{
		stepsSchema: compiled,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateSteps validates a custom agent's step list against the steps
// schema. An empty list is trivially valid.
func (v *JSONSchemaValidator) ValidateSteps(steps []schema.StepSpec) error {
	if len(steps) == 0 {
		return nil
	}
	doc, err := toJSONValue(steps)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize steps").WithCause(err)
	}
	if err := v.stepsSchema.Validate(doc); err != nil {
		return toAgentError(err)
	}
	return nil
}

// ValidateToolInput validates resolved tool parameters against the tool's
// input schema. A missing required property maps to MISSING_PARAMETER; any
// other violation is a VALIDATION_ERROR. The schema is compiled and cached
// for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateToolInput(params map[string]any, inputSchema []byte) error {
	if len(inputSchema) == 0 {
		return nil // no schema means no validation needed
	}
	if params == nil {
		params = map[string]any{}
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid tool input schema").WithCause(err)
	}

	// Convert params to JSON-compatible value (json.Number for numbers).
	doc, err := toJSONValue(params)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize parameters").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		if missing := missingRequired(err); len(missing) > 0 {
			return schema.NewErrorf(schema.ErrCodeMissingParameter,
				"missing required parameter(s): %s", strings.Join(missing, ", ")).
				WithDetails(map[string]any{"missing": missing})
		}
		return toAgentError(err)
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
	url := fmt.Sprintf("agentrun://tool-schema/%d", len(v.cache))

	// Use a fresh compiler per dynamic schema to avoid resource collision.
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
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// missingRequired walks a ValidationError tree and collects property names
// reported by required-keyword violations.
func missingRequired(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil
	}
	var missing []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if req, ok := e.ErrorKind.(*kind.Required); ok {
			missing = append(missing, req.Missing...)
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return missing
}

// toAgentError converts a jsonschema.ValidationError into an AgentError
// with clear, actionable messages.
func toAgentError(err error) *schema.AgentError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
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

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
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
