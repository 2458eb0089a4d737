package tools

import (
	"context"
	"encoding/json"
)

// Tool is a fixed, named capability that agents invoke during a run.
type Tool interface {
	Name() string
	Schema() ToolSchema
	Invoke(ctx context.Context, input ToolInput) (*ToolOutput, error)
}

// ToolSchema describes the input/output contract of a tool.
type ToolSchema struct {
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// ToolInput is the data provided to a tool at invocation time. Auth is the
// caller's bearer token, passed through to downstream services unchanged.
type ToolInput struct {
	Params map[string]any `json:"params"`
	Auth   string         `json:"-"`
}

// ToolOutput is the result of a tool invocation.
type ToolOutput struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Param helpers used by all tool files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

func stringsParam(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
