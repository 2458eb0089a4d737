package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Default config values applied when the agent definition omits them.
const (
	DefaultMaxDocuments  = 10
	DefaultAlertDays     = 7
	DefaultContextChunks = 10
)

// ParamValue is a single step parameter: either a literal value or a
// reference to a run input / prior step output. References are written as
// "$name" in the agent config and parsed once at definition load, never
// re-parsed per run.
type ParamValue struct {
	Ref     string
	Literal any
}

// IsRef reports whether the value is a variable reference.
func (p ParamValue) IsRef() bool { return p.Ref != "" }

// Lit builds a literal ParamValue.
func Lit(v any) ParamValue { return ParamValue{Literal: v} }

// Var builds a reference ParamValue.
func Var(name string) ParamValue { return ParamValue{Ref: name} }

// UnmarshalJSON parses "$name" strings as references; everything else,
// including non-string values and the bare "$", is a literal.
func (p *ParamValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.HasPrefix(s, "$") && len(s) > 1 {
			p.Ref = s[1:]
			return nil
		}
		p.Literal = s
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.Literal = v
	return nil
}

// MarshalJSON writes references back in their "$name" form.
func (p ParamValue) MarshalJSON() ([]byte, error) {
	if p.IsRef() {
		return json.Marshal("$" + p.Ref)
	}
	return json.Marshal(p.Literal)
}

// StepSpec is one step of a custom agent workflow.
type StepSpec struct {
	Name            string                `json:"name,omitempty"`
	Tool            string                `json:"tool"`
	Params          map[string]ParamValue `json:"parameters,omitempty"`
	ContinueOnError bool                  `json:"continue_on_error,omitempty"`
}

// AgentConfig is the parsed, strategy-specific agent configuration.
// Unknown keys are preserved in Extra so overrides survive a round trip.
type AgentConfig struct {
	MaxDocuments  int
	AlertDays     int
	ContextChunks int
	Steps         []StepSpec
	Extra         map[string]any
}

type rawAgentConfig struct {
	MaxDocuments  *int       `json:"max_documents,omitempty"`
	AlertDays     *int       `json:"alert_days,omitempty"`
	ContextChunks *int       `json:"context_chunks,omitempty"`
	Steps         []StepSpec `json:"steps,omitempty"`
}

// ParseAgentConfig decodes a raw config mapping into an AgentConfig,
// applying defaults for absent values.
func ParseAgentConfig(raw json.RawMessage) (*AgentConfig, error) {
	cfg := &AgentConfig{
		MaxDocuments:  DefaultMaxDocuments,
		AlertDays:     DefaultAlertDays,
		ContextChunks: DefaultContextChunks,
	}
	if len(raw) == 0 {
		return cfg, nil
	}

	var rc rawAgentConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "invalid agent config: %s", err.Error()).WithCause(err)
	}
	if rc.MaxDocuments != nil {
		cfg.MaxDocuments = *rc.MaxDocuments
	}
	if rc.AlertDays != nil {
		cfg.AlertDays = *rc.AlertDays
	}
	if rc.ContextChunks != nil {
		cfg.ContextChunks = *rc.ContextChunks
	}
	cfg.Steps = rc.Steps

	var extra map[string]any
	if err := json.Unmarshal(raw, &extra); err == nil {
		delete(extra, "max_documents")
		delete(extra, "alert_days")
		delete(extra, "context_chunks")
		delete(extra, "steps")
		if len(extra) > 0 {
			cfg.Extra = extra
		}
	}
	return cfg, nil
}

// MergeConfig overlays override keys on top of a base config mapping.
// The merge is shallow: an override key replaces the base key wholesale.
func MergeConfig(base, overrides json.RawMessage) (json.RawMessage, error) {
	merged := make(map[string]any)
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return nil, NewErrorf(ErrCodeValidation, "invalid base config: %s", err.Error()).WithCause(err)
		}
	}
	if len(overrides) > 0 {
		var ov map[string]any
		if err := json.Unmarshal(overrides, &ov); err != nil {
			return nil, NewErrorf(ErrCodeValidation, "invalid config overrides: %s", err.Error()).WithCause(err)
		}
		for k, v := range ov {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// StepName returns the step's display name, defaulting to "Step {i+1}"
// for unnamed steps at position i.
func (s StepSpec) StepName(i int) string {
	if s.Name != "" {
		return s.Name
	}
	return "Step " + strconv.Itoa(i+1)
}
