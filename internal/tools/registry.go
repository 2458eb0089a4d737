package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/lexhub/agentrun/internal/validation"
	"github.com/lexhub/agentrun/pkg/schema"
)

// Registry is the thread-safe catalog of tools available to agents.
// The tool set is fixed at startup; agents cannot define new tools.
type Registry struct {
	validator *validation.JSONSchemaValidator

	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry(validator *validation.JSONSchemaValidator) *Registry {
	return &Registry{
		validator: validator,
		tools:     make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Returns error on duplicate name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownTool, "tool %q not registered", name)
	}
	return tool, nil
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns info for all registered tools, sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, tool := range r.tools {
		s := tool.Schema()
		infos = append(infos, ToolInfo{
			Name:        tool.Name(),
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Invoke looks up a tool, validates the resolved parameters against its
// input schema, and executes it. Nil-valued parameters are dropped first:
// an unresolved variable reference reads as an omitted parameter, so a
// required one is MISSING_PARAMETER and an optional one passes through.
// An unknown name is UNKNOWN_TOOL; anything the tool itself reports
// surfaces as TOOL_EXECUTION_ERROR.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any, auth string) (map[string]any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	params = withoutNullParams(params)
	if r.validator != nil {
		if err := r.validator.ValidateToolInput(params, tool.Schema().InputSchema); err != nil {
			return nil, err
		}
	}

	out, err := tool.Invoke(ctx, ToolInput{Params: params, Auth: auth})
	if err != nil {
		var agentErr *schema.AgentError
		if errors.As(err, &agentErr) {
			return nil, agentErr
		}
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "tool %q failed: %v", name, err).WithCause(err)
	}

	result := map[string]any{}
	if out != nil && len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, &result); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "tool %q returned invalid output", name).WithCause(err)
		}
	}
	return result, nil
}

// withoutNullParams strips nil-valued parameters so the tool sees them as
// absent rather than as JSON null.
func withoutNullParams(params map[string]any) map[string]any {
	hasNil := false
	for _, v := range params {
		if v == nil {
			hasNil = true
			break
		}
	}
	if !hasNil {
		return params
	}

	filtered := make(map[string]any, len(params))
	for k, v := range params {
		if v != nil {
			filtered[k] = v
		}
	}
	return filtered
}
