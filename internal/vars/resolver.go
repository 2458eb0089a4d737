// Package vars resolves step parameters for custom agent workflows.
//
// A parameter is either a literal, passed through untouched, or a single
// named reference looked up against the run input first and prior step
// outputs second. There is no expression language and no nested traversal;
// an unresolved reference yields nil rather than an error.
package vars

import "github.com/lexhub/agentrun/pkg/schema"

// Resolve maps a step's parameter specs to concrete values using the run
// input and the accumulated step outputs.
func Resolve(params map[string]schema.ParamValue, input, outputs map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{}
	}

	resolved := make(map[string]any, len(params))
	for key, p := range params {
		if !p.IsRef() {
			resolved[key] = p.Literal
			continue
		}
		resolved[key] = lookup(p.Ref, input, outputs)
	}
	return resolved
}

func lookup(name string, input, outputs map[string]any) any {
	if v, ok := input[name]; ok {
		return v
	}
	if v, ok := outputs[name]; ok {
		return v
	}
	return nil
}
