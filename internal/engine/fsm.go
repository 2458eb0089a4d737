package engine

import "github.com/lexhub/agentrun/pkg/schema"

// ValidRunTransitions defines the allowed state transitions for runs.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending:   {schema.RunStatusRunning, schema.RunStatusCancelled},
	schema.RunStatusRunning:   {schema.RunStatusCompleted, schema.RunStatusFailed, schema.RunStatusCancelled},
	schema.RunStatusCompleted: {},
	schema.RunStatusFailed:    {},
	schema.RunStatusCancelled: {},
}

// ValidTaskTransitions defines the allowed state transitions for tasks.
var ValidTaskTransitions = map[schema.TaskStatus][]schema.TaskStatus{
	schema.TaskStatusPending:   {schema.TaskStatusRunning, schema.TaskStatusSkipped},
	schema.TaskStatusRunning:   {schema.TaskStatusCompleted, schema.TaskStatusFailed, schema.TaskStatusSkipped},
	schema.TaskStatusCompleted: {},
	schema.TaskStatusFailed:    {},
	schema.TaskStatusSkipped:   {},
}

// CheckRunTransition validates a run state transition.
func CheckRunTransition(runID string, from, to schema.RunStatus) error {
	if !isValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": runID, "from": string(from), "to": string(to)})
	}
	return nil
}

// CheckTaskTransition validates a task state transition.
func CheckTaskTransition(taskID string, from, to schema.TaskStatus) error {
	if !isValidTaskTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid task transition: %s -> %s", from, to).
			WithTask(taskID).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}
	return nil
}

func isValidRunTransition(from, to schema.RunStatus) bool {
	allowed, ok := ValidRunTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func isValidTaskTransition(from, to schema.TaskStatus) bool {
	allowed, ok := ValidTaskTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}
