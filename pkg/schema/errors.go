package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInactiveAgent        = "INACTIVE_AGENT"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUnknownTool          = "UNKNOWN_TOOL"
	ErrCodeMissingParameter     = "MISSING_PARAMETER"
	ErrCodeToolExecution        = "TOOL_EXECUTION_ERROR"
	ErrCodeUnrecognizedStrategy = "UNRECOGNIZED_STRATEGY"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeStore                = "STORE_ERROR"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeCancelled            = "CANCELLED"
)

// AgentError is the structured error type for all engine operations.
type AgentError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TaskID  string         `json:"task_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AgentError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("[%s] task %s: %s", e.Code, e.TaskID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgentError.
func NewError(code, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}

// NewErrorf creates a new AgentError with a formatted message.
func NewErrorf(code, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTask attaches a task ID to the error.
func (e *AgentError) WithTask(taskID string) *AgentError {
	e.TaskID = taskID
	return e
}

// WithCause attaches an underlying cause.
func (e *AgentError) WithCause(err error) *AgentError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}
