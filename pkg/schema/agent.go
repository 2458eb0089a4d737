package schema

// AgentStatus is the lifecycle status of an agent definition.
// Only active agents may be run.
type AgentStatus string

const (
	AgentStatusActive     AgentStatus = "active"
	AgentStatusPaused     AgentStatus = "paused"
	AgentStatusDeprecated AgentStatus = "deprecated"
)

// RunStatus is the lifecycle status of an agent run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the run status is terminal.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// TaskStatus is the lifecycle status of a single task within a run.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// IsTerminal reports whether the task status is terminal.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusSkipped
}

// TriggerType describes how an agent run is initiated.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
	TriggerWebhook   TriggerType = "webhook"
)

// Built-in agent types. Each selects an execution strategy in the engine;
// "custom" executes the step list from the agent config.
const (
	AgentTypeDocumentAnalyzer  = "document_analyzer"
	AgentTypeDeadlineMonitor   = "deadline_monitor"
	AgentTypeResearchAssistant = "research_assistant"
	AgentTypeComplianceChecker = "compliance_checker"
	AgentTypeCustom            = "custom"
)

// KnownAgentTypes lists all recognized agent types.
var KnownAgentTypes = []string{
	AgentTypeDocumentAnalyzer,
	AgentTypeDeadlineMonitor,
	AgentTypeResearchAssistant,
	AgentTypeComplianceChecker,
	AgentTypeCustom,
}
