package store

import (
	"encoding/json"
	"time"

	"github.com/lexhub/agentrun/pkg/schema"
)

// AgentDefinition is the persisted agent configuration. Definitions are
// created and edited by the management surface; the engine treats them as
// read-only, except for the scheduler bookkeeping columns.
type AgentDefinition struct {
	ID              string             `json:"id"`
	OrgID           string             `json:"org_id"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	AgentType       string             `json:"agent_type"`
	Icon            string             `json:"icon,omitempty"`
	Status          schema.AgentStatus `json:"status"`
	Capabilities    []string           `json:"capabilities,omitempty"`
	Config          json.RawMessage    `json:"config,omitempty"`
	TriggerType     schema.TriggerType `json:"trigger_type"`
	ScheduleCron    string             `json:"schedule_cron,omitempty"`
	VisibilityScope string             `json:"visibility_scope,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	LastRunAt       *time.Time         `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time         `json:"next_run_at,omitempty"`
}

// AgentRun is one execution instance of an agent.
type AgentRun struct {
	ID          string           `json:"id"`
	AgentID     string           `json:"agent_id"`
	MatterID    string           `json:"matter_id,omitempty"`
	TriggeredBy string           `json:"triggered_by,omitempty"`
	Status      schema.RunStatus `json:"status"`
	InputData   map[string]any   `json:"input_data,omitempty"`
	OutputData  json.RawMessage  `json:"output_data,omitempty"`
	Overrides   json.RawMessage  `json:"config_overrides,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// AgentTask is one unit of work within a run. Tasks get a generated ID at
// creation and a position ordinal so that two tasks sharing a display name
// stay unambiguous.
type AgentTask struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	Position    int               `json:"position"`
	TaskName    string            `json:"task_name"`
	Status      schema.TaskStatus `json:"status"`
	Output      json.RawMessage   `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// MatterSource is a document source attached to a matter.
type MatterSource struct {
	ID         string    `json:"id"`
	MatterID   string    `json:"matter_id"`
	SourceName string    `json:"source_name"`
	Summary    string    `json:"summary,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MatterEvent is a calendar event or deadline on a matter.
type MatterEvent struct {
	ID          string    `json:"id"`
	MatterID    string    `json:"matter_id"`
	Title       string    `json:"title"`
	EventDate   string    `json:"event_date"` // YYYY-MM-DD
	EventType   string    `json:"event_type"`
	IsDeadline  bool      `json:"is_deadline"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification is a per-user notification record written by the
// send_notification tool.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentTemplate is a drafting template read by the draft_document tool.
type DocumentTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Filter and update types ---

// DefinitionFilter specifies criteria for listing agent definitions.
type DefinitionFilter struct {
	OrgID       string              `json:"org_id,omitempty"`
	Status      *schema.AgentStatus `json:"status,omitempty"`
	TriggerType *schema.TriggerType `json:"trigger_type,omitempty"`
	Limit       int                 `json:"limit,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	AgentID     string            `json:"agent_id,omitempty"`
	MatterID    string            `json:"matter_id,omitempty"`
	TriggeredBy string            `json:"triggered_by,omitempty"`
	Status      *schema.RunStatus `json:"status,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// RunUpdate specifies mutable fields of a run.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	OutputData  json.RawMessage   `json:"output_data,omitempty"`
	Error       *string           `json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// TaskUpdate specifies mutable fields of a task.
type TaskUpdate struct {
	Status      *schema.TaskStatus `json:"status,omitempty"`
	Output      json.RawMessage    `json:"output,omitempty"`
	Error       *string            `json:"error,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// EventFilter specifies criteria for listing matter events.
type EventFilter struct {
	MatterID     string `json:"matter_id,omitempty"`
	DeadlineOnly bool   `json:"deadline_only,omitempty"`
	Incomplete   bool   `json:"incomplete,omitempty"`
	DateOnBefore string `json:"date_on_before,omitempty"` // YYYY-MM-DD inclusive
	Limit        int    `json:"limit,omitempty"`
}

// ScheduleUpdate specifies the scheduler bookkeeping fields of a definition.
type ScheduleUpdate struct {
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
