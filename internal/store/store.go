package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Agent definitions
	CreateDefinition(ctx context.Context, def *AgentDefinition) error
	GetDefinition(ctx context.Context, id string) (*AgentDefinition, error)
	GetDefinitionForOrg(ctx context.Context, orgID, id string) (*AgentDefinition, error)
	ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*AgentDefinition, error)
	UpdateDefinitionSchedule(ctx context.Context, id string, update ScheduleUpdate) error

	// Runs
	CreateRun(ctx context.Context, run *AgentRun) error
	GetRun(ctx context.Context, id string) (*AgentRun, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*AgentRun, error)

	// Tasks
	CreateTask(ctx context.Context, task *AgentTask) error
	GetTask(ctx context.Context, id string) (*AgentTask, error)
	UpdateTask(ctx context.Context, id string, update TaskUpdate) error
	ListTasks(ctx context.Context, runID string) ([]*AgentTask, error)
	SkipPendingTasks(ctx context.Context, runID string) error

	// Matter events
	CreateEvent(ctx context.Context, event *MatterEvent) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*MatterEvent, error)

	// Matter sources
	ListSources(ctx context.Context, matterID string, limit int) ([]*MatterSource, error)

	// Matter team
	ListTeamUserIDs(ctx context.Context, matterID string) ([]string, error)

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error

	// Document templates
	GetTemplate(ctx context.Context, id string) (*DocumentTemplate, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
