package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/internal/validation"
	"github.com/lexhub/agentrun/pkg/schema"
)

// RunRequest carries the caller-supplied inputs of a run trigger.
type RunRequest struct {
	MatterID    string          `json:"matter_id,omitempty"`
	InputData   map[string]any  `json:"input_data,omitempty"`
	Overrides   json.RawMessage `json:"config_overrides,omitempty"`
	TriggeredBy string          `json:"-"`
}

// StartedRun is the immediate acknowledgement of an accepted run.
type StartedRun struct {
	RunID  string           `json:"run_id"`
	Status schema.RunStatus `json:"status"`
}

// Launcher validates run triggers and hands accepted runs to the Executor
// in the background. Triggering is fire-and-forget: the caller gets a run ID
// back while execution proceeds on a detached context.
type Launcher struct {
	store     store.Store
	executor  *Executor
	validator *validation.JSONSchemaValidator
	logger    *slog.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(s store.Store, executor *Executor, validator *validation.JSONSchemaValidator, logger *slog.Logger) *Launcher {
	return &Launcher{store: s, executor: executor, validator: validator, logger: logger}
}

// Start triggers a run of the given agent on behalf of orgID. The agent must
// exist within the org, be active, and carry a well-formed config once the
// overrides are merged in; a malformed custom step list is rejected here,
// before any run row exists. Execution happens asynchronously after the
// pending run row is inserted.
func (l *Launcher) Start(ctx context.Context, orgID, agentID string, req RunRequest, auth string) (*StartedRun, error) {
	agent, err := l.store.GetDefinitionForOrg(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != schema.AgentStatusActive {
		return nil, schema.NewErrorf(schema.ErrCodeInactiveAgent, "agent %q is not active", agentID).
			WithDetails(map[string]any{"status": string(agent.Status)})
	}
	if err := l.checkConfig(agent, req.Overrides); err != nil {
		return nil, err
	}

	input := make(map[string]any, len(req.InputData)+1)
	for k, v := range req.InputData {
		input[k] = v
	}
	if req.MatterID != "" {
		input["matter_id"] = req.MatterID
	}

	run := &store.AgentRun{
		ID:          uuid.New().String(),
		AgentID:     agent.ID,
		MatterID:    req.MatterID,
		TriggeredBy: req.TriggeredBy,
		Status:      schema.RunStatusPending,
		InputData:   input,
		Overrides:   req.Overrides,
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create run").WithCause(err)
	}

	// Detach from the request context so the run outlives the HTTP call.
	execCtx := context.WithoutCancel(ctx)
	go func() {
		if err := l.executor.Execute(execCtx, agent, run, auth); err != nil {
			l.logger.Error("background run finished with error", "run_id", run.ID, "error", err)
		}
	}()

	return &StartedRun{RunID: run.ID, Status: schema.RunStatusPending}, nil
}

// checkConfig parses the merged config and, for custom agents, validates
// the step list against the steps schema.
func (l *Launcher) checkConfig(agent *store.AgentDefinition, overrides json.RawMessage) error {
	merged, err := schema.MergeConfig(agent.Config, overrides)
	if err != nil {
		return err
	}
	cfg, err := schema.ParseAgentConfig(merged)
	if err != nil {
		return err
	}
	if agent.AgentType == schema.AgentTypeCustom && l.validator != nil {
		return l.validator.ValidateSteps(cfg.Steps)
	}
	return nil
}

// Cancel flips a pending or running run to cancelled. The flip is advisory:
// in-flight tool calls are not interrupted, but the run's terminal status
// stays cancelled even if the executor finishes its work afterwards.
func (l *Launcher) Cancel(ctx context.Context, runID string) error {
	run, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q cannot be cancelled in status %s", runID, run.Status)
	}
	return NewRecorder(l.store).CancelRun(ctx, run)
}
