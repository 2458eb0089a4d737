package engine

import (
	"context"
	"log/slog"

	"github.com/lexhub/agentrun/internal/logging"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/internal/tools"
	"github.com/lexhub/agentrun/pkg/schema"
)

// Executor drives an agent run to a terminal state. Each agent type selects
// an execution strategy; within a run, work is strictly sequential.
type Executor struct {
	store    store.Store
	recorder *Recorder
	tools    *tools.Registry
	logger   *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(s store.Store, reg *tools.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		store:    s,
		recorder: NewRecorder(s),
		tools:    reg,
		logger:   logger,
	}
}

// Execute runs the given run to completion, failure, or cancellation.
// The returned error reflects why the run failed; the terminal status has
// already been persisted by the time Execute returns.
func (e *Executor) Execute(ctx context.Context, agent *store.AgentDefinition, run *store.AgentRun, auth string) error {
	ctx = logging.WithIDs(ctx, agent.ID, run.ID)

	if err := e.recorder.StartRun(ctx, run); err != nil {
		// A run cancelled before it started is not a failure.
		e.logger.WarnContext(ctx, "run not started", "error", err)
		return err
	}
	e.logger.InfoContext(ctx, "run started", "agent_type", agent.AgentType)

	results := map[string]any{}
	err := e.dispatch(ctx, agent, run, results, auth)
	if err != nil {
		if failErr := e.recorder.FailRun(ctx, run, err, results); failErr != nil {
			e.logger.ErrorContext(ctx, "failed to record run failure", "error", failErr)
		}
		if run.Status == schema.RunStatusCancelled {
			e.logger.InfoContext(ctx, "run cancelled during execution, failure discarded", "error", err)
		} else {
			e.logger.ErrorContext(ctx, "run failed", "error", err)
		}
		return err
	}

	if err := e.recorder.CompleteRun(ctx, run, results); err != nil {
		e.logger.ErrorContext(ctx, "failed to record run completion", "error", err)
		return err
	}
	if run.Status == schema.RunStatusCancelled {
		e.logger.InfoContext(ctx, "run cancelled during execution, result discarded")
		return nil
	}
	e.logger.InfoContext(ctx, "run completed")
	return nil
}

// dispatch selects the execution strategy by agent type. The set is closed:
// an unknown type fails the run instead of silently completing empty.
func (e *Executor) dispatch(ctx context.Context, agent *store.AgentDefinition, run *store.AgentRun, results map[string]any, auth string) error {
	cfg, err := mergedConfig(agent, run)
	if err != nil {
		return err
	}

	switch agent.AgentType {
	case schema.AgentTypeDocumentAnalyzer:
		return e.runDocumentAnalyzer(ctx, run, cfg, results, auth)
	case schema.AgentTypeDeadlineMonitor:
		return e.runDeadlineMonitor(ctx, run, cfg, results, auth)
	case schema.AgentTypeResearchAssistant:
		return e.runResearchAssistant(ctx, run, cfg, results, auth)
	case schema.AgentTypeComplianceChecker:
		return e.runComplianceChecker(ctx, run, cfg, results, auth)
	case schema.AgentTypeCustom:
		return e.runCustom(ctx, run, cfg, results, auth)
	default:
		return schema.NewErrorf(schema.ErrCodeUnrecognizedStrategy,
			"unrecognized agent type %q", agent.AgentType).
			WithDetails(map[string]any{"known_types": schema.KnownAgentTypes})
	}
}

// mergedConfig overlays per-run overrides on the definition config and
// parses the result.
func mergedConfig(agent *store.AgentDefinition, run *store.AgentRun) (*schema.AgentConfig, error) {
	raw, err := schema.MergeConfig(agent.Config, run.Overrides)
	if err != nil {
		return nil, err
	}
	return schema.ParseAgentConfig(raw)
}
