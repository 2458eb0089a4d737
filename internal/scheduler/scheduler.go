package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lexhub/agentrun/internal/engine"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

// RunStarter is the interface the scheduler uses to trigger agent runs.
// Satisfied by the engine's Launcher.
type RunStarter interface {
	Start(ctx context.Context, orgID, agentID string, req engine.RunRequest, auth string) (*engine.StartedRun, error)
}

// Scheduler polls the store for active scheduled agents and triggers those
// whose cron schedule is due.
type Scheduler struct {
	store   store.Store
	starter RunStarter
	parser  cron.Parser
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // agent IDs currently being triggered (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, starter RunStarter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		starter:  starter,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all active scheduled agents and triggers those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	active := schema.AgentStatusActive
	scheduled := schema.TriggerScheduled
	agents, err := s.store.ListDefinitions(ctx, store.DefinitionFilter{
		Status:      &active,
		TriggerType: &scheduled,
	})
	if err != nil {
		s.logger.Error("failed to list scheduled agents", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, agent := range agents {
		if agent.ScheduleCron == "" {
			continue
		}
		if agent.NextRunAt == nil || !agent.NextRunAt.After(now) {
			if !s.tryAcquire(agent.ID) {
				continue // already triggering (dedup)
			}
			if err := s.triggerAgent(ctx, agent, now); err != nil {
				s.logger.Error("failed to trigger scheduled agent",
					slog.String("agent_id", agent.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(agent.ID)
		}
	}
}

// triggerAgent starts a run for a due agent and advances its schedule.
func (s *Scheduler) triggerAgent(ctx context.Context, agent *store.AgentDefinition, now time.Time) error {
	s.logger.Info("triggering scheduled agent",
		slog.String("agent_id", agent.ID),
		slog.String("agent_type", agent.AgentType),
	)

	started, err := s.starter.Start(ctx, agent.OrgID, agent.ID, engine.RunRequest{
		TriggeredBy: "scheduler",
	}, "")
	if err != nil {
		s.logger.Error("scheduled run rejected",
			slog.String("agent_id", agent.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("scheduled run started",
			slog.String("agent_id", agent.ID),
			slog.String("run_id", started.RunID),
		)
	}

	// Advance the schedule even when the trigger was rejected, otherwise a
	// broken agent is retried every tick.
	return s.advanceSchedule(ctx, agent, now)
}

func (s *Scheduler) advanceSchedule(ctx context.Context, agent *store.AgentDefinition, now time.Time) error {
	nextRun, err := s.CalculateNextRun(agent.ScheduleCron, now)
	if err != nil {
		return fmt.Errorf("calculate next run for agent %q: %w", agent.ID, err)
	}

	return s.store.UpdateDefinitionSchedule(ctx, agent.ID, store.ScheduleUpdate{
		LastRunAt: &now,
		NextRunAt: &nextRun,
	})
}

// tryAcquire returns true and marks the agent as in-flight if it is not already being triggered.
func (s *Scheduler) tryAcquire(agentID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[agentID]; ok {
		return false
	}
	s.inflight[agentID] = struct{}{}
	return true
}

// release removes the agent from the in-flight set.
func (s *Scheduler) release(agentID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, agentID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
