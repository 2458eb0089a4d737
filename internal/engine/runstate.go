package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

// Recorder persists run and task lifecycle changes, validating every status
// change against the transition tables before it hits the store. All engine
// writes go through here so that an illegal transition can never be stored.
type Recorder struct {
	store store.Store
}

// NewRecorder creates a Recorder on top of the given store.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// StartRun moves a run from pending to running and stamps started_at.
func (r *Recorder) StartRun(ctx context.Context, run *store.AgentRun) error {
	if cancelled, err := r.refreshCancelled(ctx, run); err != nil {
		return err
	} else if cancelled {
		return schema.NewErrorf(schema.ErrCodeCancelled, "run %q cancelled before start", run.ID)
	}
	if err := CheckRunTransition(run.ID, run.Status, schema.RunStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	running := schema.RunStatusRunning
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:    &running,
		StartedAt: &now,
	}); err != nil {
		return schema.NewError(schema.ErrCodeStore, "start run").WithCause(err)
	}
	run.Status = schema.RunStatusRunning
	run.StartedAt = &now
	return nil
}

// CompleteRun moves a run to completed with its output and stamps completed_at.
// A run cancelled while the executor was working stays cancelled.
func (r *Recorder) CompleteRun(ctx context.Context, run *store.AgentRun, results map[string]any) error {
	if cancelled, err := r.refreshCancelled(ctx, run); err != nil || cancelled {
		return err
	}
	if err := CheckRunTransition(run.ID, run.Status, schema.RunStatusCompleted); err != nil {
		return err
	}
	output, err := json.Marshal(results)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal run output").WithCause(err)
	}
	now := time.Now().UTC()
	completed := schema.RunStatusCompleted
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:      &completed,
		OutputData:  output,
		CompletedAt: &now,
	}); err != nil {
		return schema.NewError(schema.ErrCodeStore, "complete run").WithCause(err)
	}
	run.Status = schema.RunStatusCompleted
	run.CompletedAt = &now
	return nil
}

// FailRun moves a run to failed. Partial results gathered before the failure
// are persisted alongside the error so completed work is not lost.
func (r *Recorder) FailRun(ctx context.Context, run *store.AgentRun, runErr error, partial map[string]any) error {
	if cancelled, err := r.refreshCancelled(ctx, run); err != nil || cancelled {
		return err
	}
	if err := CheckRunTransition(run.ID, run.Status, schema.RunStatusFailed); err != nil {
		return err
	}
	update := store.RunUpdate{}
	failed := schema.RunStatusFailed
	update.Status = &failed
	msg := runErr.Error()
	update.Error = &msg
	now := time.Now().UTC()
	update.CompletedAt = &now
	if len(partial) > 0 {
		if output, err := json.Marshal(partial); err == nil {
			update.OutputData = output
		}
	}
	if err := r.store.UpdateRun(ctx, run.ID, update); err != nil {
		return schema.NewError(schema.ErrCodeStore, "fail run").WithCause(err)
	}
	run.Status = schema.RunStatusFailed
	run.Error = msg
	run.CompletedAt = &now
	return nil
}

// CancelRun flips a pending or running run to cancelled and skips its
// non-terminal tasks. Cancellation is advisory: an executor already past its
// last checkpoint finishes its in-flight work.
func (r *Recorder) CancelRun(ctx context.Context, run *store.AgentRun) error {
	if err := CheckRunTransition(run.ID, run.Status, schema.RunStatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	cancelled := schema.RunStatusCancelled
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:      &cancelled,
		CompletedAt: &now,
	}); err != nil {
		return schema.NewError(schema.ErrCodeStore, "cancel run").WithCause(err)
	}
	if err := r.store.SkipPendingTasks(ctx, run.ID); err != nil {
		return schema.NewError(schema.ErrCodeStore, "skip pending tasks").WithCause(err)
	}
	run.Status = schema.RunStatusCancelled
	run.CompletedAt = &now
	return nil
}

// refreshCancelled re-reads the run before a terminal write and reports
// whether a concurrent cancel already ended it.
func (r *Recorder) refreshCancelled(ctx context.Context, run *store.AgentRun) (bool, error) {
	fresh, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		return false, schema.NewError(schema.ErrCodeStore, "refresh run").WithCause(err)
	}
	if fresh.Status == schema.RunStatusCancelled {
		run.Status = schema.RunStatusCancelled
		run.CompletedAt = fresh.CompletedAt
		return true, nil
	}
	return false, nil
}

// CreateTask inserts a new task in the running state. Every task gets a
// generated ID so later updates address it unambiguously.
func (r *Recorder) CreateTask(ctx context.Context, runID string, position int, name string) (*store.AgentTask, error) {
	now := time.Now().UTC()
	task := &store.AgentTask{
		ID:        uuid.New().String(),
		RunID:     runID,
		Position:  position,
		TaskName:  name,
		Status:    schema.TaskStatusRunning,
		StartedAt: &now,
	}
	if err := r.store.CreateTask(ctx, task); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create task").WithCause(err)
	}
	return task, nil
}

// CompleteTask moves a task to completed with its output.
func (r *Recorder) CompleteTask(ctx context.Context, task *store.AgentTask, output map[string]any) error {
	if err := CheckTaskTransition(task.ID, task.Status, schema.TaskStatusCompleted); err != nil {
		return err
	}
	data, err := json.Marshal(output)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal task output").WithTask(task.ID).WithCause(err)
	}
	now := time.Now().UTC()
	completed := schema.TaskStatusCompleted
	if err := r.store.UpdateTask(ctx, task.ID, store.TaskUpdate{
		Status:      &completed,
		Output:      data,
		CompletedAt: &now,
	}); err != nil {
		return schema.NewError(schema.ErrCodeStore, "complete task").WithTask(task.ID).WithCause(err)
	}
	task.Status = schema.TaskStatusCompleted
	task.CompletedAt = &now
	return nil
}

// FailTask moves a task to failed with its error message.
func (r *Recorder) FailTask(ctx context.Context, task *store.AgentTask, taskErr error) error {
	if err := CheckTaskTransition(task.ID, task.Status, schema.TaskStatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	failed := schema.TaskStatusFailed
	msg := taskErr.Error()
	if err := r.store.UpdateTask(ctx, task.ID, store.TaskUpdate{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	}); err != nil {
		return schema.NewError(schema.ErrCodeStore, "fail task").WithTask(task.ID).WithCause(err)
	}
	task.Status = schema.TaskStatusFailed
	task.Error = msg
	task.CompletedAt = &now
	return nil
}
