package engine

import (
	"context"
	"fmt"

	"github.com/lexhub/agentrun/internal/logging"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/internal/vars"
	"github.com/lexhub/agentrun/pkg/schema"
)

// runCustom executes a user-defined step list in order. Each step resolves
// its parameters against the run input and prior step outputs, invokes one
// tool, and stores its output under "step_{i}". A failed step stops the run
// unless the step opts into continue_on_error.
func (e *Executor) runCustom(ctx context.Context, run *store.AgentRun, cfg *schema.AgentConfig, results map[string]any, auth string) error {
	for i, step := range cfg.Steps {
		task, err := e.recorder.CreateTask(ctx, run.ID, i, step.StepName(i))
		if err != nil {
			return err
		}
		taskCtx := logging.WithTaskID(ctx, task.ID)

		params := vars.Resolve(step.Params, run.InputData, results)

		out, invokeErr := e.tools.Invoke(taskCtx, step.Tool, params, auth)
		if invokeErr != nil {
			if err := e.recorder.FailTask(taskCtx, task, invokeErr); err != nil {
				return err
			}
			if !step.ContinueOnError {
				return invokeErr
			}
			e.logger.WarnContext(taskCtx, "step failed, continuing", "step", step.StepName(i), "error", invokeErr)
			continue
		}

		results[fmt.Sprintf("step_%d", i)] = out
		if err := e.recorder.CompleteTask(taskCtx, task, out); err != nil {
			return err
		}
	}
	return nil
}
