package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lexhub/agentrun/internal/logging"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

// runDocumentAnalyzer analyzes each document source of the run's matter,
// one task per source. A failed analysis marks its task failed and moves on;
// only infrastructure errors fail the run.
func (e *Executor) runDocumentAnalyzer(ctx context.Context, run *store.AgentRun, cfg *schema.AgentConfig, results map[string]any, auth string) error {
	sources, err := e.store.ListSources(ctx, run.MatterID, cfg.MaxDocuments)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "list matter sources").WithCause(err)
	}

	for i, src := range sources {
		task, err := e.recorder.CreateTask(ctx, run.ID, i, "Analyze "+src.SourceName)
		if err != nil {
			return err
		}
		taskCtx := logging.WithTaskID(ctx, task.ID)

		out, invokeErr := e.tools.Invoke(taskCtx, "analyze_document", map[string]any{
			"source_id": src.ID,
			"matter_id": run.MatterID,
		}, auth)
		if invokeErr != nil {
			e.logger.WarnContext(taskCtx, "document analysis failed", "source", src.SourceName, "error", invokeErr)
			if err := e.recorder.FailTask(taskCtx, task, invokeErr); err != nil {
				return err
			}
			continue
		}

		results["analyze_"+src.ID] = out
		if err := e.recorder.CompleteTask(taskCtx, task, out); err != nil {
			return err
		}
	}
	return nil
}

// runDeadlineMonitor alerts matter teams about incomplete deadlines falling
// within the alert window. It records no per-item tasks; its output is the
// count of deadlines processed.
func (e *Executor) runDeadlineMonitor(ctx context.Context, run *store.AgentRun, cfg *schema.AgentConfig, results map[string]any, auth string) error {
	cutoff := time.Now().AddDate(0, 0, cfg.AlertDays).Format("2006-01-02")

	deadlines, err := e.store.ListEvents(ctx, store.EventFilter{
		DeadlineOnly: true,
		Incomplete:   true,
		DateOnBefore: cutoff,
	})
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "list deadlines").WithCause(err)
	}

	for _, deadline := range deadlines {
		userIDs, err := e.store.ListTeamUserIDs(ctx, deadline.MatterID)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "list matter team").WithCause(err)
		}
		if len(userIDs) == 0 {
			continue
		}

		_, err = e.tools.Invoke(ctx, "send_notification", map[string]any{
			"user_ids": userIDs,
			"message":  fmt.Sprintf("Upcoming deadline: %s on %s", deadline.Title, deadline.EventDate),
			"priority": "high",
		}, auth)
		if err != nil {
			return err
		}
	}

	results["deadlines_processed"] = len(deadlines)
	return nil
}

// runResearchAssistant answers a single research query via RAG. An empty
// query is a validation error raised before any tool call.
func (e *Executor) runResearchAssistant(ctx context.Context, run *store.AgentRun, cfg *schema.AgentConfig, results map[string]any, auth string) error {
	query, _ := run.InputData["query"].(string)
	if query == "" {
		return schema.NewError(schema.ErrCodeValidation, "research query required")
	}

	out, err := e.tools.Invoke(ctx, "rag_query", map[string]any{
		"query":     query,
		"matter_id": run.MatterID,
		"top_k":     cfg.ContextChunks,
	}, auth)
	if err != nil {
		return err
	}

	results["research"] = out
	return nil
}

// runComplianceChecker reviews every source on the matter with a fixed
// review prompt. All-or-nothing: the first failed review fails the run.
func (e *Executor) runComplianceChecker(ctx context.Context, run *store.AgentRun, cfg *schema.AgentConfig, results map[string]any, auth string) error {
	sources, err := e.store.ListSources(ctx, run.MatterID, 0)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "list matter sources").WithCause(err)
	}

	complianceIssues := make([]any, 0, len(sources))
	for _, src := range sources {
		out, err := e.tools.Invoke(ctx, "llm_complete", map[string]any{
			"task_type": "analysis",
			"prompt":    compliancePrompt(src),
			"matter_id": run.MatterID,
		}, auth)
		if err != nil {
			return err
		}

		complianceIssues = append(complianceIssues, map[string]any{
			"source_id":   src.ID,
			"source_name": src.SourceName,
			"result":      out,
		})
	}

	results["compliance_check"] = complianceIssues
	return nil
}

func compliancePrompt(src *store.MatterSource) string {
	summary := src.Summary
	if summary == "" {
		summary = "No summary available"
	}
	return fmt.Sprintf(`Review this document for compliance issues:

Document: %s
Summary: %s

Check for:
1. Missing required information
2. Regulatory compliance issues
3. Deadline compliance
4. Documentation gaps

Return a JSON object with: {"compliant": true/false, "issues": [], "recommendations": []}`, src.SourceName, summary)
}
