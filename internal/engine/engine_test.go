package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/internal/tools"
	"github.com/lexhub/agentrun/internal/validation"
	"github.com/lexhub/agentrun/pkg/schema"
)

// recordingTool is a stub tool that records its invocations.
type recordingTool struct {
	name string

	mu     sync.Mutex
	calls  []map[string]any
	result map[string]any
	err    error
}

func (r *recordingTool) Name() string             { return r.name }
func (r *recordingTool) Schema() tools.ToolSchema { return tools.ToolSchema{Description: "stub"} }

func (r *recordingTool) Invoke(ctx context.Context, input tools.ToolInput) (*tools.ToolOutput, error) {
	r.mu.Lock()
	r.calls = append(r.calls, input.Params)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	result := r.result
	if result == nil {
		result = map[string]any{"ok": true}
	}
	data, _ := json.Marshal(result)
	return &tools.ToolOutput{Data: data}, nil
}

func (r *recordingTool) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingTool) call(i int) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

type engineEnv struct {
	store    *memStore
	registry *tools.Registry
	executor *Executor
	launcher *Launcher
}

func newEngineEnv(t *testing.T, stubs ...*recordingTool) *engineEnv {
	t.Helper()
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	reg := tools.NewRegistry(v)
	for _, stub := range stubs {
		require.NoError(t, reg.Register(stub))
	}

	s := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := NewExecutor(s, reg, logger)
	return &engineEnv{
		store:    s,
		registry: reg,
		executor: exec,
		launcher: NewLauncher(s, exec, v, logger),
	}
}

func (env *engineEnv) seedAgent(t *testing.T, agentType string, config string) *store.AgentDefinition {
	t.Helper()
	def := &store.AgentDefinition{
		ID:          uuid.New().String(),
		OrgID:       "org-1",
		Name:        "Test Agent",
		AgentType:   agentType,
		Status:      schema.AgentStatusActive,
		TriggerType: schema.TriggerManual,
	}
	if config != "" {
		def.Config = json.RawMessage(config)
	}
	require.NoError(t, env.store.CreateDefinition(context.Background(), def))
	return def
}

func (env *engineEnv) seedRun(t *testing.T, agentID, matterID string, input map[string]any) *store.AgentRun {
	t.Helper()
	run := &store.AgentRun{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		MatterID:  matterID,
		Status:    schema.RunStatusPending,
		InputData: input,
	}
	require.NoError(t, env.store.CreateRun(context.Background(), run))
	return run
}

func (env *engineEnv) runOutput(t *testing.T, runID string) map[string]any {
	t.Helper()
	run, err := env.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	out := map[string]any{}
	if len(run.OutputData) > 0 {
		require.NoError(t, json.Unmarshal(run.OutputData, &out))
	}
	return out
}

// --- Strategy dispatch ---

func TestExecute_UnrecognizedAgentType(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, "mystery_type", "")
	run := env.seedRun(t, agent.ID, "", nil)

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeUnrecognizedStrategy, agentErr.Code)

	stored, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "mystery_type")
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)
}

// --- document_analyzer ---

func TestDocumentAnalyzer_PerDocumentTolerance(t *testing.T) {
	env := newEngineEnv(t)

	// Fail the second source only.
	calls := 0
	analyze := &funcTool{name: "analyze_document", fn: func(ctx context.Context, input tools.ToolInput) (*tools.ToolOutput, error) {
		calls++
		if input.Params["source_id"] == "s-2" {
			return nil, schema.NewError(schema.ErrCodeToolExecution, "analysis blew up")
		}
		data, _ := json.Marshal(map[string]any{"summary": "fine"})
		return &tools.ToolOutput{Data: data}, nil
	}}
	require.NoError(t, env.registry.Register(analyze))

	env.store.sources = []*store.MatterSource{
		{ID: "s-1", MatterID: "m-1", SourceName: "contract.pdf"},
		{ID: "s-2", MatterID: "m-1", SourceName: "brief.pdf"},
		{ID: "s-3", MatterID: "m-1", SourceName: "exhibit.pdf"},
	}

	agent := env.seedAgent(t, schema.AgentTypeDocumentAnalyzer, "")
	run := env.seedRun(t, agent.ID, "m-1", nil)

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, "tok"))

	stored, err := env.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, stored.Status)

	tasksList, err := env.store.ListTasks(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, tasksList, 3)
	assert.Equal(t, "Analyze contract.pdf", tasksList[0].TaskName)
	assert.Equal(t, schema.TaskStatusCompleted, tasksList[0].Status)
	assert.Equal(t, schema.TaskStatusFailed, tasksList[1].Status)
	assert.Contains(t, tasksList[1].Error, "analysis blew up")
	assert.Equal(t, schema.TaskStatusCompleted, tasksList[2].Status)

	out := env.runOutput(t, run.ID)
	assert.Contains(t, out, "analyze_s-1")
	assert.NotContains(t, out, "analyze_s-2")
	assert.Contains(t, out, "analyze_s-3")
	assert.Equal(t, 3, calls)
}

func TestDocumentAnalyzer_MaxDocuments(t *testing.T) {
	analyze := &recordingTool{name: "analyze_document"}
	env := newEngineEnv(t, analyze)

	for i := 0; i < 5; i++ {
		env.store.sources = append(env.store.sources, &store.MatterSource{
			ID: uuid.New().String(), MatterID: "m-1", SourceName: "doc",
		})
	}

	agent := env.seedAgent(t, schema.AgentTypeDocumentAnalyzer, `{"max_documents":2}`)
	run := env.seedRun(t, agent.ID, "m-1", nil)

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, ""))
	assert.Equal(t, 2, analyze.callCount())
}

// --- deadline_monitor ---

func TestDeadlineMonitor_NotifiesTeams(t *testing.T) {
	notify := &recordingTool{name: "send_notification", result: map[string]any{"sent": 2}}
	env := newEngineEnv(t, notify)

	soon := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	far := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	env.store.events = []*store.MatterEvent{
		{ID: "e-1", MatterID: "m-1", Title: "File answer", EventDate: soon, IsDeadline: true},
		{ID: "e-2", MatterID: "m-2", Title: "No team here", EventDate: soon, IsDeadline: true},
		{ID: "e-3", MatterID: "m-1", Title: "Way out", EventDate: far, IsDeadline: true},
		{ID: "e-4", MatterID: "m-1", Title: "Done already", EventDate: soon, IsDeadline: true, IsCompleted: true},
	}
	env.store.team["m-1"] = []string{"u-1", "u-2"}

	agent := env.seedAgent(t, schema.AgentTypeDeadlineMonitor, `{"alert_days":7}`)
	run := env.seedRun(t, agent.ID, "", nil)

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, "tok"))

	// Only e-1 notifies: e-2 has no team, e-3 is outside the window, e-4 done.
	require.Equal(t, 1, notify.callCount())
	params := notify.call(0)
	assert.Equal(t, []string{"u-1", "u-2"}, params["user_ids"])
	assert.Contains(t, params["message"], "File answer")
	assert.Equal(t, "high", params["priority"])

	// Both in-window incomplete deadlines count, regardless of notification.
	out := env.runOutput(t, run.ID)
	assert.Equal(t, float64(2), out["deadlines_processed"])

	tasksList, err := env.store.ListTasks(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, tasksList)
}

func TestDeadlineMonitor_NotificationFailureFailsRun(t *testing.T) {
	notify := &recordingTool{
		name: "send_notification",
		err:  schema.NewError(schema.ErrCodeToolExecution, "insert failed"),
	}
	env := newEngineEnv(t, notify)

	soon := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	env.store.events = []*store.MatterEvent{
		{ID: "e-1", MatterID: "m-1", Title: "File answer", EventDate: soon, IsDeadline: true},
	}
	env.store.team["m-1"] = []string{"u-1"}

	agent := env.seedAgent(t, schema.AgentTypeDeadlineMonitor, "")
	run := env.seedRun(t, agent.ID, "", nil)

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusFailed, stored.Status)
}

// --- research_assistant ---

func TestResearchAssistant_EmptyQueryFailsBeforeToolCall(t *testing.T) {
	rag := &recordingTool{name: "rag_query"}
	env := newEngineEnv(t, rag)

	agent := env.seedAgent(t, schema.AgentTypeResearchAssistant, "")
	run := env.seedRun(t, agent.ID, "m-1", map[string]any{})

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, agentErr.Code)
	assert.Equal(t, 0, rag.callCount())

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusFailed, stored.Status)
}

func TestResearchAssistant_OverridesContextChunks(t *testing.T) {
	rag := &recordingTool{name: "rag_query", result: map[string]any{"answer": "yes"}}
	env := newEngineEnv(t, rag)

	agent := env.seedAgent(t, schema.AgentTypeResearchAssistant, `{"context_chunks":10}`)
	run := env.seedRun(t, agent.ID, "m-1", map[string]any{"query": "venue clause"})
	run.Overrides = json.RawMessage(`{"context_chunks":3}`)

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, "tok"))

	require.Equal(t, 1, rag.callCount())
	params := rag.call(0)
	assert.Equal(t, "venue clause", params["query"])
	assert.Equal(t, "m-1", params["matter_id"])
	assert.Equal(t, 3, params["top_k"])

	out := env.runOutput(t, run.ID)
	research, ok := out["research"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "yes", research["answer"])
}

// --- compliance_checker ---

func TestComplianceChecker_AllOrNothing(t *testing.T) {
	llm := &recordingTool{
		name: "llm_complete",
		err:  schema.NewError(schema.ErrCodeToolExecution, "llm unavailable"),
	}
	env := newEngineEnv(t, llm)
	env.store.sources = []*store.MatterSource{
		{ID: "s-1", MatterID: "m-1", SourceName: "contract.pdf"},
		{ID: "s-2", MatterID: "m-1", SourceName: "brief.pdf"},
	}

	agent := env.seedAgent(t, schema.AgentTypeComplianceChecker, "")
	run := env.seedRun(t, agent.ID, "m-1", nil)

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusFailed, stored.Status)
	assert.Empty(t, env.runOutput(t, run.ID)["compliance_check"])
	assert.Equal(t, 1, llm.callCount())
}

func TestComplianceChecker_PromptAndResults(t *testing.T) {
	llm := &recordingTool{name: "llm_complete", result: map[string]any{"compliant": true}}
	env := newEngineEnv(t, llm)
	env.store.sources = []*store.MatterSource{
		{ID: "s-1", MatterID: "m-1", SourceName: "contract.pdf"},
	}

	agent := env.seedAgent(t, schema.AgentTypeComplianceChecker, "")
	run := env.seedRun(t, agent.ID, "m-1", nil)

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, ""))

	params := llm.call(0)
	assert.Equal(t, "analysis", params["task_type"])
	assert.Contains(t, params["prompt"], "contract.pdf")
	assert.Contains(t, params["prompt"], "No summary available")

	out := env.runOutput(t, run.ID)
	checks, ok := out["compliance_check"].([]any)
	require.True(t, ok)
	require.Len(t, checks, 1)
	first := checks[0].(map[string]any)
	assert.Equal(t, "s-1", first["source_id"])
	assert.Equal(t, "contract.pdf", first["source_name"])
}

// --- custom ---

type funcTool struct {
	name   string
	schema string
	fn     func(ctx context.Context, input tools.ToolInput) (*tools.ToolOutput, error)
}

func (f *funcTool) Name() string { return f.name }

func (f *funcTool) Schema() tools.ToolSchema {
	return tools.ToolSchema{Description: "stub", InputSchema: json.RawMessage(f.schema)}
}

func (f *funcTool) Invoke(ctx context.Context, input tools.ToolInput) (*tools.ToolOutput, error) {
	return f.fn(ctx, input)
}

func TestCustom_ResolvesVariablesAndRecordsSteps(t *testing.T) {
	rag := &recordingTool{name: "rag_query", result: map[string]any{"answer": "found it"}}
	llm := &recordingTool{name: "llm_complete", result: map[string]any{"text": "summarized"}}
	env := newEngineEnv(t, rag, llm)

	config := `{"steps":[
		{"name":"Research","tool":"rag_query","parameters":{"query":"$query","matter_id":"$matter_id"}},
		{"tool":"llm_complete","parameters":{"prompt":"summarize","context":"$step_0"}}
	]}`
	agent := env.seedAgent(t, schema.AgentTypeCustom, config)
	run := env.seedRun(t, agent.ID, "m-1", map[string]any{
		"query":     "indemnity",
		"matter_id": "m-1",
	})

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, "tok"))

	assert.Equal(t, "indemnity", rag.call(0)["query"])
	assert.Equal(t, "m-1", rag.call(0)["matter_id"])

	// Second step sees the first step's output under step_0.
	ctxParam, ok := llm.call(0)["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "found it", ctxParam["answer"])

	tasksList, err := env.store.ListTasks(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, tasksList, 2)
	assert.Equal(t, "Research", tasksList[0].TaskName)
	assert.Equal(t, "Step 2", tasksList[1].TaskName)
	assert.Equal(t, schema.TaskStatusCompleted, tasksList[0].Status)
	assert.Equal(t, schema.TaskStatusCompleted, tasksList[1].Status)

	out := env.runOutput(t, run.ID)
	assert.Contains(t, out, "step_0")
	assert.Contains(t, out, "step_1")
}

func TestCustom_FailureStopsRunAndKeepsPartialOutput(t *testing.T) {
	good := &recordingTool{name: "rag_query", result: map[string]any{"answer": "ok"}}
	bad := &recordingTool{
		name: "llm_complete",
		err:  schema.NewError(schema.ErrCodeToolExecution, "step exploded"),
	}
	after := &recordingTool{name: "search_matter"}
	env := newEngineEnv(t, good, bad, after)

	config := `{"steps":[
		{"tool":"rag_query","parameters":{"query":"q","matter_id":"m-1"}},
		{"tool":"llm_complete","parameters":{"prompt":"p"}},
		{"tool":"search_matter","parameters":{"query":"q","matter_id":"m-1"}}
	]}`
	agent := env.seedAgent(t, schema.AgentTypeCustom, config)
	run := env.seedRun(t, agent.ID, "m-1", nil)

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "step exploded")

	// Completed work before the failure is preserved.
	out := env.runOutput(t, run.ID)
	assert.Contains(t, out, "step_0")
	assert.NotContains(t, out, "step_1")
	assert.Equal(t, 0, after.callCount())

	tasksList, _ := env.store.ListTasks(context.Background(), run.ID)
	require.Len(t, tasksList, 2)
	assert.Equal(t, schema.TaskStatusCompleted, tasksList[0].Status)
	assert.Equal(t, schema.TaskStatusFailed, tasksList[1].Status)
}

func TestCustom_ContinueOnError(t *testing.T) {
	bad := &recordingTool{
		name: "llm_complete",
		err:  schema.NewError(schema.ErrCodeToolExecution, "tolerated"),
	}
	after := &recordingTool{name: "rag_query", result: map[string]any{"answer": "still ran"}}
	env := newEngineEnv(t, bad, after)

	config := `{"steps":[
		{"tool":"llm_complete","parameters":{"prompt":"p"},"continue_on_error":true},
		{"tool":"rag_query","parameters":{"query":"q","matter_id":"m"}}
	]}`
	agent := env.seedAgent(t, schema.AgentTypeCustom, config)
	run := env.seedRun(t, agent.ID, "", nil)

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, ""))

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusCompleted, stored.Status)
	assert.Equal(t, 1, after.callCount())

	out := env.runOutput(t, run.ID)
	assert.NotContains(t, out, "step_0")
	assert.Contains(t, out, "step_1")
}

func TestCustom_UnresolvedOptionalReferenceTolerated(t *testing.T) {
	env := newEngineEnv(t)
	var seen map[string]any
	llm := &funcTool{
		name:   "llm_complete",
		schema: `{"type":"object","required":["prompt"],"properties":{"prompt":{"type":"string"},"matter_id":{"type":"string"}}}`,
		fn: func(ctx context.Context, input tools.ToolInput) (*tools.ToolOutput, error) {
			seen = input.Params
			data, _ := json.Marshal(map[string]any{"text": "ok"})
			return &tools.ToolOutput{Data: data}, nil
		},
	}
	require.NoError(t, env.registry.Register(llm))

	// matter_id references a name present in neither the run input nor any
	// prior step output; it must read as an absent optional, not fail the run.
	config := `{"steps":[
		{"tool":"llm_complete","parameters":{"prompt":"summarize","matter_id":"$missing"}}
	]}`
	agent := env.seedAgent(t, schema.AgentTypeCustom, config)
	run := env.seedRun(t, agent.ID, "", map[string]any{"query": "q"})

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, ""))

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusCompleted, stored.Status)
	assert.Equal(t, "summarize", seen["prompt"])
	_, present := seen["matter_id"]
	assert.False(t, present)
	assert.Contains(t, env.runOutput(t, run.ID), "step_0")
}

func TestCustom_UnknownToolFailsStep(t *testing.T) {
	env := newEngineEnv(t)
	config := `{"steps":[{"tool":"no_such_tool"}]}`
	agent := env.seedAgent(t, schema.AgentTypeCustom, config)
	run := env.seedRun(t, agent.ID, "", nil)

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeUnknownTool, agentErr.Code)
}

// --- cancellation ---

func TestCancelledBeforeStartStaysCancelled(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[]}`)
	run := env.seedRun(t, agent.ID, "", nil)

	require.NoError(t, env.launcher.Cancel(context.Background(), run.ID))

	err := env.executor.Execute(context.Background(), agent, run, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeCancelled, agentErr.Code)

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusCancelled, stored.Status)
}

func TestCancelDuringRunWinsOverCompletion(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[]}`)
	run := env.seedRun(t, agent.ID, "", nil)

	recorder := NewRecorder(env.store)
	require.NoError(t, recorder.StartRun(context.Background(), run))

	// Cancel lands while the executor still holds a running snapshot.
	require.NoError(t, env.launcher.Cancel(context.Background(), run.ID))

	require.NoError(t, recorder.CompleteRun(context.Background(), run, map[string]any{"x": 1}))

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusCancelled, stored.Status)
	assert.Empty(t, stored.OutputData)
}

func TestCancelFromInsideStepDiscardsResult(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom,
		`{"steps":[{"tool":"rag_query","parameters":{"query":"q"}}]}`)
	run := env.seedRun(t, agent.ID, "", nil)

	// The cancel lands while the step is still executing; the executor
	// finishes its in-flight work but the terminal status stays cancelled.
	rag := &funcTool{name: "rag_query", fn: func(ctx context.Context, input tools.ToolInput) (*tools.ToolOutput, error) {
		if err := env.launcher.Cancel(ctx, run.ID); err != nil {
			return nil, err
		}
		data, _ := json.Marshal(map[string]any{"answer": "late"})
		return &tools.ToolOutput{Data: data}, nil
	}}
	require.NoError(t, env.registry.Register(rag))

	require.NoError(t, env.executor.Execute(context.Background(), agent, run, ""))

	stored, _ := env.store.GetRun(context.Background(), run.ID)
	assert.Equal(t, schema.RunStatusCancelled, stored.Status)
	assert.Empty(t, stored.OutputData)
}

func TestCancel_TerminalRunIsConflict(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[]}`)
	run := env.seedRun(t, agent.ID, "", nil)
	require.NoError(t, env.executor.Execute(context.Background(), agent, run, ""))

	err := env.launcher.Cancel(context.Background(), run.ID)
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, agentErr.Code)
}

// --- FSM tables ---

func TestRunTransitions(t *testing.T) {
	assert.NoError(t, CheckRunTransition("r", schema.RunStatusPending, schema.RunStatusRunning))
	assert.NoError(t, CheckRunTransition("r", schema.RunStatusPending, schema.RunStatusCancelled))
	assert.NoError(t, CheckRunTransition("r", schema.RunStatusRunning, schema.RunStatusFailed))

	err := CheckRunTransition("r", schema.RunStatusCompleted, schema.RunStatusRunning)
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeInvalidTransition, agentErr.Code)

	assert.Error(t, CheckRunTransition("r", schema.RunStatusPending, schema.RunStatusCompleted))
	assert.Error(t, CheckRunTransition("r", schema.RunStatusCancelled, schema.RunStatusFailed))
}

func TestTaskTransitions(t *testing.T) {
	assert.NoError(t, CheckTaskTransition("t", schema.TaskStatusPending, schema.TaskStatusRunning))
	assert.NoError(t, CheckTaskTransition("t", schema.TaskStatusRunning, schema.TaskStatusSkipped))
	assert.Error(t, CheckTaskTransition("t", schema.TaskStatusPending, schema.TaskStatusCompleted))
	assert.Error(t, CheckTaskTransition("t", schema.TaskStatusFailed, schema.TaskStatusRunning))
}

// --- launcher ---

func TestLauncher_OrgScoping(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[]}`)

	_, err := env.launcher.Start(context.Background(), "other-org", agent.ID, RunRequest{}, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, agentErr.Code)
}

func TestLauncher_InactiveAgent(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[]}`)
	agent.Status = schema.AgentStatusPaused
	require.NoError(t, env.store.CreateDefinition(context.Background(), agent))

	_, err := env.launcher.Start(context.Background(), "org-1", agent.ID, RunRequest{}, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeInactiveAgent, agentErr.Code)
}

func TestLauncher_RejectsMalformedStepsBeforeRunCreation(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[{"name":"No tool here"}]}`)

	_, err := env.launcher.Start(context.Background(), "org-1", agent.ID, RunRequest{}, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, agentErr.Code)
	assert.Empty(t, env.store.runs)
}

func TestLauncher_RejectsMalformedStepOverrides(t *testing.T) {
	env := newEngineEnv(t)
	agent := env.seedAgent(t, schema.AgentTypeCustom, `{"steps":[]}`)

	_, err := env.launcher.Start(context.Background(), "org-1", agent.ID, RunRequest{
		Overrides: json.RawMessage(`{"steps":[{"tool":""}]}`),
	}, "")
	require.Error(t, err)
	agentErr, ok := err.(*schema.AgentError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, agentErr.Code)
	assert.Empty(t, env.store.runs)
}

func TestLauncher_StartMergesMatterIDAndRunsToCompletion(t *testing.T) {
	rag := &recordingTool{name: "rag_query", result: map[string]any{"answer": "ok"}}
	env := newEngineEnv(t, rag)
	agent := env.seedAgent(t, schema.AgentTypeResearchAssistant, "")

	started, err := env.launcher.Start(context.Background(), "org-1", agent.ID, RunRequest{
		MatterID:    "m-9",
		InputData:   map[string]any{"query": "choice of law"},
		TriggeredBy: "user-1",
	}, "tok")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusPending, started.Status)
	require.NotEmpty(t, started.RunID)

	require.Eventually(t, func() bool {
		run, err := env.store.GetRun(context.Background(), started.RunID)
		return err == nil && run.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	run, err := env.store.GetRun(context.Background(), started.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "m-9", run.MatterID)
	assert.Equal(t, "m-9", run.InputData["matter_id"])
	assert.Equal(t, "user-1", run.TriggeredBy)
	assert.Equal(t, "m-9", rag.call(0)["matter_id"])
}
