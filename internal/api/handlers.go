package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lexhub/agentrun/internal/engine"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/pkg/schema"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListAgents lists the caller org's agent definitions, optionally
// filtered by status.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.DefinitionFilter{OrgID: orgID(r)}
	if v := r.URL.Query().Get("status"); v != "" {
		status := schema.AgentStatus(v)
		filter.Status = &status
	}

	agents, err := s.deps.Store.ListDefinitions(ctx, filter)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if agents == nil {
		agents = []*store.AgentDefinition{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agent, err := s.deps.Store.GetDefinitionForOrg(ctx, orgID(r), r.PathValue("id"))
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// handleRunAgent triggers a run and acknowledges it before execution
// finishes.
func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req engine.RunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}
	req.TriggeredBy = userID(r)

	started, err := s.deps.Launcher.Start(ctx, orgID(r), r.PathValue("id"), req, bearerToken(r))
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, started)
}

// handleListRuns lists runs, optionally filtered by agent, matter, and
// status. When an agent filter is given, the agent must belong to the
// caller's org.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.RunFilter{
		AgentID:  r.URL.Query().Get("agent_id"),
		MatterID: r.URL.Query().Get("matter_id"),
		Limit:    queryInt(r, "limit", 20),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := schema.RunStatus(v)
		filter.Status = &status
	}

	if filter.AgentID != "" {
		if _, err := s.deps.Store.GetDefinitionForOrg(ctx, orgID(r), filter.AgentID); err != nil {
			writeAgentError(w, err)
			return
		}
	}

	runs, err := s.deps.Store.ListRuns(ctx, filter)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.AgentRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns a run with its tasks in execution order. The run's
// agent must belong to the caller's org.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, err := s.getOrgRun(r)
	if err != nil {
		writeAgentError(w, err)
		return
	}

	tasks, err := s.deps.Store.ListTasks(ctx, run.ID)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*store.AgentTask{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":   run,
		"tasks": tasks,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	run, err := s.getOrgRun(r)
	if err != nil {
		writeAgentError(w, err)
		return
	}

	if err := s.deps.Launcher.Cancel(ctx, run.ID); err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": run.ID,
		"status": schema.RunStatusCancelled,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Tools.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": infos,
		"count": len(infos),
	})
}

// getOrgRun loads a run and verifies its agent belongs to the caller's org.
// A run outside the org reads as not found.
func (s *Server) getOrgRun(r *http.Request) (*store.AgentRun, error) {
	ctx := r.Context()
	run, err := s.deps.Store.GetRun(ctx, r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.Store.GetDefinitionForOrg(ctx, orgID(r), run.AgentID); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", run.ID)
	}
	return run, nil
}
