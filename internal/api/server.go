package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/lexhub/agentrun/internal/engine"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/internal/tools"
)

// RunLauncher is the interface the server uses to trigger and cancel runs.
// Satisfied by the engine's Launcher.
type RunLauncher interface {
	Start(ctx context.Context, orgID, agentID string, req engine.RunRequest, auth string) (*engine.StartedRun, error)
	Cancel(ctx context.Context, runID string) error
}

// ToolLister is the interface the server uses to list available tools.
// Satisfied by the tools Registry.
type ToolLister interface {
	List() []tools.ToolInfo
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Store    store.Store
	Launcher RunLauncher
	Tools    ToolLister
	Logger   *slog.Logger
}

// Server serves the JSON management API.
type Server struct {
	deps Deps
}

// NewServer creates a new Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /api/v1/agents/{id}/run", s.handleRunAgent)

	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", s.handleCancelRun)

	mux.HandleFunc("GET /api/v1/tools", s.handleListTools)

	return mux
}
