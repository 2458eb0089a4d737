package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lexhub/agentrun/internal/api"
	"github.com/lexhub/agentrun/internal/engine"
	"github.com/lexhub/agentrun/internal/logging"
	"github.com/lexhub/agentrun/internal/scheduler"
	"github.com/lexhub/agentrun/internal/store"
	"github.com/lexhub/agentrun/internal/tools"
	"github.com/lexhub/agentrun/internal/validation"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Migrate(ctx); err != nil {
		return err
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(validator)
	if err := tools.RegisterBuiltins(registry, tools.NewClient(), s, tools.Endpoints{
		MatterAPI:       cfg.MatterAPIURL,
		LLMOrchestrator: cfg.LLMOrchestrator,
	}); err != nil {
		return err
	}

	executor := engine.NewExecutor(s, registry, logger)
	launcher := engine.NewLauncher(s, executor, validator, logger)

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(s, launcher, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
	}

	server := api.NewServer(api.Deps{
		Store:    s,
		Launcher: launcher,
		Tools:    registry,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
