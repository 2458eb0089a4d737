package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all agentrun server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string `json:"listen_addr"`
	DBPath          string `json:"db_path"`
	LogLevel        string `json:"log_level"`
	MatterAPIURL    string `json:"matter_api_url"`
	LLMOrchestrator string `json:"llm_orchestrator_url"`
	Scheduler       bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:      ":4200",
		DBPath:          filepath.Join(agentrunDir(), "agentrun.db"),
		LogLevel:        "info",
		MatterAPIURL:    "http://localhost:8000",
		LLMOrchestrator: "http://localhost:8001",
		Scheduler:       true,
	}
}

func agentrunDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentrun"
	}
	return filepath.Join(home, ".agentrun")
}

func settingsPath() string {
	return filepath.Join(agentrunDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("AGENTRUN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AGENTRUN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AGENTRUN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("AGENTRUN_MATTER_API_URL"); v != "" {
		cfg.MatterAPIURL = v
	}
	if v := os.Getenv("AGENTRUN_LLM_ORCHESTRATOR_URL"); v != "" {
		cfg.LLMOrchestrator = v
	}
	if v := os.Getenv("AGENTRUN_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}
