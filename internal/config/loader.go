// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Env overrides honored after the file is parsed.
const (
	EnvDBPath       = "TELECLAUDE_DB_PATH"
	EnvEventsDBPath = "TELECLAUDE_EVENTS_DB_PATH"
	EnvRedisURL     = "TELECLAUDE_REDIS_URL"
)

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with defaults and env overrides applied.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = &Config{}
	} else {
		loaded, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfig searches for a config file in the current directory, then
// ~/.teleclaude.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"teleclaude.hjson",
		"teleclaude.json",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".teleclaude", "teleclaude.hjson"),
			filepath.Join(home, ".teleclaude", "teleclaude.json"),
		)
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for teleclaude.hjson)")
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	if cfg.Machine.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Machine.Name = host
		}
	}
	if cfg.Machine.User == "" {
		cfg.Machine.User = os.Getenv("USER")
	}

	home, _ := os.UserHomeDir()
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(home, ".teleclaude", "teleclaude.db")
	}
	if cfg.Storage.EventsDBPath == "" {
		cfg.Storage.EventsDBPath = filepath.Join(home, ".teleclaude", "events.db")
	}

	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Redis.StreamMaxLen == 0 {
		cfg.Redis.StreamMaxLen = 10000
	}
	if cfg.Redis.ProcessorName == "" {
		cfg.Redis.ProcessorName = "event-processor"
	}

	if cfg.API.SocketPath == "" {
		cfg.API.SocketPath = "/tmp/teleclaude-api.sock"
	}
	if cfg.Tools.SocketPath == "" {
		cfg.Tools.SocketPath = "/tmp/teleclaude-tools.sock"
	}

	if cfg.Agents.ClaudeBinary == "" {
		cfg.Agents.ClaudeBinary = "claude"
	}
	if cfg.Agents.GeminiBinary == "" {
		cfg.Agents.GeminiBinary = "gemini"
	}
	if cfg.Agents.CodexBinary == "" {
		cfg.Agents.CodexBinary = "codex"
	}

	if cfg.Sessions.StickyCap == 0 {
		cfg.Sessions.StickyCap = 5
	}
	if cfg.Sessions.MaxExtractJobs == 0 {
		cfg.Sessions.MaxExtractJobs = 2
	}
	if cfg.Output.MaxPollers == 0 {
		cfg.Output.MaxPollers = 32
	}
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv(EnvEventsDBPath); v != "" {
		cfg.Storage.EventsDBPath = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		cfg.Redis.URL = v
	}
}
