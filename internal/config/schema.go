// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading for the daemon.
package config

import (
	"time"
)

// Config is the root configuration structure for TeleClaude.
type Config struct {
	Version  string         `json:"version"`
	Machine  MachineConfig  `json:"machine"`
	Storage  StorageConfig  `json:"storage"`
	Redis    RedisConfig    `json:"redis"`
	API      APIConfig      `json:"api"`
	Tools    ToolsConfig    `json:"tools"`
	Adapters AdaptersConfig `json:"adapters"`
	Agents   AgentsConfig   `json:"agents"`
	Sessions SessionsConfig `json:"sessions"`
	Output   OutputConfig   `json:"output"`
	Mesh     MeshConfig     `json:"mesh"`
	Projects ProjectsConfig `json:"projects"`
	Logging  LoggingConfig  `json:"logging"`
}

// MachineConfig identifies this daemon on the mesh.
type MachineConfig struct {
	Name string `json:"name"` // defaults to hostname
	User string `json:"user"` // defaults to $USER
}

// StorageConfig locates the relational stores.
type StorageConfig struct {
	DBPath       string `json:"db_path"`        // teleclaude.db, env TELECLAUDE_DB_PATH
	EventsDBPath string `json:"events_db_path"` // events.db
}

// RedisConfig configures the stream bus.
type RedisConfig struct {
	URL           string `json:"url"`
	StreamMaxLen  int64  `json:"stream_max_len"`
	ProcessorName string `json:"processor_name"` // consumer-group name for the event processor
}

// APIConfig configures the local REST surface.
type APIConfig struct {
	SocketPath string `json:"socket_path"` // /tmp/teleclaude-api.sock
}

// ToolsConfig configures the tool-call socket.
type ToolsConfig struct {
	SocketPath string `json:"socket_path"`
}

// AdaptersConfig enables and parameterizes adapters. Tokens live in the
// secrets file, never here.
type AdaptersConfig struct {
	SecretsFile string                `json:"secrets_file"`
	Telegram    TelegramAdapterConfig `json:"telegram"`
	Discord     DiscordAdapterConfig  `json:"discord"`
	Redis       RedisAdapterConfig    `json:"redis"`
	Web         WebAdapterConfig      `json:"web"`
}

// TelegramAdapterConfig configures the Telegram adapter.
type TelegramAdapterConfig struct {
	Enabled     bool    `json:"enabled"`
	AdminChatID int64   `json:"admin_chat_id"`
	AllowedIDs  []int64 `json:"allowed_ids"`
}

// DiscordAdapterConfig configures the Discord adapter and relay forum.
type DiscordAdapterConfig struct {
	Enabled        bool   `json:"enabled"`
	GuildID        string `json:"guild_id"`
	ForumChannelID string `json:"forum_channel_id"` // relay threads are created here
}

// RedisAdapterConfig configures the stream-bus adapter.
type RedisAdapterConfig struct {
	Enabled bool `json:"enabled"`
}

// WebAdapterConfig configures the WebSocket adapter.
type WebAdapterConfig struct {
	Enabled bool `json:"enabled"`
}

// AgentsConfig locates the agent CLI binaries.
type AgentsConfig struct {
	ClaudeBinary string `json:"claude_binary"`
	GeminiBinary string `json:"gemini_binary"`
	CodexBinary  string `json:"codex_binary"`
}

// SessionsConfig tunes session lifecycle policy.
type SessionsConfig struct {
	IdleTimeout     string `json:"idle_timeout"`     // admin sessions, default "30m"
	CustomerSweep   string `json:"customer_sweep"`   // default "72h"
	StickyCap       int    `json:"sticky_cap"`       // default 5
	AdapterTimeout  string `json:"adapter_timeout"`  // per outbound send, default "30s"
	CommandTimeout  string `json:"command_timeout"`  // cross-machine dispatch, default "2m"
	MaxExtractJobs  int    `json:"max_extract_jobs"` // background extraction bound
}

// OutputConfig tunes the output pipeline.
type OutputConfig struct {
	PollInterval string `json:"poll_interval"` // default "1s"
	MaxPollers   int    `json:"max_pollers"`
}

// MeshConfig tunes heartbeat and peer expiry.
type MeshConfig struct {
	HeartbeatInterval string `json:"heartbeat_interval"` // default "10s"
	TTLMultiplier     int    `json:"ttl_multiplier"`     // default 3
}

// ProjectsConfig configures project directory discovery.
type ProjectsConfig struct {
	Roots []string `json:"roots"`
}

// LoggingConfig mirrors the TELECLAUDE_LOG_LEVEL env surface; the env wins.
type LoggingConfig struct {
	Level             string   `json:"level"`
	ThirdPartyLevel   string   `json:"third_party_level"`
	ThirdPartyLoggers []string `json:"third_party_loggers"`
}

// ParseDuration parses a duration string, returning def on empty or bad input.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// IdleTimeoutDuration returns the parsed admin idle timeout.
func (c *SessionsConfig) IdleTimeoutDuration() time.Duration {
	return ParseDuration(c.IdleTimeout, 30*time.Minute)
}

// CustomerSweepDuration returns the parsed customer inactivity sweep window.
func (c *SessionsConfig) CustomerSweepDuration() time.Duration {
	return ParseDuration(c.CustomerSweep, 72*time.Hour)
}

// AdapterTimeoutDuration returns the per-adapter send timeout.
func (c *SessionsConfig) AdapterTimeoutDuration() time.Duration {
	return ParseDuration(c.AdapterTimeout, 30*time.Second)
}

// CommandTimeoutDuration returns the cross-machine dispatch timeout.
func (c *SessionsConfig) CommandTimeoutDuration() time.Duration {
	return ParseDuration(c.CommandTimeout, 2*time.Minute)
}

// PollIntervalDuration returns the output poll cadence.
func (c *OutputConfig) PollIntervalDuration() time.Duration {
	return ParseDuration(c.PollInterval, time.Second)
}

// HeartbeatIntervalDuration returns the heartbeat publish cadence.
func (c *MeshConfig) HeartbeatIntervalDuration() time.Duration {
	return ParseDuration(c.HeartbeatInterval, 10*time.Second)
}

// TTL returns the peer expiry window.
func (c *MeshConfig) TTL() time.Duration {
	mult := c.TTLMultiplier
	if mult <= 0 {
		mult = 3
	}
	return time.Duration(mult) * c.HeartbeatIntervalDuration()
}
