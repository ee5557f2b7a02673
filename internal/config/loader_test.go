// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teleclaude.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_HJSONWithComments(t *testing.T) {
	path := writeConfig(t, `
{
  // machine identity
  machine: { name: "alpha" }
  redis: { url: "redis://example:6379/1" }
  sessions: {
    idle_timeout: "45m"
    sticky_cap: 3
  }
}
`)

	loader := NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "alpha", cfg.Machine.Name)
	assert.Equal(t, "redis://example:6379/1", cfg.Redis.URL)
	assert.Equal(t, 45*time.Minute, cfg.Sessions.IdleTimeoutDuration())
	assert.Equal(t, 3, cfg.Sessions.StickyCap)
}

func TestLoadWithDefaults_FillsGaps(t *testing.T) {
	path := writeConfig(t, `{ machine: { name: "alpha" } }`)

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), cfg.Redis.StreamMaxLen)
	assert.Equal(t, "event-processor", cfg.Redis.ProcessorName)
	assert.Equal(t, "/tmp/teleclaude-api.sock", cfg.API.SocketPath)
	assert.Equal(t, 5, cfg.Sessions.StickyCap)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeoutDuration())
	assert.Equal(t, 72*time.Hour, cfg.Sessions.CustomerSweepDuration())
	assert.Equal(t, 30*time.Second, cfg.Sessions.AdapterTimeoutDuration())
	assert.Equal(t, 2*time.Minute, cfg.Sessions.CommandTimeoutDuration())
	assert.Equal(t, time.Second, cfg.Output.PollIntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.Mesh.TTL())
	assert.Contains(t, cfg.Storage.DBPath, "teleclaude.db")
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{ machine: { name: "alpha" } }`)
	t.Setenv(EnvDBPath, "/custom/tc.db")
	t.Setenv(EnvRedisURL, "redis://custom:6380/0")

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/tc.db", cfg.Storage.DBPath)
	assert.Equal(t, "redis://custom:6380/0", cfg.Redis.URL)
}

func TestValidate_Problems(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Machine.Name = "bad name"
	cfg.Adapters.Telegram.Enabled = true // no secrets file

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "machine.name")
	assert.Contains(t, err.Error(), "secrets_file")
}

func TestValidate_DiscordNeedsForumChannel(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Machine.Name = "alpha"
	cfg.Adapters.SecretsFile = "/etc/teleclaude/secrets.hjson"
	cfg.Adapters.Discord.Enabled = true

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forum_channel_id")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "/nonexistent/teleclaude.hjson")
	assert.Error(t, err)
}

func TestSecretsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.hjson")
	require.NoError(t, os.WriteFile(path, []byte(`
{
  // bot credentials
  telegram_token: "123:abc"
  discord_token: "xyz"
}
`), 0o600))

	s, err := LoadSecrets(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", s.TelegramToken)
	assert.Equal(t, "xyz", s.DiscordToken)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, time.Minute, ParseDuration("1m", time.Hour))
	assert.Equal(t, time.Hour, ParseDuration("", time.Hour))
	assert.Equal(t, time.Hour, ParseDuration("garbage", time.Hour))
}
