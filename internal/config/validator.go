// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// Validate checks a loaded config for contradictions before use.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Machine.Name == "" {
		problems = append(problems, "machine.name is required (hostname lookup failed)")
	}
	if strings.ContainsAny(cfg.Machine.Name, ": \t") {
		problems = append(problems, fmt.Sprintf("machine.name %q must not contain colons or whitespace", cfg.Machine.Name))
	}
	if cfg.Storage.DBPath == cfg.Storage.EventsDBPath {
		problems = append(problems, "storage.db_path and storage.events_db_path must differ")
	}
	if cfg.API.SocketPath == cfg.Tools.SocketPath {
		problems = append(problems, "api.socket_path and tools.socket_path must differ")
	}
	if cfg.Adapters.Telegram.Enabled && cfg.Adapters.SecretsFile == "" {
		problems = append(problems, "adapters.secrets_file is required when telegram is enabled")
	}
	if cfg.Adapters.Discord.Enabled {
		if cfg.Adapters.SecretsFile == "" {
			problems = append(problems, "adapters.secrets_file is required when discord is enabled")
		}
		if cfg.Adapters.Discord.ForumChannelID == "" {
			problems = append(problems, "adapters.discord.forum_channel_id is required for the help-desk relay")
		}
	}
	if cfg.Sessions.StickyCap < 0 {
		problems = append(problems, "sessions.sticky_cap must not be negative")
	}
	if cfg.Mesh.TTLMultiplier < 0 {
		problems = append(problems, "mesh.ttl_multiplier must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
