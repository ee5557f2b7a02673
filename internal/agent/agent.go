// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package agent knows how to invoke the three agent CLI variants inside a
// pane and how to probe their availability.
package agent

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/store"
)

// Launcher builds agent CLI invocation lines.
type Launcher struct {
	binaries map[store.AgentVariant]string
}

// NewLauncher creates a launcher from the agents config.
func NewLauncher(cfg config.AgentsConfig) *Launcher {
	return &Launcher{
		binaries: map[store.AgentVariant]string{
			store.AgentClaude: cfg.ClaudeBinary,
			store.AgentGemini: cfg.GeminiBinary,
			store.AgentCodex:  cfg.CodexBinary,
		},
	}
}

// Binary returns the configured binary for a variant.
func (l *Launcher) Binary(variant store.AgentVariant) (string, error) {
	bin, ok := l.binaries[variant]
	if !ok || bin == "" {
		return "", fmt.Errorf("unknown agent variant %q", variant)
	}
	return bin, nil
}

// CommandLine builds the shell line that starts the agent CLI in a pane.
// A non-empty resume handle makes the CLI inherit the external continuation.
func (l *Launcher) CommandLine(variant store.AgentVariant, mode store.ThinkingMode, resumeNative string) (string, error) {
	bin, err := l.Binary(variant)
	if err != nil {
		return "", err
	}

	parts := []string{bin}
	if flag := thinkingFlag(variant, mode); flag != "" {
		parts = append(parts, flag)
	}
	if resumeNative != "" {
		parts = append(parts, "--resume", resumeNative)
	}
	return strings.Join(parts, " "), nil
}

// thinkingFlag maps the thinking mode to each CLI's own flag vocabulary.
func thinkingFlag(variant store.AgentVariant, mode store.ThinkingMode) string {
	if mode == "" || mode == store.ThinkingMedium {
		return ""
	}
	switch variant {
	case store.AgentClaude:
		switch mode {
		case store.ThinkingFast:
			return "--effort low"
		case store.ThinkingSlow:
			return "--effort high"
		case store.ThinkingDeep:
			return "--effort max"
		}
	case store.AgentGemini, store.AgentCodex:
		switch mode {
		case store.ThinkingFast:
			return "--reasoning minimal"
		case store.ThinkingSlow:
			return "--reasoning high"
		case store.ThinkingDeep:
			return "--reasoning max"
		}
	}
	return ""
}

// Availability reports which agent CLIs are installed.
type Availability struct {
	Agent     store.AgentVariant `json:"agent"`
	Binary    string             `json:"binary"`
	Available bool               `json:"available"`
}

// Probe checks each variant's binary on PATH.
func (l *Launcher) Probe() []Availability {
	variants := []store.AgentVariant{store.AgentClaude, store.AgentGemini, store.AgentCodex}
	out := make([]Availability, 0, len(variants))
	for _, v := range variants {
		bin := l.binaries[v]
		_, err := exec.LookPath(bin)
		out = append(out, Availability{Agent: v, Binary: bin, Available: err == nil})
	}
	return out
}
