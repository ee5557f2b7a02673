// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// RealTmuxExecutor executes real tmux commands.
type RealTmuxExecutor struct{}

// NewRealTmuxExecutor creates a new tmux executor.
func NewRealTmuxExecutor() *RealTmuxExecutor {
	return &RealTmuxExecutor{}
}

// HasSession checks if a session exists.
func (e *RealTmuxExecutor) HasSession(ctx context.Context, session string) bool {
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", session)
	return cmd.Run() == nil
}

// NewSession creates a new detached tmux session.
func (e *RealTmuxExecutor) NewSession(ctx context.Context, session, workdir string) error {
	args := []string{"new-session", "-d", "-s", session}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}

	cmd := exec.CommandContext(ctx, "tmux", args...)
	// Ensure we're not inside another tmux session
	cmd.Env = filterTMUXEnv(os.Environ())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux new-session failed: %s: %v", stderr.String(), err)
	}
	return nil
}

// KillSession kills a tmux session.
func (e *RealTmuxExecutor) KillSession(ctx context.Context, session string) error {
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", session)
	return cmd.Run()
}

// CapturePane captures the pane content.
func (e *RealTmuxExecutor) CapturePane(ctx context.Context, target string, withHistory bool) ([]byte, error) {
	args := []string{"capture-pane", "-t", target, "-p", "-e"}
	if withHistory {
		args = append(args, "-S", "-")
	}

	cmd := exec.CommandContext(ctx, "tmux", args...)
	return cmd.Output()
}

// SendKeys sends keys to a pane.
func (e *RealTmuxExecutor) SendKeys(ctx context.Context, target string, keys string, literal bool) error {
	args := []string{"send-keys", "-t", target}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, keys)

	cmd := exec.CommandContext(ctx, "tmux", args...)
	return cmd.Run()
}

// SendText sends text via paste-buffer (handles special characters).
func (e *RealTmuxExecutor) SendText(ctx context.Context, target string, text string) error {
	// Use load-buffer and paste-buffer for text with special characters
	loadCmd := exec.CommandContext(ctx, "tmux", "load-buffer", "-")
	loadCmd.Stdin = strings.NewReader(text)
	if err := loadCmd.Run(); err != nil {
		return err
	}

	pasteCmd := exec.CommandContext(ctx, "tmux", "paste-buffer", "-d", "-t", target)
	return pasteCmd.Run()
}

// DisplayMessage expands a tmux format string for a pane.
func (e *RealTmuxExecutor) DisplayMessage(ctx context.Context, target, format string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", "display-message", "-t", target, "-p", format)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// ResizeWindow resizes a window.
func (e *RealTmuxExecutor) ResizeWindow(ctx context.Context, target string, cols, rows int) error {
	cmd := exec.CommandContext(ctx, "tmux", "resize-window", "-t", target,
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	return cmd.Run()
}

// SetOption sets a tmux option for a session.
func (e *RealTmuxExecutor) SetOption(ctx context.Context, session, name, value string) error {
	cmd := exec.CommandContext(ctx, "tmux", "set-option", "-t", session, name, value)
	return cmd.Run()
}

// filterTMUXEnv filters out TMUX environment variable.
func filterTMUXEnv(env []string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			result = append(result, e)
		}
	}
	return result
}
