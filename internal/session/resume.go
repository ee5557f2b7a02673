// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/instruktai/teleclaude/internal/store"
)

// ResumeKind selects the lookup key interpretation.
type ResumeKind string

const (
	ResumeByID           ResumeKind = "by-internal-id"
	ResumeByNativeClaude ResumeKind = "by-native-claude"
	ResumeByNativeGemini ResumeKind = "by-native-gemini"
	ResumeByNativeCodex  ResumeKind = "by-native-codex"
)

// RemoteSession is the cross-machine projection of a session.
type RemoteSession struct {
	ID       string `json:"id"`
	Computer string `json:"computer"`
	Title    string `json:"title"`
}

// MeshQuerier looks a session up on remote peers.
type MeshQuerier interface {
	FindSession(ctx context.Context, kind ResumeKind, key string) (*RemoteSession, error)
}

// ResumeResult reports where the session was found or recreated.
type ResumeResult struct {
	Session *store.Session `json:"session,omitempty"`
	Remote  *RemoteSession `json:"remote,omitempty"`
	// Recreated is true when a fresh pane was created with --resume.
	Recreated bool `json:"recreated"`
}

func (k ResumeKind) agent() (store.AgentVariant, bool) {
	switch k {
	case ResumeByNativeClaude:
		return store.AgentClaude, true
	case ResumeByNativeGemini:
		return store.AgentGemini, true
	case ResumeByNativeCodex:
		return store.AgentCodex, true
	default:
		return "", false
	}
}

// Resume finds a session locally, then across the mesh, and as a last resort
// recreates it from the agent CLI's own continuation handle.
func (m *Manager) Resume(ctx context.Context, mesh MeshQuerier, kind ResumeKind, key string, fallback CreateParams) (*ResumeResult, error) {
	// Local lookup.
	switch kind {
	case ResumeByID:
		sess, err := m.store.GetSession(ctx, key)
		if err == nil {
			return &ResumeResult{Session: sess}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	case ResumeByNativeClaude, ResumeByNativeGemini, ResumeByNativeCodex:
		variant, _ := kind.agent()
		sess, err := m.store.GetSessionByNative(ctx, variant, key)
		if err == nil {
			return &ResumeResult{Session: sess}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown resume kind %q", kind)
	}

	// Cross-machine lookup.
	if mesh != nil {
		remote, err := mesh.FindSession(ctx, kind, key)
		if err == nil && remote != nil {
			return &ResumeResult{Remote: remote}, nil
		}
	}

	// Native-handle recreation: a new pane inherits the external
	// continuation via --resume.
	variant, nativeKind := kind.agent()
	if !nativeKind {
		return nil, fmt.Errorf("session %s: %w", key, store.ErrNotFound)
	}

	fallback.Agent = variant
	fallback.ResumeNative = key
	sess, err := m.Create(ctx, fallback)
	if err != nil {
		return nil, fmt.Errorf("recreate from native handle: %w", err)
	}
	return &ResumeResult{Session: sess, Recreated: true}, nil
}
