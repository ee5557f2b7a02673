// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transcript projects agent CLI JSONL session files into
// transcript-like views. The files are written by the agent CLI and are
// read-only for the daemon.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Line is a single entry in the agent CLI's session JSONL file.
type Line struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	UUID      string          `json:"uuid"`
	Message   json.RawMessage `json:"message"`
	CWD       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
}

// Message is the role/content part of a transcript line.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// Entry is one projected transcript message.
type Entry struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ProjectDir returns the agent CLI's storage directory for a project path.
// The CLI encodes the project path by replacing / and . with -
// e.g. /Users/alice/src/myapp -> -Users-alice-src-myapp
func ProjectDir(projectPath string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	encoded := strings.NewReplacer("/", "-", ".", "-").Replace(projectPath)
	return filepath.Join(home, ".claude", "projects", encoded), nil
}

// Read loads and projects the JSONL transcript for a native session id under
// the given project path.
func Read(projectPath, nativeSessionID string) ([]Entry, error) {
	dir, err := ProjectDir(projectPath)
	if err != nil {
		return nil, err
	}
	return ReadFile(filepath.Join(dir, nativeSessionID+".jsonl"))
}

// ReadFile projects a specific JSONL file.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			// Skip unparseable lines; the CLI appends concurrently.
			continue
		}
		if line.Type != "user" && line.Type != "assistant" {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line.Message, &msg); err != nil {
			continue
		}
		entries = append(entries, Entry{
			Role:      msg.Role,
			Text:      flattenContent(msg.Content),
			Timestamp: line.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return entries, nil
}

// LatestNativeSession returns the most recently modified session id for a
// project, or "" when none exist. Used to discover the continuation handle
// after the agent CLI's first turn.
func LatestNativeSession(projectPath string) (string, error) {
	dir, err := ProjectDir(projectPath)
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil || len(matches) == 0 {
		return "", err
	}

	type candidate struct {
		id    string
		mtime int64
	}
	var candidates []candidate
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(filepath.Base(m), ".jsonl")
		candidates = append(candidates, candidate{id: id, mtime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime > candidates[j].mtime })
	return candidates[0].id, nil
}

// flattenContent reduces the CLI's string-or-blocks content shape to text.
func flattenContent(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, block := range v {
			m, ok := block.(map[string]interface{})
			if !ok {
				continue
			}
			if m["type"] == "text" {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
