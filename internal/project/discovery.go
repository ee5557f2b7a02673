// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package project discovers project directories on this machine.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Info describes a discovered project directory.
type Info struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Discover scans the configured roots one level deep for directories that
// look like projects (contain a .git directory). Roots that do not exist are
// skipped.
func Discover(roots []string) ([]Info, error) {
	var projects []Info
	seen := make(map[string]bool)

	for _, root := range roots {
		root = expandHome(root)
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
				continue
			}
			if seen[path] {
				continue
			}
			seen[path] = true
			projects = append(projects, Info{Name: entry.Name(), Path: path})
		}
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// Todo is one entry in a project's todos file.
type Todo struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// ReadTodos loads todos.json under the project dir. A missing file yields an
// empty list, not an error.
func ReadTodos(projectDir string) ([]Todo, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, "todos.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read todos: %w", err)
	}
	var todos []Todo
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil, fmt.Errorf("parse todos: %w", err)
	}
	return todos, nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
