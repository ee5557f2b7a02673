// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hjson/hjson-go/v4"
	"go.uber.org/zap"
)

// Secrets holds adapter credentials. They are loaded from a dedicated HJSON
// file referenced by adapters.secrets_file, never from the environment.
type Secrets struct {
	TelegramToken string `json:"telegram_token"`
	DiscordToken  string `json:"discord_token"`
	RedisPassword string `json:"redis_password"`
}

// LoadSecrets reads the secrets file.
func LoadSecrets(path string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse secrets hjson: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert secrets to json: %w", err)
	}

	var s Secrets
	if err := json.Unmarshal(jsonData, &s); err != nil {
		return nil, fmt.Errorf("unmarshal secrets: %w", err)
	}
	return &s, nil
}

// SecretsWatcher hot-reloads the secrets file on change.
type SecretsWatcher struct {
	mu       sync.RWMutex
	path     string
	current  *Secrets
	watcher  *fsnotify.Watcher
	debounce *time.Timer
	onReload []func(*Secrets)
	log      *zap.Logger
	closeCh  chan struct{}
	closed   sync.Once
}

// NewSecretsWatcher loads the file and begins watching it.
func NewSecretsWatcher(path string, log *zap.Logger) (*SecretsWatcher, error) {
	secrets, err := LoadSecrets(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch secrets file: %w", err)
	}

	w := &SecretsWatcher{
		path:    path,
		current: secrets,
		watcher: fsWatcher,
		log:     log,
		closeCh: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded secrets.
func (w *SecretsWatcher) Current() *Secrets {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload registers a callback invoked after each successful reload.
func (w *SecretsWatcher) OnReload(fn func(*Secrets)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Close stops watching.
func (w *SecretsWatcher) Close() {
	w.closed.Do(func() {
		close(w.closeCh)
		w.watcher.Close()
	})
}

func (w *SecretsWatcher) loop() {
	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("secrets watcher error", zap.Error(err))
		}
	}
}

// scheduleReload debounces bursts of write events into a single reload.
func (w *SecretsWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(100*time.Millisecond, w.reload)
}

func (w *SecretsWatcher) reload() {
	secrets, err := LoadSecrets(w.path)
	if err != nil {
		w.log.Warn("secrets reload failed, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = secrets
	callbacks := make([]func(*Secrets), len(w.onReload))
	copy(callbacks, w.onReload)
	w.mu.Unlock()

	w.log.Info("secrets reloaded", zap.String("path", w.path))
	for _, fn := range callbacks {
		fn(secrets)
	}
}
