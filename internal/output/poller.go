// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/bridge"
)

// Capturer provides pane snapshots.
type Capturer interface {
	CapturePane(ctx context.Context, sessionID string) ([]byte, error)
}

// Sink receives every new delta in both forms.
type Sink interface {
	Deliver(ctx context.Context, sessionID string, r Rendering)
}

// BaselineStore persists the last forwarded baseline across restarts.
type BaselineStore interface {
	SetOutputBaseline(ctx context.Context, sessionID, baseline string) error
}

// Scheduler owns one polling task per session and bounds how many run.
type Scheduler struct {
	mu        sync.Mutex
	capturer  Capturer
	sink      Sink
	baselines BaselineStore
	tracker   *StateTracker
	interval  time.Duration
	slots     chan struct{}
	log       *zap.Logger

	pollers map[string]*poller
}

type poller struct {
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	baseline string
}

// NewScheduler creates the polling coordinator.
func NewScheduler(capturer Capturer, sink Sink, baselines BaselineStore, tracker *StateTracker, interval time.Duration, maxPollers int, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if maxPollers <= 0 {
		maxPollers = 32
	}
	return &Scheduler{
		capturer:  capturer,
		sink:      sink,
		baselines: baselines,
		tracker:   tracker,
		interval:  interval,
		slots:     make(chan struct{}, maxPollers),
		log:       log,
		pollers:   make(map[string]*poller),
	}
}

// Start begins polling a session. The initial baseline prevents
// double-delivery after a daemon restart. No-op if already polling.
func (s *Scheduler) Start(ctx context.Context, sessionID, initialBaseline string) {
	s.mu.Lock()
	if _, ok := s.pollers[sessionID]; ok {
		s.mu.Unlock()
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p := &poller{
		cancel:   cancel,
		done:     make(chan struct{}),
		baseline: initialBaseline,
	}
	s.pollers[sessionID] = p
	s.mu.Unlock()

	go s.run(pollCtx, sessionID, p)
}

// Stop cancels a session's poller and persists its baseline.
func (s *Scheduler) Stop(sessionID string) {
	s.mu.Lock()
	p, ok := s.pollers[sessionID]
	if ok {
		delete(s.pollers, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	p.cancel()
	<-p.done
}

// StopAll cancels every poller.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pollers))
	for id := range s.pollers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Stop(id)
	}
}

// ResetBaseline advances a session's baseline to the current capture so
// injected text is not mistaken for session output on the next tick. Used
// after each relay injection.
func (s *Scheduler) ResetBaseline(ctx context.Context, sessionID string) {
	s.mu.Lock()
	p, ok := s.pollers[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	capture, err := s.capturer.CapturePane(ctx, sessionID)
	if err != nil {
		s.log.Debug("baseline reset capture failed",
			zap.String("session", sessionID), zap.Error(err))
		return
	}
	p.mu.Lock()
	p.baseline = string(capture)
	p.mu.Unlock()
}

// Polling reports whether a poller is active for the session.
func (s *Scheduler) Polling(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pollers[sessionID]
	return ok
}

func (s *Scheduler) run(ctx context.Context, sessionID string, p *poller) {
	defer close(p.done)

	// Bound the number of concurrently active pollers.
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.persistBaseline(sessionID, p)
			return
		case <-ticker.C:
			s.tick(ctx, sessionID, p)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, sessionID string, p *poller) {
	capture, err := s.capturer.CapturePane(ctx, sessionID)
	if err != nil {
		if errors.Is(err, bridge.ErrPaneMissing) {
			s.log.Warn("pane missing during poll", zap.String("session", sessionID))
		} else {
			s.log.Debug("capture failed", zap.String("session", sessionID), zap.Error(err))
		}
		return
	}

	current := string(capture)
	p.mu.Lock()
	delta := diff(p.baseline, current)
	p.baseline = current
	p.mu.Unlock()

	if delta == "" {
		return
	}

	r := Render(delta)
	if r.Empty() {
		return
	}
	if s.tracker != nil {
		s.tracker.NoteOutput(sessionID)
	}
	s.sink.Deliver(ctx, sessionID, r)
}

func (s *Scheduler) persistBaseline(sessionID string, p *poller) {
	if s.baselines == nil {
		return
	}
	p.mu.Lock()
	baseline := p.baseline
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.baselines.SetOutputBaseline(ctx, sessionID, baseline); err != nil {
		s.log.Warn("persist baseline failed", zap.String("session", sessionID), zap.Error(err))
	}
}
