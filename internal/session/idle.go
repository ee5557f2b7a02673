// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/store"
)

// compactDirective is the agent CLI's own context-compaction command.
const compactDirective = "/compact"

// IdleReaper applies the idle policy on a schedule: admin sessions compact
// after the configured idle timeout; customer sessions never time out and
// are only terminated by the long inactivity sweep.
type IdleReaper struct {
	manager *Manager
	cron    *cron.Cron
	log     *zap.Logger
}

// NewIdleReaper creates the reaper; Start schedules the passes.
func NewIdleReaper(manager *Manager, log *zap.Logger) *IdleReaper {
	return &IdleReaper{
		manager: manager,
		cron:    cron.New(),
		log:     log,
	}
}

// Start schedules the compaction pass (per minute) and the customer sweep
// (hourly).
func (r *IdleReaper) Start() error {
	if _, err := r.cron.AddFunc("@every 1m", func() { r.CompactionPass(context.Background()) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@every 1h", func() { r.SweepPass(context.Background()) }); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule.
func (r *IdleReaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// CompactionPass compacts every idle session. Customer sessions are
// compacted but never closed here.
func (r *IdleReaper) CompactionPass(ctx context.Context) {
	sessions, err := r.manager.List(ctx, true)
	if err != nil {
		r.log.Warn("idle pass list failed", zap.Error(err))
		return
	}

	timeout := r.manager.cfg.IdleTimeoutDuration()
	now := r.manager.now()
	// Each compaction spawns an extraction job; bound them per pass.
	// Zero means unbounded.
	budget := r.manager.cfg.MaxExtractJobs
	if budget <= 0 {
		budget = len(sessions)
	}
	for _, sess := range sessions {
		if budget <= 0 {
			break
		}
		if now.Sub(sess.LastActivityAt) < timeout {
			continue
		}
		if err := r.compact(ctx, sess); err != nil {
			r.log.Warn("idle compaction failed",
				zap.String("session", sess.ID), zap.Error(err))
		} else {
			budget--
		}
	}
}

// compact emits a memory-extraction request, injects /compact, and resets
// activity.
func (r *IdleReaper) compact(ctx context.Context, sess *store.Session) error {
	if r.manager.notifier != nil {
		r.manager.notifier.MemoryExtractionRequested(ctx, sess)
	}
	sess.LastMemoryExtractionAt = r.manager.now()

	if _, err := r.manager.bridge.SendText(ctx, sess.ID, compactDirective, false); err != nil {
		return err
	}

	sess.Status = store.StatusIdleCompacted
	sess.LastActivityAt = r.manager.now()
	if err := r.manager.store.UpdateSession(ctx, sess); err != nil {
		return err
	}
	r.log.Info("session idle-compacted", zap.String("session", sess.ID))
	return nil
}

// SweepPass terminates customer sessions inactive beyond the sweep window.
func (r *IdleReaper) SweepPass(ctx context.Context) {
	sessions, err := r.manager.List(ctx, false)
	if err != nil {
		r.log.Warn("sweep pass list failed", zap.Error(err))
		return
	}

	window := r.manager.cfg.CustomerSweepDuration()
	now := r.manager.now()
	for _, sess := range sessions {
		if sess.Status == store.StatusClosed {
			continue
		}
		if sess.HumanRole != store.RoleCustomer {
			continue
		}
		if now.Sub(sess.LastActivityAt) < window {
			continue
		}
		if err := r.manager.Close(ctx, sess.ID); err != nil {
			r.log.Warn("sweep close failed", zap.String("session", sess.ID), zap.Error(err))
		} else {
			r.log.Info("customer session swept",
				zap.String("session", sess.ID),
				zap.Duration("inactive", now.Sub(sess.LastActivityAt)))
		}
	}
}

// isIdle is a helper for tests.
func isIdle(sess *store.Session, now time.Time, timeout time.Duration) bool {
	return now.Sub(sess.LastActivityAt) >= timeout
}
