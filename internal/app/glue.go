// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/adapter"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/events"
	"github.com/instruktai/teleclaude/internal/mesh"
	"github.com/instruktai/teleclaude/internal/output"
	"github.com/instruktai/teleclaude/internal/store"
)

// handleAdapterEvent routes normalized adapter events into the shared
// command handlers.
func (a *App) handleAdapterEvent(ctx context.Context, event adapter.Event, meta adapter.Metadata) commands.Result {
	cmdMeta := commands.Meta{
		AdapterKind:    meta.Kind,
		SessionID:      meta.SessionID,
		UserName:       meta.UserName,
		PlatformUserID: meta.PlatformUserID,
	}

	switch event.Type {
	case adapter.EventCommand:
		args, _ := json.Marshal(commandArgs(event, meta))
		result := a.cmds.Handle(ctx, event.Name, args, cmdMeta)
		if result.OK() && meta.SessionID != "" {
			// Transient feedback, deleted on the next substantive message.
			a.ucap.SendNotice(ctx, meta.SessionID, "✓ "+event.Name)
		}
		return result
	case adapter.EventMessage:
		return a.cmds.Message(ctx, event.Text, cmdMeta)
	case adapter.EventVoice:
		return a.cmds.Voice(ctx, event.Blob, cmdMeta)
	case adapter.EventFile:
		return a.cmds.File(ctx, event.Blob, event.Filename, cmdMeta)
	default:
		return commands.Failure(commands.Invalid("unknown event type %q", event.Type))
	}
}

// commandArgs maps positional chat-command arguments onto the named args
// the handlers expect.
func commandArgs(event adapter.Event, meta adapter.Metadata) map[string]interface{} {
	args := map[string]interface{}{"session_id": meta.SessionID}
	switch event.Name {
	case commands.OpNewSession:
		if len(event.Args) > 0 {
			args["project_dir"] = event.Args[0]
		}
		if len(event.Args) > 1 {
			args["agent"] = event.Args[1]
		}
	case commands.OpResume:
		if len(event.Args) > 0 {
			args["kind"] = event.Args[0]
		}
		if len(event.Args) > 1 {
			args["key"] = event.Args[1]
		}
	case commands.OpResize:
		if len(event.Args) > 1 {
			args["cols"] = atoiOr(event.Args[0], 0)
			args["rows"] = atoiOr(event.Args[1], 0)
		}
	}
	return args
}

func atoiOr(s string, def int) int {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// handleMeshCommand serves cross-machine commands with the same handlers
// used locally.
func (a *App) handleMeshCommand(ctx context.Context, op string, args json.RawMessage, meta mesh.CommandMeta) commands.Result {
	return a.cmds.Handle(ctx, op, args, commands.Meta{
		SessionID:     meta.TargetSession,
		SourceMachine: meta.InitiatorMachine,
	})
}

// handleThreadMessage routes Discord messages in relay threads. Returns
// true when the channel belonged to an active relay.
func (a *App) handleThreadMessage(ctx context.Context, channelID, authorName string, isBot bool, text string) bool {
	if a.relay == nil {
		return false
	}
	if _, err := a.store.GetSessionByRelayChannel(ctx, channelID); err != nil {
		return false
	}
	if err := a.relay.HandleThreadMessage(ctx, channelID, authorName, isBot, text); err != nil {
		a.log.Warn("relay thread handling failed",
			zap.String("channel", channelID), zap.Error(err))
	}
	return true
}

// resolveTelegram maps a chat id onto its active session.
func (a *App) resolveTelegram(ctx context.Context, chatID int64) (*store.Session, error) {
	sessions, err := a.sessions.List(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if m := sess.AdapterMetadata.Telegram; m != nil && m.ChatID == chatID {
			return sess, nil
		}
	}
	return nil, store.ErrNotFound
}

// resolveDiscord maps a channel id onto its active session.
func (a *App) resolveDiscord(ctx context.Context, channelID string) (*store.Session, error) {
	sessions, err := a.sessions.List(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if m := sess.AdapterMetadata.Discord; m != nil &&
			(m.ChannelID == channelID || m.ThreadID == channelID) {
			return sess, nil
		}
	}
	return nil, store.ErrNotFound
}

// outputSink fans deltas to the bound adapters and the session's output
// stream.
type outputSink struct {
	app *App
}

func (s *outputSink) Deliver(ctx context.Context, sessionID string, r output.Rendering) {
	s.app.ucap.SendOutput(ctx, sessionID, r.Human, r.Agent)
	s.app.outputs.Publish(ctx, sessionID, r.Human, r.Agent)
}

// lifecycleNotifier translates session lifecycle into platform events and
// poller management.
type lifecycleNotifier struct {
	app *App
}

func (n *lifecycleNotifier) SessionCreated(ctx context.Context, sess *store.Session) {
	n.app.scheduler.Start(context.WithoutCancel(ctx), sess.ID, "")
	n.app.emitter.Emit(ctx, events.EmitParams{
		Type:        "session.created",
		Source:      "sessions",
		Level:       events.LevelOperational,
		Domain:      "sessions",
		Description: "Session created in " + sess.ProjectDir,
		Visibility:  events.VisibilityCluster,
		Entity:      "session/" + sess.ID,
		Payload:     map[string]interface{}{"session_id": sess.ID, "agent": string(sess.Agent)},
	})
}

func (n *lifecycleNotifier) SessionClosed(ctx context.Context, sess *store.Session) {
	n.app.scheduler.Stop(sess.ID)
	n.app.tracker.Forget(sess.ID)
	n.app.emitter.Emit(ctx, events.EmitParams{
		Type:        "session.closed",
		Source:      "sessions",
		Level:       events.LevelOperational,
		Domain:      "sessions",
		Description: "Session closed",
		Visibility:  events.VisibilityCluster,
		Entity:      "session/" + sess.ID,
		Payload:     map[string]interface{}{"session_id": sess.ID},
	})
}

func (n *lifecycleNotifier) MemoryExtractionRequested(ctx context.Context, sess *store.Session) {
	n.app.emitter.Emit(ctx, events.EmitParams{
		Type:        "memory.extraction.requested",
		Source:      "idle",
		Level:       events.LevelInfrastructure,
		Domain:      "memory",
		Description: "Idle compaction requested memory extraction",
		Entity:      "session/" + sess.ID,
		Payload: map[string]interface{}{
			"session_id":   sess.ID,
			"identity_key": sess.IdentityKey,
			"requested_at": time.Now().Unix(),
		},
	})
}

// paneInjector injects relay context into the pane and suppresses the echo
// from the next poll tick.
type paneInjector struct {
	app *App
}

func (p *paneInjector) InjectText(ctx context.Context, sessionID, text string) error {
	if _, err := p.app.bridge.SendText(ctx, sessionID, text, false); err != nil {
		return err
	}
	p.app.scheduler.ResetBaseline(ctx, sessionID)
	return nil
}

// customerDeliverer returns admin replies on the customer's own adapters.
type customerDeliverer struct {
	app *App
}

func (d *customerDeliverer) DeliverToCustomer(ctx context.Context, sess *store.Session, text string) error {
	var lastErr error
	for _, kind := range sess.AdapterTypes {
		if kind == store.KindDiscord {
			// The admin side lives on Discord; echoing there would loop.
			continue
		}
		if err := d.app.ucap.DeliverToSession(ctx, sess, kind, text, "Support"); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// relayNotifier announces escalations on the event platform.
type relayNotifier struct {
	app *App
}

func (r *relayNotifier) RelayOpened(ctx context.Context, sess *store.Session, threadID, reason string) {
	r.app.emitter.Emit(ctx, events.EmitParams{
		Type:        "session.escalated",
		Source:      "relay",
		Level:       events.LevelBusiness,
		Domain:      "helpdesk",
		Description: "Customer escalated: " + reason,
		Visibility:  events.VisibilityCluster,
		Entity:      "session/" + sess.ID,
		Payload: map[string]interface{}{
			"session_id": sess.ID,
			"thread_id":  threadID,
			"reason":     reason,
		},
	})
}
