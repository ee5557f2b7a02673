// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/bridge"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/mesh"
	"github.com/instruktai/teleclaude/internal/session"
	"github.com/instruktai/teleclaude/internal/store"
	"github.com/instruktai/teleclaude/internal/transcript"
)

// Request is one tool call frame.
type Request struct {
	Tool string `json:"tool"`
	// SessionID identifies the calling session for role gating and
	// initiator bookkeeping.
	SessionID string          `json:"session_id,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Server accepts tool calls on a local Unix socket. The socket is recreated
// on restart; in-flight calls fail fast with a recoverable error.
type Server struct {
	socketPath string
	cmds       *commands.Handlers
	sessions   *session.Manager
	registry   *mesh.Registry
	outputs    *mesh.OutputPublisher
	br         *bridge.Bridge
	machine    string
	log        *zap.Logger

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// subscriptions tracks caller-session output mirrors: caller id ->
	// watched session id -> cancel.
	subMu sync.Mutex
	subs  map[string]map[string]context.CancelFunc
}

// NewServer wires the tool server.
func NewServer(socketPath string, cmds *commands.Handlers, sessions *session.Manager, registry *mesh.Registry, outputs *mesh.OutputPublisher, br *bridge.Bridge, machine string, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		cmds:       cmds,
		sessions:   sessions,
		registry:   registry,
		outputs:    outputs,
		br:         br,
		machine:    machine,
		log:        log,
		subs:       make(map[string]map[string]context.CancelFunc),
	}
}

// Start removes any stale socket and begins accepting.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale tool socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		s.log.Warn("chmod tool socket failed", zap.Error(err))
	}
	s.listener = listener

	acceptCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.accept(acceptCtx)
	s.log.Info("tool server listening", zap.String("socket", s.socketPath))
	return nil
}

// Stop closes the listener and waits for handlers to finish their current
// call.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) accept(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("tool accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.serve(ctx, conn)
		}()
	}
}

// serve handles frames on one connection until it closes.
func (s *Server) serve(ctx context.Context, conn net.Conn) {
	for {
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			return
		}
		result := s.handle(ctx, req)
		if err := WriteFrame(conn, result); err != nil {
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req Request) commands.Result {
	role := s.callerRole(ctx, req.SessionID)
	if !Allowed(role, req.Tool) {
		return commands.Failure(commands.NotFound("unknown tool %q", req.Tool))
	}

	meta := commands.Meta{SessionID: req.SessionID}

	switch req.Tool {
	case ToolListComputers:
		return commands.Success(s.registry.Snapshot())

	case ToolListProjects:
		return s.cmds.Handle(ctx, commands.OpListProj, req.Args, meta)

	case ToolListSessions:
		var p struct {
			Computer string `json:"computer,omitempty"`
		}
		json.Unmarshal(req.Args, &p)
		return s.cmds.ListSessionsOn(ctx, p.Computer)

	case ToolStartSession:
		return s.startSession(ctx, req, meta)

	case ToolSendMessage:
		var p struct {
			SessionID string `json:"session_id"`
			Text      string `json:"text"`
			Direct    bool   `json:"direct,omitempty"`
		}
		if err := json.Unmarshal(req.Args, &p); err != nil {
			return commands.Failure(commands.Invalid("malformed send_message args: %v", err))
		}
		m := meta
		m.SessionID = p.SessionID
		return s.cmds.Message(ctx, p.Text, m)

	case ToolSendFile:
		var p struct {
			SessionID string `json:"session_id"`
			Bytes     []byte `json:"bytes"`
			Filename  string `json:"filename"`
		}
		if err := json.Unmarshal(req.Args, &p); err != nil {
			return commands.Failure(commands.Invalid("malformed send_file args: %v", err))
		}
		m := meta
		m.SessionID = p.SessionID
		return s.cmds.File(ctx, p.Bytes, p.Filename, m)

	case ToolGetSessionData:
		return s.sessionData(ctx, req.Args)

	case ToolEndSession:
		return s.cmds.EndSession(ctx, req.Args, meta)

	case ToolStopNotifications:
		var p struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(req.Args, &p); err != nil {
			return commands.Failure(commands.Invalid("malformed stop_notifications args: %v", err))
		}
		s.unsubscribe(req.SessionID, p.SessionID)
		return commands.Success(nil)

	case ToolDeploy:
		return s.deploy(ctx, req.Args, meta)

	case ToolEscalate:
		return s.cmds.Escalate(ctx, req.Args, meta)

	case ToolPinSession:
		return s.cmds.Pin(ctx, req.Args, meta)

	case ToolUnpinSession:
		return s.cmds.Unpin(ctx, req.Args, meta)

	case ToolListSticky:
		return s.cmds.ListSticky(ctx)

	default:
		return commands.Failure(commands.NotFound("unknown tool %q", req.Tool))
	}
}

// callerRole looks up the calling session's role. Callers without a session
// id get admin access; an unknown session id is unauthorized.
func (s *Server) callerRole(ctx context.Context, sessionID string) store.HumanRole {
	if sessionID == "" {
		return store.RoleAdmin // local socket access without a session is operator access
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return store.RoleUnauthorized
	}
	return sess.HumanRole
}

func (s *Server) startSession(ctx context.Context, req Request, meta commands.Meta) commands.Result {
	var p struct {
		commands.NewSessionArgs
		Direct bool `json:"direct,omitempty"`
	}
	if err := json.Unmarshal(req.Args, &p); err != nil {
		return commands.Failure(commands.Invalid("malformed start_session args: %v", err))
	}
	if len(p.AdapterTypes) == 0 {
		p.AdapterTypes = []store.AdapterKind{store.KindRedis}
	}

	args, _ := json.Marshal(p.NewSessionArgs)
	result := s.cmds.NewSession(ctx, args, meta)
	if !result.OK() {
		return result
	}

	// direct=true means peer topology: no fan-out, no listener
	// subscriptions.
	if !p.Direct && req.SessionID != "" {
		var created store.Session
		if err := result.Decode(&created); err == nil {
			s.subscribe(req.SessionID, created.ID)
		}
	}
	return result
}

// subscribe mirrors a watched session's output stream into the caller's
// pane.
func (s *Server) subscribe(callerID, watchedID string) {
	subCtx, cancel := context.WithCancel(context.Background())

	s.subMu.Lock()
	if s.subs[callerID] == nil {
		s.subs[callerID] = make(map[string]context.CancelFunc)
	}
	if old, ok := s.subs[callerID][watchedID]; ok {
		old()
	}
	s.subs[callerID][watchedID] = cancel
	s.subMu.Unlock()

	go s.outputs.Subscribe(subCtx, watchedID, func(entry mesh.OutputEntry) {
		note := fmt.Sprintf("[session %s] %s", watchedID, entry.Agent)
		if _, err := s.br.SendText(subCtx, callerID, note, false); err != nil {
			s.log.Debug("mirror inject failed",
				zap.String("caller", callerID), zap.Error(err))
		}
	})
}

// unsubscribe drops the caller's mirror of a session without closing it.
func (s *Server) unsubscribe(callerID, watchedID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if watched, ok := s.subs[callerID]; ok {
		if cancel, ok := watched[watchedID]; ok {
			cancel()
			delete(watched, watchedID)
		}
	}
}

func (s *Server) sessionData(ctx context.Context, args json.RawMessage) commands.Result {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return commands.Failure(commands.Invalid("malformed get_session_data args: %v", err))
	}
	sess, err := s.sessions.Get(ctx, p.SessionID)
	if err != nil {
		return commands.Failure(commands.NotFound("session %s", p.SessionID))
	}

	data := map[string]interface{}{"session": sess}
	if sess.NativeSessionID != "" {
		if entries, err := transcript.Read(sess.ProjectDir, sess.NativeSessionID); err == nil {
			data["transcript"] = entries
		}
	}
	return commands.Success(data)
}

// deploy dispatches the deploy operation to the named peers.
func (s *Server) deploy(ctx context.Context, args json.RawMessage, meta commands.Meta) commands.Result {
	var p struct {
		Computers []string `json:"computers,omitempty"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return commands.Failure(commands.Invalid("malformed deploy args: %v", err))
	}
	return s.cmds.DeployTo(ctx, p.Computers)
}
