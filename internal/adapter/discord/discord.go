// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package discord implements the Discord adapter and the relay thread
// surface.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/adapter"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/store"
)

// relayThreadAutoArchiveMinutes keeps help-desk threads open for a day.
const relayThreadAutoArchiveMinutes = 1440

// SessionResolver maps an inbound channel to its session.
type SessionResolver func(ctx context.Context, channelID string) (*store.Session, error)

// Handler receives normalized events.
type Handler func(ctx context.Context, event adapter.Event, meta adapter.Metadata) commands.Result

// ThreadHandler receives messages posted inside relay threads. It reports
// whether the message belonged to an active relay.
type ThreadHandler func(ctx context.Context, channelID, authorName string, isBot bool, text string) bool

// Adapter bridges Discord channels to sessions and hosts relay threads.
type Adapter struct {
	session  *discordgo.Session
	cfg      config.DiscordAdapterConfig
	resolve  SessionResolver
	handle   Handler
	onThread ThreadHandler
	log      *zap.Logger
}

// New creates the adapter.
func New(token string, cfg config.DiscordAdapterConfig, resolve SessionResolver, handle Handler, log *zap.Logger) (*Adapter, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord auth: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	a := &Adapter{
		session: s,
		cfg:     cfg,
		resolve: resolve,
		handle:  handle,
		log:     log,
	}
	s.AddHandler(a.onMessageCreate)
	return a, nil
}

// SetThreadHandler wires the relay's thread message routing. Must be set
// before Start when the relay is enabled.
func (a *Adapter) SetThreadHandler(h ThreadHandler) { a.onThread = h }

// Kind identifies the adapter.
func (a *Adapter) Kind() store.AdapterKind { return store.KindDiscord }

// RenderMode selects the human form for chat delivery.
func (a *Adapter) RenderMode() adapter.RenderMode { return adapter.RenderHuman }

// Start opens the gateway connection.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	a.log.Info("discord adapter started")
	return nil
}

// Stop closes the gateway connection.
func (a *Adapter) Stop(ctx context.Context) error {
	return a.session.Close()
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	ctx := context.Background()

	// Relay threads first: admin conversation must not be treated as
	// session input.
	if a.onThread != nil {
		if handled := a.onThread(ctx, m.ChannelID, m.Author.Username, m.Author.Bot, m.Content); handled {
			return
		}
	}
	if m.Author.Bot {
		return
	}

	sess, err := a.resolve(ctx, m.ChannelID)
	meta := adapter.Metadata{
		Kind:           store.KindDiscord,
		PlatformUserID: m.Author.ID,
		UserName:       m.Author.Username,
		MessageID:      m.ID,
	}
	if err == nil && sess != nil {
		meta.SessionID = sess.ID
	}
	if m.Content == "" {
		return
	}

	result := a.handle(ctx, adapter.Event{Type: adapter.EventMessage, Text: m.Content}, meta)
	if !result.OK() && result.Error != nil {
		if _, err := s.ChannelMessageSend(m.ChannelID, "⚠️ "+result.Error.Message); err != nil {
			a.log.Warn("discord error reply failed", zap.Error(err))
		}
	}
}

// SendMessage delivers text to the session's channel or thread.
func (a *Adapter) SendMessage(ctx context.Context, sess *store.Session, text string) (string, error) {
	meta := sess.AdapterMetadata.Discord
	if meta == nil {
		return "", fmt.Errorf("session %s has no discord binding", sess.ID)
	}
	channel := meta.ThreadID
	if channel == "" {
		channel = meta.ChannelID
	}
	msg, err := a.session.ChannelMessageSend(channel, text)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// DeleteMessage removes a previously sent message. Best-effort.
func (a *Adapter) DeleteMessage(ctx context.Context, sess *store.Session, messageID string) error {
	meta := sess.AdapterMetadata.Discord
	if meta == nil {
		return nil
	}
	channel := meta.ThreadID
	if channel == "" {
		channel = meta.ChannelID
	}
	return a.session.ChannelMessageDelete(channel, messageID)
}

// DeliverToSession forwards relayed text with its origin label.
func (a *Adapter) DeliverToSession(ctx context.Context, sess *store.Session, text, originHint string) error {
	line := text
	if originHint != "" {
		line = fmt.Sprintf("%s: %s", originHint, text)
	}
	_, err := a.SendMessage(ctx, sess, line)
	return err
}

// CreateThread opens a help-desk forum thread. Implements the relay's
// ThreadPlatform.
func (a *Adapter) CreateThread(ctx context.Context, title, openingPost string) (string, error) {
	thread, err := a.session.ForumThreadStart(a.cfg.ForumChannelID, title, relayThreadAutoArchiveMinutes, openingPost)
	if err != nil {
		return "", fmt.Errorf("forum thread start: %w", err)
	}
	return thread.ID, nil
}

// PostToThread appends a message to a relay thread.
func (a *Adapter) PostToThread(ctx context.Context, threadID, text string) error {
	_, err := a.session.ChannelMessageSend(threadID, text)
	return err
}
