// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telegram implements the Telegram adapter.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/adapter"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/store"
)

// SessionResolver maps an inbound chat to its session.
type SessionResolver func(ctx context.Context, chatID int64) (*store.Session, error)

// Handler receives normalized events.
type Handler func(ctx context.Context, event adapter.Event, meta adapter.Metadata) commands.Result

// Adapter bridges Telegram chats to sessions.
type Adapter struct {
	bot         *tgbotapi.BotAPI
	cfg         config.TelegramAdapterConfig
	resolve     SessionResolver
	handle      Handler
	allowedIDs  map[int64]struct{}
	log         *zap.Logger
	cancelPolls context.CancelFunc
}

// New creates the adapter, authenticating the bot token.
func New(token string, cfg config.TelegramAdapterConfig, resolve SessionResolver, handle Handler, log *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	allowed := make(map[int64]struct{}, len(cfg.AllowedIDs))
	for _, id := range cfg.AllowedIDs {
		allowed[id] = struct{}{}
	}

	return &Adapter{
		bot:        bot,
		cfg:        cfg,
		resolve:    resolve,
		handle:     handle,
		allowedIDs: allowed,
		log:        log,
	}, nil
}

// Kind identifies the adapter.
func (a *Adapter) Kind() store.AdapterKind { return store.KindTelegram }

// RenderMode selects the human form for chat delivery.
func (a *Adapter) RenderMode() adapter.RenderMode { return adapter.RenderHuman }

// Start begins the update loop.
func (a *Adapter) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancelPolls = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := a.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-loopCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				a.dispatch(loopCtx, update)
			}
		}
	}()
	a.log.Info("telegram adapter started", zap.String("bot", a.bot.Self.UserName))
	return nil
}

// Stop halts the update loop.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancelPolls != nil {
		a.cancelPolls()
	}
	a.bot.StopReceivingUpdates()
	return nil
}

func (a *Adapter) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if len(a.allowedIDs) > 0 {
		if _, ok := a.allowedIDs[msg.From.ID]; !ok {
			a.log.Debug("telegram message from unlisted user dropped",
				zap.Int64("user", msg.From.ID))
			return
		}
	}

	sess, err := a.resolve(ctx, msg.Chat.ID)
	meta := adapter.Metadata{
		Kind:           store.KindTelegram,
		PlatformUserID: strconv.FormatInt(msg.From.ID, 10),
		UserName:       displayName(msg.From),
		Locale:         msg.From.LanguageCode,
		MessageID:      strconv.Itoa(msg.MessageID),
	}
	if err == nil && sess != nil {
		meta.SessionID = sess.ID
	}

	event, ok := a.normalize(msg)
	if !ok {
		return
	}
	result := a.handle(ctx, event, meta)
	if !result.OK() && result.Error != nil {
		reply := tgbotapi.NewMessage(msg.Chat.ID, "⚠️ "+result.Error.Message)
		if _, err := a.bot.Send(reply); err != nil {
			a.log.Warn("telegram error reply failed", zap.Error(err))
		}
	}
}

func (a *Adapter) normalize(msg *tgbotapi.Message) (adapter.Event, bool) {
	switch {
	case msg.Voice != nil:
		return adapter.Event{Type: adapter.EventVoice, Blob: []byte(msg.Voice.FileID)}, true
	case msg.Document != nil:
		data, err := a.download(msg.Document.FileID)
		if err != nil {
			a.log.Warn("telegram file download failed", zap.Error(err))
			return adapter.Event{}, false
		}
		return adapter.Event{Type: adapter.EventFile, Blob: data, Filename: msg.Document.FileName}, true
	case strings.HasPrefix(msg.Text, "/"):
		fields := strings.Fields(strings.TrimPrefix(msg.Text, "/"))
		if len(fields) == 0 {
			return adapter.Event{}, false
		}
		return adapter.Event{Type: adapter.EventCommand, Name: fields[0], Args: fields[1:]}, true
	case msg.Text != "":
		return adapter.Event{Type: adapter.EventMessage, Text: msg.Text}, true
	default:
		return adapter.Event{}, false
	}
}

func (a *Adapter) download(fileID string) ([]byte, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	return fetchURL(url)
}

// SendMessage delivers text to the session's chat.
func (a *Adapter) SendMessage(ctx context.Context, sess *store.Session, text string) (string, error) {
	meta := sess.AdapterMetadata.Telegram
	if meta == nil {
		return "", fmt.Errorf("session %s has no telegram binding", sess.ID)
	}
	msg := tgbotapi.NewMessage(meta.ChatID, text)
	sent, err := a.bot.Send(msg)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

// DeleteMessage removes a previously sent message. Best-effort.
func (a *Adapter) DeleteMessage(ctx context.Context, sess *store.Session, messageID string) error {
	meta := sess.AdapterMetadata.Telegram
	if meta == nil {
		return nil
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return err
	}
	_, err = a.bot.Request(tgbotapi.NewDeleteMessage(meta.ChatID, id))
	return err
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

// SendAdminMessage delivers a notification line to the admin chat.
// Implements the event platform's chat delivery sink.
func (a *Adapter) SendAdminMessage(ctx context.Context, text string) error {
	if a.cfg.AdminChatID == 0 {
		return fmt.Errorf("no admin chat configured")
	}
	_, err := a.bot.Send(tgbotapi.NewMessage(a.cfg.AdminChatID, text))
	return err
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
