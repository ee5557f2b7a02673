// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store persists sessions and the peer cache in teleclaude.db.
package store

import (
	"fmt"
	"time"
)

// AdapterKind identifies an adapter binding.
type AdapterKind string

const (
	KindTelegram AdapterKind = "telegram"
	KindDiscord  AdapterKind = "discord"
	KindWhatsApp AdapterKind = "whatsapp"
	KindWeb      AdapterKind = "web"
	KindRest     AdapterKind = "rest"
	KindRedis    AdapterKind = "redis"
)

// AgentVariant identifies which agent CLI drives a session.
type AgentVariant string

const (
	AgentClaude AgentVariant = "claude"
	AgentGemini AgentVariant = "gemini"
	AgentCodex  AgentVariant = "codex"
)

// ThinkingMode selects the agent's reasoning depth.
type ThinkingMode string

const (
	ThinkingFast   ThinkingMode = "fast"
	ThinkingMedium ThinkingMode = "medium"
	ThinkingSlow   ThinkingMode = "slow"
	ThinkingDeep   ThinkingMode = "deep"
)

// Status is the session lifecycle status.
type Status string

const (
	StatusActive        Status = "active"
	StatusClosed        Status = "closed"
	StatusIdleCompacted Status = "idle-compacted"
)

// HumanRole scopes what the session's human may do.
type HumanRole string

const (
	RoleAdmin        HumanRole = "admin"
	RoleMember       HumanRole = "member"
	RoleContributor  HumanRole = "contributor"
	RoleNewcomer     HumanRole = "newcomer"
	RoleCustomer     HumanRole = "customer"
	RoleUnauthorized HumanRole = "unauthorized"
)

// RelayStatus marks help-desk diversion.
type RelayStatus string

const (
	RelayNone   RelayStatus = ""
	RelayActive RelayStatus = "active"
)

// TelegramMeta is the Telegram adapter's private session metadata.
type TelegramMeta struct {
	ChatID  int64 `json:"chat_id"`
	TopicID int   `json:"topic_id,omitempty"`
	UserID  int64 `json:"user_id,omitempty"`
}

// DiscordMeta is the Discord adapter's private session metadata.
type DiscordMeta struct {
	ChannelID string `json:"channel_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// WhatsAppMeta is the WhatsApp adapter's private session metadata.
type WhatsAppMeta struct {
	JID string `json:"jid"`
}

// WebMeta is the web adapter's private session metadata.
type WebMeta struct {
	ClientID string `json:"client_id"`
}

// RedisMeta is the stream adapter's private session metadata.
type RedisMeta struct {
	StreamName string `json:"stream_name"`
}

// AdapterMetadata maps each adapter kind to its concrete record. Kinds with
// a nil record carry no adapter-private state.
type AdapterMetadata struct {
	Telegram *TelegramMeta `json:"telegram,omitempty"`
	Discord  *DiscordMeta  `json:"discord,omitempty"`
	WhatsApp *WhatsAppMeta `json:"whatsapp,omitempty"`
	Web      *WebMeta      `json:"web,omitempty"`
	Redis    *RedisMeta    `json:"redis,omitempty"`
}

// UXState holds recognized per-session UI flags plus a forward-compatible
// extras tail.
type UXState struct {
	NotificationSent bool                   `json:"notification_sent"`
	Extras           map[string]interface{} `json:"extras,omitempty"`
}

// Session is one persistent agent pane bound to a set of adapters.
type Session struct {
	ID                 string
	Computer           string
	Pane               string
	ProjectDir         string
	Agent              AgentVariant
	ThinkingMode       ThinkingMode
	Title              string
	Status             Status
	AdapterTypes       []AdapterKind
	AdapterMetadata    AdapterMetadata
	InitiatorSessionID string
	HumanRole          HumanRole
	HumanEmail         string
	IdentityKey        string
	RelayStatus        RelayStatus
	RelayChannelID     string
	RelayStartedAt     time.Time
	NativeSessionID    string
	UX                 UXState
	OutputBaseline     string

	CreatedAt              time.Time
	LastActivityAt         time.Time
	LastSummary            string
	LastSummaryAt          time.Time
	LastMemoryExtractionAt time.Time
	HelpDeskProcessedAt    time.Time
}

// HasAdapter reports whether the session is bound to the given kind.
func (s *Session) HasAdapter(kind AdapterKind) bool {
	for _, k := range s.AdapterTypes {
		if k == kind {
			return true
		}
	}
	return false
}

// DeriveIdentityKey computes "{platform}:{platform_user_id}" from adapter
// metadata, preferring the first bound adapter that carries a user identity.
func (s *Session) DeriveIdentityKey() string {
	for _, kind := range s.AdapterTypes {
		switch kind {
		case KindTelegram:
			if m := s.AdapterMetadata.Telegram; m != nil && m.UserID != 0 {
				return fmt.Sprintf("telegram:%d", m.UserID)
			}
		case KindDiscord:
			if m := s.AdapterMetadata.Discord; m != nil && m.UserID != "" {
				return "discord:" + m.UserID
			}
		case KindWhatsApp:
			if m := s.AdapterMetadata.WhatsApp; m != nil && m.JID != "" {
				return "whatsapp:" + m.JID
			}
		case KindWeb:
			if m := s.AdapterMetadata.Web; m != nil && m.ClientID != "" {
				return "web:" + m.ClientID
			}
		}
	}
	return ""
}

// Peer is a machine observed on the heartbeat stream.
type Peer struct {
	Machine       string
	User          string
	Host          string
	TransportPath string
	LastHeartbeat time.Time
}

// Online reports whether the peer's last heartbeat is within ttl of now.
func (p *Peer) Online(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastHeartbeat) < ttl
}
