// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// NotificationClient provides access to the notification surface.
type NotificationClient struct {
	c *Client
}

// Notification mirrors the server row.
type Notification struct {
	ID          int64                  `json:"id"`
	EventType   string                 `json:"event_type"`
	Level       int                    `json:"level"`
	Domain      string                 `json:"domain"`
	Description string                 `json:"description"`
	Payload     map[string]interface{} `json:"payload"`
	HumanStatus string                 `json:"human_status"`
	AgentStatus string                 `json:"agent_status"`
	AgentID     string                 `json:"agent_id"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NotificationQuery filters listings.
type NotificationQuery struct {
	Level       *int
	Domain      string
	HumanStatus string
	AgentStatus string
	Visibility  string
	Since       time.Time
	Limit       int
	Offset      int
}

func (q NotificationQuery) encode() string {
	values := url.Values{}
	if q.Level != nil {
		values.Set("level", strconv.Itoa(*q.Level))
	}
	if q.Domain != "" {
		values.Set("domain", q.Domain)
	}
	if q.HumanStatus != "" {
		values.Set("human_status", q.HumanStatus)
	}
	if q.AgentStatus != "" {
		values.Set("agent_status", q.AgentStatus)
	}
	if q.Visibility != "" {
		values.Set("visibility", q.Visibility)
	}
	if !q.Since.IsZero() {
		values.Set("since", q.Since.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if encoded := values.Encode(); encoded != "" {
		return "?" + encoded
	}
	return ""
}

// List returns notifications under the query.
func (n *NotificationClient) List(ctx context.Context, q NotificationQuery) ([]Notification, error) {
	var out []Notification
	if err := n.c.do(ctx, "GET", "/api/notifications"+q.encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one notification.
func (n *NotificationClient) Get(ctx context.Context, id int64) (*Notification, error) {
	var out Notification
	if err := n.c.do(ctx, "GET", fmt.Sprintf("/api/notifications/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkSeen flips the human axis.
func (n *NotificationClient) MarkSeen(ctx context.Context, id int64, unseen bool) error {
	path := fmt.Sprintf("/api/notifications/%d/seen", id)
	if unseen {
		path += "?unseen=true"
	}
	return n.c.do(ctx, "PATCH", path, nil, nil)
}

// Claim claims a notification for an agent.
func (n *NotificationClient) Claim(ctx context.Context, id int64, agentID string) error {
	path := fmt.Sprintf("/api/notifications/%d/claim", id)
	return n.c.do(ctx, "POST", path, map[string]string{"agent_id": agentID}, nil)
}

// SetStatus advances the agent axis.
func (n *NotificationClient) SetStatus(ctx context.Context, id int64, status, agentID string) error {
	path := fmt.Sprintf("/api/notifications/%d/status", id)
	return n.c.do(ctx, "PATCH", path, map[string]string{"status": status, "agent_id": agentID}, nil)
}

// Resolve terminates a notification.
func (n *NotificationClient) Resolve(ctx context.Context, id int64, summary, link, resolvedBy string) error {
	path := fmt.Sprintf("/api/notifications/%d/resolve", id)
	body := map[string]string{"summary": summary, "resolved_by": resolvedBy}
	if link != "" {
		body["link"] = link
	}
	return n.c.do(ctx, "POST", path, body, nil)
}
