// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NotificationsTopic is the push topic WS clients subscribe to.
const NotificationsTopic = "notifications"

// TopicBroadcaster pushes a payload to every subscriber of a topic.
// Implemented by the API WebSocket hub.
type TopicBroadcaster interface {
	Broadcast(topic string, payload interface{})
}

// AdminSender delivers a notification line to the admin chat surface.
type AdminSender interface {
	SendAdminMessage(ctx context.Context, text string) error
}

// WSDelivery broadcasts notification rows directly (no coalescing debounce)
// to clients subscribed to the notifications topic. Non-subscribers do not
// receive the payload; the hub enforces that.
func WSDelivery(store *NotificationStore, hub TopicBroadcaster, log *zap.Logger) PushCallback {
	return func(id int64, eventType string, wasCreated, isMeaningful bool, level Level) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := store.Get(ctx, id)
		if err != nil {
			log.Warn("ws delivery lookup failed", zap.Int64("id", id), zap.Error(err))
			return
		}
		hub.Broadcast(NotificationsTopic, n)
	}
}

// ChatDelivery forwards created notifications at or above workflow level to
// the admin chat platform. The level comes from the callback argument, not a
// re-derivation. Delivery failures are logged and never affect the ACK
// status of the originating event.
func ChatDelivery(store *NotificationStore, sender AdminSender, log *zap.Logger) PushCallback {
	return func(id int64, eventType string, wasCreated, isMeaningful bool, level Level) {
		if !wasCreated || level < LevelWorkflow {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n, err := store.Get(ctx, id)
		if err != nil {
			log.Warn("chat delivery lookup failed", zap.Int64("id", id), zap.Error(err))
			return
		}
		text := fmt.Sprintf("[%s] %s", n.Domain, n.Description)
		if err := sender.SendAdminMessage(ctx, text); err != nil {
			log.Warn("chat delivery failed", zap.Int64("id", id), zap.Error(err))
		}
	}
}
