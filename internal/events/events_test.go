// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestNotifications(t *testing.T) *NotificationStore {
	t.Helper()
	s, err := OpenNotificationStore(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnvelopeWireRoundTrip(t *testing.T) {
	e := &Envelope{
		Type:           "session.escalated",
		Version:        1,
		Source:         "toolserver",
		Timestamp:      time.Now().UTC().Truncate(time.Millisecond),
		IdempotencyKey: "session.escalated:s1:t1",
		Level:          LevelBusiness,
		Domain:         "helpdesk",
		Entity:         "session/s1",
		Description:    "customer escalated",
		Visibility:     VisibilityCluster,
		Payload:        map[string]interface{}{"session_id": "s1", "reason": "billing"},
		Affordances: map[string]Affordance{
			"claim": {Description: "claim the escalation", ProducesR: "escalation.claimed"},
		},
		Resolution: &Resolution{TerminalWhen: "agent_status == resolved"},
		Machine:    "alpha",
	}

	wire, err := e.Wire()
	require.NoError(t, err)
	for _, v := range wire {
		_, ok := v.(string)
		assert.True(t, ok, "wire values must be strings")
	}

	got, err := ParseWire(wire)
	require.NoError(t, err)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.Level, got.Level)
	assert.Equal(t, e.Visibility, got.Visibility)
	assert.Equal(t, "billing", got.Payload["reason"])
	assert.Equal(t, "claim the escalation", got.Affordances["claim"].Description)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, e.Resolution.TerminalWhen, got.Resolution.TerminalWhen)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
}

func TestParseWire_MissingType(t *testing.T) {
	_, err := ParseWire(map[string]interface{}{"source": "x"})
	assert.Error(t, err)
}

func TestSchemaIdempotencyKey(t *testing.T) {
	s := &Schema{Type: "system.daemon.restarted", IdempotencyFields: []string{"computer", "pid"}}
	key := s.IdempotencyKey(map[string]interface{}{"computer": "alpha", "pid": 42})
	assert.Equal(t, "system.daemon.restarted:alpha:42", key)
}

func TestNotificationStateMachine_ClaimedAtOnlyOnFirstClaim(t *testing.T) {
	store := openTestNotifications(t)
	ctx := context.Background()

	e := &Envelope{Type: "t", Description: "d", Level: LevelWorkflow, Visibility: VisibilityLocal}
	n, err := store.Insert(ctx, e, "key-1", "g1")
	require.NoError(t, err)
	assert.Equal(t, AgentNone, n.AgentStatus)
	assert.Nil(t, n.ClaimedAt)

	require.NoError(t, store.Claim(ctx, n.ID, "agent-7"))
	claimed, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.ClaimedAt)
	claimedAt := *claimed.ClaimedAt

	// Second claim is rejected.
	assert.Error(t, store.Claim(ctx, n.ID, "agent-8"))

	// Later transitions leave claimed_at intact.
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, store.SetAgentStatus(ctx, n.ID, AgentInProgress, "agent-7"))
	require.NoError(t, store.Resolve(ctx, n.ID, map[string]interface{}{"summary": "done"}))

	final, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, AgentResolved, final.AgentStatus)
	require.NotNil(t, final.ClaimedAt)
	assert.Equal(t, claimedAt.Unix(), final.ClaimedAt.Unix())
	require.NotNil(t, final.ResolvedAt)
	assert.Equal(t, "done", final.Resolution["summary"])
}

func TestNotificationAxesIndependent(t *testing.T) {
	store := openTestNotifications(t)
	ctx := context.Background()

	e := &Envelope{Type: "t", Description: "d"}
	n, err := store.Insert(ctx, e, "key-1", "")
	require.NoError(t, err)

	// The agent axis advances without the human axis moving.
	require.NoError(t, store.Claim(ctx, n.ID, "a"))
	got, _ := store.Get(ctx, n.ID)
	assert.Equal(t, HumanUnseen, got.HumanStatus)

	// The human axis advances without the agent axis moving.
	require.NoError(t, store.MarkSeen(ctx, n.ID, false))
	got, _ = store.Get(ctx, n.ID)
	assert.Equal(t, HumanSeen, got.HumanStatus)
	assert.Equal(t, AgentClaimed, got.AgentStatus)
	require.NotNil(t, got.SeenAt)

	// And back to unseen.
	require.NoError(t, store.MarkSeen(ctx, n.ID, true))
	got, _ = store.Get(ctx, n.ID)
	assert.Equal(t, HumanUnseen, got.HumanStatus)
	assert.Nil(t, got.SeenAt)
}

func pipeline(t *testing.T, store *NotificationStore) (*DedupCartridge, *ProjectorCartridge, *Registry) {
	t.Helper()
	registry := NewRegistry()
	return NewDedupCartridge(registry, store, zap.NewNop()),
		NewProjectorCartridge(registry, store, zap.NewNop()),
		registry
}

func runPipeline(t *testing.T, dedup *DedupCartridge, projector *ProjectorCartridge, e *Envelope) *Envelope {
	t.Helper()
	out, err := dedup.Process(context.Background(), e)
	require.NoError(t, err)
	if out == nil {
		return nil
	}
	out, err = projector.Process(context.Background(), out)
	require.NoError(t, err)
	return out
}

func TestPipeline_DedupYieldsOneRow(t *testing.T) {
	store := openTestNotifications(t)
	dedup, projector, _ := pipeline(t, store)

	mk := func() *Envelope {
		return &Envelope{
			Type:        "system.daemon.restarted",
			Description: "daemon restarted",
			Level:       LevelInfrastructure,
			Visibility:  VisibilityLocal,
			Payload:     map[string]interface{}{"computer": "alpha", "pid": 42},
		}
	}

	require.NotNil(t, runPipeline(t, dedup, projector, mk()))
	// Identical idempotency fields: dropped by dedup.
	assert.Nil(t, runPipeline(t, dedup, projector, mk()))

	rows, err := store.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPipeline_ReactivationResetsHumanStatus(t *testing.T) {
	store := openTestNotifications(t)
	dedup, projector, registry := pipeline(t, store)
	ctx := context.Background()

	registry.Register(&Schema{
		Type:              "dor_assessed",
		Level:             LevelWorkflow,
		Domain:            "workflow",
		Visibility:        VisibilityLocal,
		IdempotencyFields: []string{"slug", "score"},
		Lifecycle: &Lifecycle{
			Creates:          true,
			Updates:          true,
			GroupKey:         "slug",
			MeaningfulFields: []string{"score"},
		},
	})

	emit := func(score int) {
		e := &Envelope{
			Type:        "dor_assessed",
			Description: "DoR assessed",
			Level:       LevelWorkflow,
			Payload:     map[string]interface{}{"slug": "X", "score": score},
		}
		runPipeline(t, dedup, projector, e)
	}

	emit(7)
	rows, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Human reads it.
	require.NoError(t, store.MarkSeen(ctx, rows[0].ID, false))

	// New score: still one row, human_status flips back to unseen.
	emit(8)
	rows, err = store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, HumanUnseen, rows[0].HumanStatus)
	assert.EqualValues(t, 8, rows[0].Payload["score"])

	// Same score re-emitted: dedup drops it, human_status untouched.
	require.NoError(t, store.MarkSeen(ctx, rows[0].ID, false))
	emit(8)
	rows, _ = store.List(ctx, ListFilter{})
	assert.Equal(t, HumanSeen, rows[0].HumanStatus)
}

func TestPipeline_EmptyMeaningfulFieldsUpdatesSilently(t *testing.T) {
	store := openTestNotifications(t)
	dedup, projector, _ := pipeline(t, store)
	ctx := context.Background()

	emit := func(attempt int) {
		e := &Envelope{
			Type:        "job.failed",
			Description: "job failed",
			Level:       LevelInfrastructure,
			Payload:     map[string]interface{}{"job": "extract", "attempt": attempt},
		}
		runPipeline(t, dedup, projector, e)
	}

	emit(1)
	rows, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, store.MarkSeen(ctx, rows[0].ID, false))

	// Attempt 2 passes dedup (new key) and updates the row silently: no
	// meaningful fields are declared.
	emit(2)
	rows, _ = store.List(ctx, ListFilter{})
	require.Len(t, rows, 1)
	assert.Equal(t, HumanSeen, rows[0].HumanStatus)
	assert.EqualValues(t, 2, rows[0].Payload["attempt"])
}

func TestPipeline_ResolveSetsAgentResolved(t *testing.T) {
	store := openTestNotifications(t)
	dedup, projector, _ := pipeline(t, store)
	ctx := context.Background()

	created := &Envelope{
		Type:        "session.created",
		Description: "session created",
		Level:       LevelOperational,
		Payload:     map[string]interface{}{"session_id": "s1"},
	}
	require.NotNil(t, runPipeline(t, dedup, projector, created))

	closed := &Envelope{
		Type:        "session.closed",
		Description: "session closed",
		Level:       LevelOperational,
		Payload:     map[string]interface{}{"session_id": "s1"},
	}
	runPipeline(t, dedup, projector, closed)

	rows, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, AgentResolved, rows[0].AgentStatus)
	require.NotNil(t, rows[0].ResolvedAt)
}

func TestPipeline_PushCallbacks(t *testing.T) {
	store := openTestNotifications(t)
	dedup, projector, _ := pipeline(t, store)

	type push struct {
		created    bool
		meaningful bool
		level      Level
	}
	var pushes []push
	projector.OnPush(func(id int64, eventType string, wasCreated, isMeaningful bool, level Level) {
		pushes = append(pushes, push{wasCreated, isMeaningful, level})
	})

	e := &Envelope{
		Type:        "session.created",
		Description: "session created",
		Level:       LevelOperational,
		Payload:     map[string]interface{}{"session_id": "s9"},
	}
	runPipeline(t, dedup, projector, e)

	require.Len(t, pushes, 1)
	assert.True(t, pushes[0].created)
	assert.Equal(t, LevelOperational, pushes[0].level)
}

func TestChatDelivery_FiltersLevelAndCreated(t *testing.T) {
	store := openTestNotifications(t)
	ctx := context.Background()
	n, err := store.Insert(ctx, &Envelope{Type: "t", Description: "hello", Domain: "d"}, "k", "")
	require.NoError(t, err)

	var sent []string
	sender := adminSenderFunc(func(ctx context.Context, text string) error {
		sent = append(sent, text)
		return nil
	})
	cb := ChatDelivery(store, sender, zap.NewNop())

	cb(n.ID, "t", true, true, LevelOperational) // below workflow: filtered
	cb(n.ID, "t", false, true, LevelBusiness)   // not created: filtered
	cb(n.ID, "t", true, true, LevelWorkflow)    // delivered

	require.Len(t, sent, 1)
	assert.Equal(t, "[d] hello", sent[0])
}

type adminSenderFunc func(ctx context.Context, text string) error

func (f adminSenderFunc) SendAdminMessage(ctx context.Context, text string) error {
	return f(ctx, text)
}
