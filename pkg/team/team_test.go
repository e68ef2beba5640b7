package team

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/roost/pkg/adapter"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/supervisor"
	"github.com/dyluth/roost/pkg/trace"
)

// stubAdapter scripts agent turns by prompt text, so one adapter can play
// both the supervisor member and the workers it delegates to.
type stubAdapter struct {
	stream func(ctx context.Context, message string, ch chan<- adapter.Event)
}

func (s *stubAdapter) Kind() store.RuntimeKind { return store.RuntimeClaude }

func (s *stubAdapter) CreateSession(ctx context.Context, cwd, label string) (string, error) {
	return uuid.New().String(), nil
}

func (s *stubAdapter) StreamPrompt(ctx context.Context, sessionID, cwd, message string) (<-chan adapter.Event, error) {
	ch := make(chan adapter.Event, 8)
	go func() {
		defer close(ch)
		s.stream(ctx, message, ch)
	}()
	return ch, nil
}

type fixture struct {
	manager *Manager
	sup     *supervisor.Supervisor
	bus     *bus.Bus
	client  *store.Client
	stub    *stubAdapter
}

func setupTestManager(t *testing.T) *fixture {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-workbench")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	stub := &stubAdapter{stream: func(ctx context.Context, message string, ch chan<- adapter.Event) {
		ch <- adapter.Event{Type: adapter.EventDone, Result: "ok"}
	}}
	eventBus := bus.New(client)
	sup := supervisor.New(client, eventBus, adapter.NewRegistry(stub), trace.NewTracer(client))

	manager := NewManager(client, eventBus, sup)
	manager.SetPollInterval(10 * time.Millisecond)
	return &fixture{manager: manager, sup: sup, bus: eventBus, client: client, stub: stub}
}

func (f *fixture) launchIdle(t *testing.T, name string) *store.AgentInstance {
	t.Helper()
	instance, err := f.sup.Launch(context.Background(), supervisor.LaunchSpec{
		AgentName: name,
		Runtime:   store.RuntimeClaude,
		WorkDir:   "/tmp",
	}, "", nil)
	require.NoError(t, err)
	return instance
}

func TestCreate(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	t.Run("creates team with existing members", func(t *testing.T) {
		lead := f.launchIdle(t, "lead")
		coder := f.launchIdle(t, "coder")

		team, err := f.manager.Create(ctx, "builders", "builds things", []store.TeamMember{
			{InstanceID: lead.ID, Role: "lead"},
			{InstanceID: coder.ID, Role: "builder"},
		}, lead.ID)
		require.NoError(t, err)
		assert.Equal(t, store.TeamIdle, team.Status)
		assert.Equal(t, lead.ID, team.SupervisorID)

		got, err := f.manager.Get(ctx, team.ID)
		require.NoError(t, err)
		assert.Len(t, got.Members, 2)
	})

	t.Run("rejects unknown member instance", func(t *testing.T) {
		_, err := f.manager.Create(ctx, "ghosts", "", []store.TeamMember{
			{InstanceID: uuid.New().String(), Role: "x"},
		}, "")
		assert.True(t, faults.IsValidation(err))
	})

	t.Run("rejects supervisor outside the team", func(t *testing.T) {
		member := f.launchIdle(t, "solo")
		outsider := f.launchIdle(t, "outsider")
		_, err := f.manager.Create(ctx, "odd", "", []store.TeamMember{
			{InstanceID: member.ID, Role: "x"},
		}, outsider.ID)
		assert.True(t, faults.IsValidation(err))
	})
}

func TestDelete(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	member := f.launchIdle(t, "coder")
	team, err := f.manager.Create(ctx, "builders", "", []store.TeamMember{
		{InstanceID: member.ID, Role: "builder"},
	}, "")
	require.NoError(t, err)

	_, err = f.manager.WriteNote(ctx, team.ID, "plan", "step 1", member.ID)
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(ctx, team.ID))

	_, err = f.manager.Get(ctx, team.ID)
	assert.True(t, faults.IsNotFound(err))

	// The member instance is not stopped by team removal.
	got, err := f.sup.Instance(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIdle, got.Status)
}

func TestBlackboardVersioning(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	member := f.launchIdle(t, "coder")
	team, err := f.manager.Create(ctx, "builders", "", []store.TeamMember{
		{InstanceID: member.ID, Role: "builder"},
	}, "")
	require.NoError(t, err)

	// N writes to the same key yield versions 1..N regardless of writer.
	for i := 1; i <= 5; i++ {
		note, err := f.manager.WriteNote(ctx, team.ID, "progress", fmt.Sprintf("update %d", i), member.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), note.Version)
	}

	notes, err := f.manager.Notes(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "update 5", notes[0].Value)
}

func TestStartWithoutSupervisor(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	member := f.launchIdle(t, "coder")
	team, err := f.manager.Create(ctx, "leaderless", "", []store.TeamMember{
		{InstanceID: member.ID, Role: "builder"},
	}, "")
	require.NoError(t, err)

	err = f.manager.Start(ctx, team.ID, "do something", nil, nil)
	assert.True(t, faults.IsInvalidState(err))

	got, err := f.manager.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TeamError, got.Status)
}

func TestStartDelegation(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	lead := f.launchIdle(t, "lead")
	builder := f.launchIdle(t, "builder")

	team, err := f.manager.Create(ctx, "builders", "", []store.TeamMember{
		{InstanceID: lead.ID, Role: "lead"},
		{InstanceID: builder.ID, Role: "builder"},
	}, lead.ID)
	require.NoError(t, err)

	// The supervisor member delegates once, the builder completes the task,
	// and the relayed outcome ends the activity.
	f.stub.stream = func(ctx context.Context, message string, ch chan<- adapter.Event) {
		switch message {
		case "build the feature":
			_, err := f.bus.Publish(ctx, "task.delegated", bus.TeamSource(team.ID), map[string]any{
				"task_id": "t1",
				"role":    "builder",
				"task":    "implement the feature",
			})
			if err != nil {
				ch <- adapter.Event{Type: adapter.EventError, Message: err.Error()}
				return
			}
			ch <- adapter.Event{Type: adapter.EventDone, Result: "delegated to builder"}
		case "implement the feature":
			ch <- adapter.Event{Type: adapter.EventDone, Result: "feature implemented"}
		default:
			ch <- adapter.Event{Type: adapter.EventDone, Result: "activity wrapped up"}
		}
	}

	// The loop relays every task event it handles to the caller's hook.
	var hookMu sync.Mutex
	var hooked []string
	hook := func(event *store.BusEvent) {
		hookMu.Lock()
		hooked = append(hooked, event.Type)
		hookMu.Unlock()
	}

	require.NoError(t, f.manager.Start(ctx, team.ID, "build the feature", nil, hook))

	got, err := f.manager.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TeamIdle, got.Status)

	hookMu.Lock()
	assert.ElementsMatch(t, []string{"task.delegated", "task.completed"}, hooked)
	hookMu.Unlock()

	// The delegation and its outcome are on the bus, both consumed by the
	// coordination loop.
	events, err := f.bus.Check(ctx, bus.Filter{Type: "task.%", Source: bus.TeamSource(team.ID)})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, event := range events {
		assert.True(t, event.Consumed(), "event %s should be claimed", event.Type)
	}

	completed, err := f.bus.Check(ctx, bus.Filter{Type: "task.completed", Source: bus.TeamSource(team.ID)})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "feature implemented", completed[0].Payload["result"])
	assert.Equal(t, builder.ID, completed[0].Payload["member"])

	lifecycle, err := f.bus.Check(ctx, bus.Filter{Type: "team.%", Source: bus.TeamSource(team.ID)})
	require.NoError(t, err)
	types := make([]string, len(lifecycle))
	for i, e := range lifecycle {
		types[i] = e.Type
	}
	assert.Contains(t, types, "team.started")
	assert.Contains(t, types, "team.completed")
}

func TestStartSupervisorTurnFails(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	lead := f.launchIdle(t, "lead")
	team, err := f.manager.Create(ctx, "builders", "", []store.TeamMember{
		{InstanceID: lead.ID, Role: "lead"},
	}, lead.ID)
	require.NoError(t, err)

	f.stub.stream = func(ctx context.Context, message string, ch chan<- adapter.Event) {
		ch <- adapter.Event{Type: adapter.EventError, Message: "model unavailable"}
	}

	err = f.manager.Start(ctx, team.ID, "do work", nil, nil)
	require.Error(t, err)
	assert.True(t, faults.IsAdapterFailure(err))

	got, err := f.manager.Get(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TeamError, got.Status)

	// No automatic retry: the supervisor saw exactly one prompt.
	errored, err := f.bus.Check(ctx, bus.Filter{Type: "team.error", Source: bus.TeamSource(team.ID)})
	require.NoError(t, err)
	assert.Len(t, errored, 1)
}

func TestDelegationToUnknownRole(t *testing.T) {
	f := setupTestManager(t)
	ctx := context.Background()

	lead := f.launchIdle(t, "lead")
	team, err := f.manager.Create(ctx, "builders", "", []store.TeamMember{
		{InstanceID: lead.ID, Role: "lead"},
	}, lead.ID)
	require.NoError(t, err)

	f.stub.stream = func(ctx context.Context, message string, ch chan<- adapter.Event) {
		if message == "kick off" {
			f.bus.Publish(ctx, "task.delegated", bus.TeamSource(team.ID), map[string]any{
				"task_id": "t1",
				"role":    "painter",
				"task":    "paint it",
			})
		}
		ch <- adapter.Event{Type: adapter.EventDone, Result: "ok"}
	}

	var hooked []string
	hook := func(event *store.BusEvent) { hooked = append(hooked, event.Type) }
	require.NoError(t, f.manager.Start(ctx, team.ID, "kick off", nil, hook))
	assert.Equal(t, []string{"task.delegated", "task.failed"}, hooked)

	failed, err := f.bus.Check(ctx, bus.Filter{Type: "task.failed", Source: bus.TeamSource(team.ID)})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Payload["error"], "painter")
}
