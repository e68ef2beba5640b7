package supervisor

import (
	"context"
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
	"github.com/dyluth/roost/pkg/trace"
)

// stubAdapter is a scripted in-memory runtime. Each StreamPrompt invocation
// runs the stream function in its own goroutine, mirroring the real
// subprocess contract (channel closed on exit, cancellation cooperative).
type stubAdapter struct {
	kind   store.RuntimeKind
	stream func(ctx context.Context, message string, ch chan<- adapter.Event)
}

func (s *stubAdapter) Kind() store.RuntimeKind { return s.kind }

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

// scripted builds a stream function that emits a fixed event sequence.
func scripted(events ...adapter.Event) func(context.Context, string, chan<- adapter.Event) {
	return func(ctx context.Context, message string, ch chan<- adapter.Event) {
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// hanging builds a stream function that blocks until cancelled.
func hanging() func(context.Context, string, chan<- adapter.Event) {
	return func(ctx context.Context, message string, ch chan<- adapter.Event) {
		ch <- adapter.Event{Type: adapter.EventStatus, Message: "working"}
		<-ctx.Done()
	}
}

// setupTestSupervisor wires a supervisor over miniredis with the given stub
func setupTestSupervisor(t *testing.T, stub *stubAdapter) (*Supervisor, *bus.Bus, *store.Client) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := store.NewClient(&redis.Options{Addr: mr.Addr()}, "test-workbench")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	eventBus := bus.New(client)
	registry := adapter.NewRegistry(stub)
	sup := New(client, eventBus, registry, trace.NewTracer(client))
	return sup, eventBus, client
}

func testSpec() LaunchSpec {
	return LaunchSpec{AgentName: "coder", Runtime: store.RuntimeClaude, WorkDir: "/tmp"}
}

func TestLaunch(t *testing.T) {
	ctx := context.Background()

	t.Run("successful turn ends idle with logged events", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted(
			adapter.Event{Type: adapter.EventStatus, Message: "init"},
			adapter.Event{Type: adapter.EventAssistant, Blocks: []adapter.ContentBlock{{Type: "text", Text: "on it"}}},
			adapter.Event{Type: adapter.EventDone, Result: "patched"},
		)}
		sup, eventBus, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "fix the bug", nil)
		require.NoError(t, err)
		require.NoError(t, sup.Wait(ctx, instance.ID))

		got, err := sup.Instance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusIdle, got.Status)
		assert.Empty(t, got.LastError)

		logs, err := sup.Logs(ctx, instance.ID)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "on it", logs[1].Message)
		assert.Equal(t, "done", logs[2].Message)

		events, err := eventBus.Check(ctx, bus.Filter{Source: bus.AgentSource(instance.ID)})
		require.NoError(t, err)
		types := make([]string, len(events))
		for i, e := range events {
			types[i] = e.Type
		}
		assert.Contains(t, types, "agent.started")
		assert.Contains(t, types, "agent.idle")
	})

	t.Run("returns a snapshot the drain does not mutate", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: hanging()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "long task", nil)
		require.NoError(t, err)
		assert.Equal(t, store.StatusRunning, instance.Status)

		require.NoError(t, sup.Stop(ctx, instance.ID))
		require.NoError(t, sup.Wait(ctx, instance.ID))

		got, err := sup.Instance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusTerminated, got.Status)
		assert.Equal(t, store.StatusRunning, instance.Status, "caller's copy is detached from the drain")
	})

	t.Run("without prompt the instance is immediately idle", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "", nil)
		require.NoError(t, err)
		assert.Equal(t, store.StatusIdle, instance.Status)
	})

	t.Run("unknown runtime is rejected", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		spec := testSpec()
		spec.Runtime = store.RuntimeCodex
		_, err := sup.Launch(ctx, spec, "", nil)
		assert.True(t, faults.IsValidation(err))
	})

	t.Run("empty agent name is rejected", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		_, err := sup.Launch(ctx, LaunchSpec{Runtime: store.RuntimeClaude}, "", nil)
		assert.True(t, faults.IsValidation(err))
	})
}

func TestTurnError(t *testing.T) {
	ctx := context.Background()
	stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted(
		adapter.Event{Type: adapter.EventError, Message: "rate limited"},
	)}
	sup, eventBus, _ := setupTestSupervisor(t, stub)

	instance, err := sup.Launch(ctx, testSpec(), "go", nil)
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, instance.ID))

	got, err := sup.Instance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, got.Status)
	assert.Equal(t, "rate limited", got.LastError)

	events, err := eventBus.Check(ctx, bus.Filter{Type: "agent.error", Source: bus.AgentSource(instance.ID)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "rate limited", events[0].Payload["error"])
}

func TestPrompt(t *testing.T) {
	ctx := context.Background()

	t.Run("follow-up turn runs on an idle instance", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted(
			adapter.Event{Type: adapter.EventDone, Result: "ok"},
		)}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "", nil)
		require.NoError(t, err)

		var seen []adapter.EventType
		obs := func(_ string, ev adapter.Event) { seen = append(seen, ev.Type) }
		require.NoError(t, sup.Prompt(ctx, instance.ID, "next task", obs))
		require.NoError(t, sup.Wait(ctx, instance.ID))

		assert.Equal(t, []adapter.EventType{adapter.EventDone}, seen)
		got, err := sup.Instance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusIdle, got.Status)
	})

	t.Run("prompting a running instance is invalid", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: hanging()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "long task", nil)
		require.NoError(t, err)

		err = sup.Prompt(ctx, instance.ID, "another", nil)
		assert.True(t, faults.IsInvalidState(err))

		require.NoError(t, sup.Stop(ctx, instance.ID))
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "", nil)
		require.NoError(t, err)
		err = sup.Prompt(ctx, instance.ID, "", nil)
		assert.True(t, faults.IsValidation(err))
	})

	t.Run("unknown instance is not found", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		err := sup.Prompt(ctx, uuid.New().String(), "hello", nil)
		assert.True(t, faults.IsNotFound(err))
	})
}

func TestStop(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels an in-flight turn and terminates", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: hanging()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "long task", nil)
		require.NoError(t, err)

		require.NoError(t, sup.Stop(ctx, instance.ID))
		require.NoError(t, sup.Wait(ctx, instance.ID))

		got, err := sup.Instance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusTerminated, got.Status)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "", nil)
		require.NoError(t, err)

		require.NoError(t, sup.Stop(ctx, instance.ID))
		require.NoError(t, sup.Stop(ctx, instance.ID))

		got, err := sup.Instance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusTerminated, got.Status)
	})

	t.Run("terminated is absorbing", func(t *testing.T) {
		stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
		sup, _, _ := setupTestSupervisor(t, stub)

		instance, err := sup.Launch(ctx, testSpec(), "", nil)
		require.NoError(t, err)
		require.NoError(t, sup.Stop(ctx, instance.ID))

		err = sup.Prompt(ctx, instance.ID, "anything", nil)
		assert.True(t, faults.IsInvalidState(err))
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted(
		adapter.Event{Type: adapter.EventDone, Result: "ok"},
	)}
	sup, _, client := setupTestSupervisor(t, stub)

	instance, err := sup.Launch(ctx, testSpec(), "task", nil)
	require.NoError(t, err)
	require.NoError(t, sup.Wait(ctx, instance.ID))

	t.Run("refuses to remove a live instance", func(t *testing.T) {
		err := sup.Remove(ctx, instance.ID)
		assert.True(t, faults.IsInvalidState(err))
	})

	t.Run("removes a terminated instance and its logs", func(t *testing.T) {
		require.NoError(t, sup.Stop(ctx, instance.ID))
		require.NoError(t, sup.Remove(ctx, instance.ID))

		_, err := client.GetAgent(ctx, instance.ID)
		assert.True(t, faults.IsNotFound(err))

		logs, err := client.GetLogs(ctx, instance.ID)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}

func TestOrphanRecovery(t *testing.T) {
	ctx := context.Background()
	stub := &stubAdapter{kind: store.RuntimeClaude, stream: scripted()}
	sup, eventBus, client := setupTestSupervisor(t, stub)

	// Simulate a crash: a stored running instance with no drain goroutine
	// in this process.
	now := time.Now().UnixMilli()
	orphan := &store.AgentInstance{
		ID:           uuid.New().String(),
		AgentName:    "coder",
		Runtime:      store.RuntimeClaude,
		Status:       store.StatusRunning,
		SessionID:    uuid.New().String(),
		StartedAtMs:  now,
		LastActiveMs: now,
	}
	require.NoError(t, client.PutAgent(ctx, orphan))

	got, err := sup.Instance(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, got.Status)
	assert.Contains(t, got.LastError, "orphaned")

	events, err := eventBus.Check(ctx, bus.Filter{Type: "agent.error", Source: bus.AgentSource(orphan.ID)})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
