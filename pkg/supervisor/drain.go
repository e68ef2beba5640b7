package supervisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/roost/pkg/adapter"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

// startTurn begins one prompt turn: marks the instance running, opens the
// adapter stream and hands it to a background drain goroutine. The turn's
// context is detached from the caller's so the stream outlives the call;
// Stop cancels it.
func (s *Supervisor) startTurn(ctx context.Context, instance *store.AgentInstance, ad adapter.Adapter, message string, obs Observer) error {
	s.mu.Lock()
	if _, busy := s.live[instance.ID]; busy {
		s.mu.Unlock()
		return faults.InvalidState("instance %s already has a turn in flight", instance.ID)
	}
	turnCtx, cancel := context.WithCancel(context.Background())
	li := &liveInstance{cancel: cancel, done: make(chan struct{})}
	s.live[instance.ID] = li
	s.mu.Unlock()

	fail := func(cause error) error {
		cancel()
		s.mu.Lock()
		delete(s.live, instance.ID)
		s.mu.Unlock()
		close(li.done)

		instance.Status = store.StatusError
		instance.LastError = cause.Error()
		instance.LastActiveMs = time.Now().UnixMilli()
		if err := s.client.PutAgent(ctx, instance); err != nil {
			log.Printf("[WARN] failed to record turn start failure for %s: %v", instance.ID, err)
		}
		s.publish(ctx, "agent.error", instance.ID, map[string]any{"error": cause.Error()})
		return fmt.Errorf("failed to start turn: %w", cause)
	}

	events, err := ad.StreamPrompt(turnCtx, instance.SessionID, instance.WorkDir, message)
	if err != nil {
		return fail(err)
	}

	instance.Status = store.StatusRunning
	instance.LastError = ""
	instance.LastActiveMs = time.Now().UnixMilli()
	if err := s.client.PutAgent(ctx, instance); err != nil {
		return fail(err)
	}
	s.logEvent("turn_started", map[string]interface{}{
		"instance_id": instance.ID,
		"agent":       instance.AgentName,
	})

	go s.drain(instance, li, events, obs)
	return nil
}

// drain consumes a turn's event stream to exhaustion. Every event is
// appended to the instance log and forwarded to the observer; tool
// invocations become trace spans. The final status is decided once the
// channel closes: error event -> error, otherwise idle. A clean channel
// close without a terminal marker counts as a successful end of turn.
//
// Store writes use a background context because the turn context is
// cancelled by Stop, and the terminal bookkeeping must still land.
func (s *Supervisor) drain(instance *store.AgentInstance, li *liveInstance, events <-chan adapter.Event, obs Observer) {
	ctx := context.Background()
	tr := s.tracer.Begin(ctx, "agent", bus.AgentSource(instance.ID))

	pendingTools := make(map[string]int64) // tool key -> start ms
	var terminal *adapter.Event

	for ev := range events {
		now := time.Now().UnixMilli()

		level := store.LogInfo
		if ev.Type == adapter.EventError {
			level = store.LogError
		}
		entry := &store.LogEntry{TimestampMs: now, Level: level, Message: ev.Summary()}
		if err := s.client.AppendLog(ctx, instance.ID, entry); err != nil {
			log.Printf("[WARN] failed to append log for instance %s: %v", instance.ID, err)
		}

		switch ev.Type {
		case adapter.EventToolUse:
			pendingTools[toolKey(ev)] = now
		case adapter.EventToolResult:
			if start, ok := pendingTools[toolKey(ev)]; ok {
				delete(pendingTools, toolKey(ev))
				s.tracer.Span(ctx, tr.ID, "tool:"+ev.ToolName, "completed", start, now)
			}
		}

		if ev.Terminal() {
			evCopy := ev
			terminal = &evCopy
		}
		if obs != nil {
			obs(instance.ID, ev)
		}
	}

	// The final status write happens under the supervisor lock so a
	// concurrent Stop either sets stopped before we look (we skip the
	// write) or observes our write and overwrites it with terminated.
	s.mu.Lock()
	stopped := li.stopped
	delete(s.live, instance.ID)

	if !stopped {
		instance.LastActiveMs = time.Now().UnixMilli()
		if terminal != nil && terminal.Type == adapter.EventError {
			instance.Status = store.StatusError
			instance.LastError = terminal.Message
		} else {
			instance.Status = store.StatusIdle
			instance.LastError = ""
		}
		if err := s.client.PutAgent(ctx, instance); err != nil {
			log.Printf("[WARN] failed to record turn end for instance %s: %v", instance.ID, err)
		}
	}
	s.mu.Unlock()

	switch {
	case stopped:
		s.tracer.End(ctx, tr, "terminated")
	case instance.Status == store.StatusError:
		s.logEvent("turn_failed", map[string]interface{}{
			"instance_id": instance.ID,
			"error":       instance.LastError,
		})
		s.publish(ctx, "agent.error", instance.ID, map[string]any{"error": instance.LastError})
		s.tracer.End(ctx, tr, "error")
	default:
		payload := map[string]any{}
		if terminal != nil && terminal.Result != "" {
			payload["result"] = terminal.Result
		}
		s.logEvent("turn_completed", map[string]interface{}{"instance_id": instance.ID})
		s.publish(ctx, "agent.idle", instance.ID, payload)
		s.tracer.End(ctx, tr, "completed")
	}

	close(li.done)
}

// toolKey pairs a tool_use with its tool_result. Runtimes that do not issue
// tool use ids fall back to the tool name.
func toolKey(ev adapter.Event) string {
	if ev.ToolUseID != "" {
		return ev.ToolUseID
	}
	return ev.ToolName
}
