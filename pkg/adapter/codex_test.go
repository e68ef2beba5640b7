package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodexTurnMapper(t *testing.T) {
	a := NewCodexAdapter("codex", false)

	t.Run("thread start records the thread id for resume", func(t *testing.T) {
		mapper := a.newTurnMapper("session-1")
		events := mapper([]byte(`{"type":"thread.started","thread_id":"th-42"}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventSystem, events[0].Type)

		a.mu.Lock()
		defer a.mu.Unlock()
		assert.Equal(t, "th-42", a.threads["session-1"])
	})

	t.Run("agent message becomes assistant event", func(t *testing.T) {
		mapper := a.newTurnMapper("s")
		events := mapper([]byte(`{"type":"item.completed","item":{"type":"agent_message","text":"hello"}}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventAssistant, events[0].Type)
		assert.Equal(t, "hello", events[0].Text())
	})

	t.Run("command execution yields tool use and result", func(t *testing.T) {
		mapper := a.newTurnMapper("s")
		events := mapper([]byte(`{"type":"item.completed","item":{"type":"command_execution","command":"go test","aggregated_output":"ok","exit_code":0}}`))
		require.Len(t, events, 2)
		assert.Equal(t, EventToolUse, events[0].Type)
		assert.Equal(t, "command_execution", events[0].ToolName)
		assert.Equal(t, EventToolResult, events[1].Type)
		assert.Equal(t, "exit 0: ok", events[1].Result)
	})

	t.Run("turn completion carries the last agent message", func(t *testing.T) {
		mapper := a.newTurnMapper("s")
		mapper([]byte(`{"type":"item.completed","item":{"type":"agent_message","text":"final answer"}}`))
		events := mapper([]byte(`{"type":"turn.completed"}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventDone, events[0].Type)
		assert.Equal(t, "final answer", events[0].Result)
		assert.True(t, events[0].Terminal())
	})

	t.Run("turn failure is terminal error", func(t *testing.T) {
		mapper := a.newTurnMapper("s")
		events := mapper([]byte(`{"type":"turn.failed","message":"rate limited"}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Type)
		assert.Equal(t, "rate limited", events[0].Message)
	})

	t.Run("progress items are suppressed", func(t *testing.T) {
		mapper := a.newTurnMapper("s")
		assert.Nil(t, mapper([]byte(`{"type":"item.started"}`)))
		assert.Nil(t, mapper([]byte(`{"type":"item.updated"}`)))
	})
}
