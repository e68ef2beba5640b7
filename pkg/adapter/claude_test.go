package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapClaudeLine(t *testing.T) {
	t.Run("system line becomes system event", func(t *testing.T) {
		events := mapClaudeLine([]byte(`{"type":"system","subtype":"init","session_id":"s1"}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventSystem, events[0].Type)
		assert.Equal(t, "init", events[0].Message)
		assert.Equal(t, "s1", events[0].SessionID)
	})

	t.Run("assistant turn with tool use", func(t *testing.T) {
		line := `{"type":"assistant","session_id":"s1","message":{"content":[` +
			`{"type":"text","text":"let me check"},` +
			`{"type":"tool_use","id":"tu1","name":"Bash","input":{"command":"ls"}}]}}`
		events := mapClaudeLine([]byte(line))
		require.Len(t, events, 2)

		assert.Equal(t, EventAssistant, events[0].Type)
		assert.Equal(t, "let me check", events[0].Text())
		require.Len(t, events[0].Blocks, 2)

		assert.Equal(t, EventToolUse, events[1].Type)
		assert.Equal(t, "tu1", events[1].ToolUseID)
		assert.Equal(t, "Bash", events[1].ToolName)
	})

	t.Run("user turn carries tool results", func(t *testing.T) {
		line := `{"type":"user","session_id":"s1","message":{"content":[` +
			`{"type":"tool_result","tool_use_id":"tu1","content":"file.go"}]}}`
		events := mapClaudeLine([]byte(line))
		require.Len(t, events, 1)
		assert.Equal(t, EventToolResult, events[0].Type)
		assert.Equal(t, "tu1", events[0].ToolUseID)
		assert.Equal(t, "file.go", events[0].Result)
	})

	t.Run("tool result content as block array", func(t *testing.T) {
		line := `{"type":"user","message":{"content":[` +
			`{"type":"tool_result","tool_use_id":"tu1","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}}`
		events := mapClaudeLine([]byte(line))
		require.Len(t, events, 1)
		assert.Equal(t, "ab", events[0].Result)
	})

	t.Run("successful result is terminal done", func(t *testing.T) {
		events := mapClaudeLine([]byte(`{"type":"result","subtype":"success","result":"all done","session_id":"s1"}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventDone, events[0].Type)
		assert.Equal(t, "all done", events[0].Result)
		assert.True(t, events[0].Terminal())
	})

	t.Run("error result is terminal error", func(t *testing.T) {
		events := mapClaudeLine([]byte(`{"type":"result","subtype":"error_max_turns","is_error":true}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Type)
		assert.True(t, events[0].Terminal())
	})

	t.Run("malformed line becomes error event", func(t *testing.T) {
		events := mapClaudeLine([]byte(`{not json`))
		require.Len(t, events, 1)
		assert.Equal(t, EventError, events[0].Type)
	})

	t.Run("unknown type becomes status event", func(t *testing.T) {
		events := mapClaudeLine([]byte(`{"type":"ping"}`))
		require.Len(t, events, 1)
		assert.Equal(t, EventStatus, events[0].Type)
		assert.False(t, events[0].Terminal())
	})
}

func TestClaudeCreateSession(t *testing.T) {
	a := NewClaudeAdapter("", false)
	assert.Equal(t, "claude", a.command, "empty command should default to claude on PATH")

	sessionID, err := a.CreateSession(context.Background(), "/tmp", "coder")
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
}
