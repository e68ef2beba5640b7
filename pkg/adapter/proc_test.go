package adapter

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains an event channel with a timeout guard.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

func TestStreamCommand(t *testing.T) {
	statusLine := func(line []byte) []Event {
		return []Event{{Type: EventStatus, Message: string(line)}}
	}

	t.Run("maps each stdout line to events", func(t *testing.T) {
		events, err := streamCommand(context.Background(), "", []string{"sh", "-c", "echo one; echo two"}, statusLine)
		require.NoError(t, err)

		out := collect(t, events)
		require.Len(t, out, 2)
		assert.Equal(t, "one", out[0].Message)
		assert.Equal(t, "two", out[1].Message)
	})

	t.Run("failure without terminal marker yields error event", func(t *testing.T) {
		events, err := streamCommand(context.Background(), "", []string{"sh", "-c", "echo boom >&2; exit 3"}, statusLine)
		require.NoError(t, err)

		out := collect(t, events)
		require.NotEmpty(t, out)
		last := out[len(out)-1]
		assert.Equal(t, EventError, last.Type)
		assert.Contains(t, last.Message, "boom")
	})

	t.Run("terminal marker suppresses the synthetic error", func(t *testing.T) {
		doneLine := func(line []byte) []Event {
			return []Event{{Type: EventDone, Result: string(line)}}
		}
		events, err := streamCommand(context.Background(), "", []string{"sh", "-c", "echo finished; exit 1"}, doneLine)
		require.NoError(t, err)

		out := collect(t, events)
		require.Len(t, out, 1)
		assert.Equal(t, EventDone, out[0].Type)
	})

	t.Run("cancellation ends the stream without an error event", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		events, err := streamCommand(ctx, "", []string{"sh", "-c", "sleep 30"}, statusLine)
		require.NoError(t, err)

		cancel()
		out := collect(t, events)
		assert.Empty(t, out)
	})

	t.Run("rejects empty argv", func(t *testing.T) {
		_, err := streamCommand(context.Background(), "", nil, statusLine)
		assert.Error(t, err)
	})
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 5}

	n, err := lw.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 8, n, "must report full write to avoid breaking the producer")
	assert.Equal(t, "abcde", buf.String())

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcde", buf.String(), "writes past the limit are discarded")
}
