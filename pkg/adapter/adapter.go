// Package adapter abstracts the external agent runtimes roost supervises.
//
// An Adapter turns (session, working directory, prompt) into an ordered, lazy
// sequence of structured events, supports mid-stream cancellation through the
// caller's context, and can resume a session for follow-up prompts. Two
// concrete adapters exist - the Claude Code CLI and the Codex CLI - but the
// supervisor only ever sees this interface.
package adapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dyluth/roost/pkg/store"
)

// EventType discriminates adapter stream events.
type EventType string

const (
	// EventStatus is an informational progress marker.
	EventStatus EventType = "status"

	// EventAssistant carries a model turn with content blocks.
	EventAssistant EventType = "assistant"

	// EventToolUse marks a tool invocation requested by the agent.
	EventToolUse EventType = "tool_use"

	// EventToolResult carries the outcome of a tool invocation.
	EventToolResult EventType = "tool_result"

	// EventSystem carries runtime-internal notices (session init etc).
	EventSystem EventType = "system"

	// EventError marks an abnormal end of the stream. Terminal.
	EventError EventType = "error"

	// EventDone marks a successful end of the turn. Terminal.
	EventDone EventType = "done"
)

// ContentBlock is one piece of an assistant turn.
type ContentBlock struct {
	Type      string          `json:"type"` // "text", "tool_use" or "tool_result"
	Text      string          `json:"text,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// Event is one item of an adapter's event sequence.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Blocks    []ContentBlock  `json:"blocks,omitempty"`    // assistant
	ToolUseID string          `json:"tool_use_id,omitempty"` // tool_use / tool_result
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Result    string          `json:"result,omitempty"`  // tool_result content or final output (done)
	Message   string          `json:"message,omitempty"` // status/system/error text
}

// Terminal reports whether the event ends the turn.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Text returns the concatenated assistant text of the event's blocks.
func (e Event) Text() string {
	var sb strings.Builder
	for _, b := range e.Blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Summary renders a one-line human description of the event, used for
// instance logs.
func (e Event) Summary() string {
	switch e.Type {
	case EventAssistant:
		if t := e.Text(); t != "" {
			return t
		}
		return "assistant turn"
	case EventToolUse:
		return "tool_use: " + e.ToolName
	case EventToolResult:
		return "tool_result: " + truncate(e.Result, 200)
	case EventDone:
		return "done"
	case EventError:
		return "error: " + e.Message
	default:
		return string(e.Type) + ": " + e.Message
	}
}

// Adapter is the contract the supervisor drives. Implementations must close
// the returned channel once the sequence is exhausted, and must emit an
// EventError (never hang, never panic) when the underlying process fails.
// Cancellation is cooperative via ctx: cancelling kills the process and ends
// the sequence.
type Adapter interface {
	// Kind identifies which runtime this adapter drives.
	Kind() store.RuntimeKind

	// CreateSession allocates a session handle for continuity across
	// prompts in the given working directory.
	CreateSession(ctx context.Context, cwd, label string) (string, error)

	// StreamPrompt sends one prompt into a session and returns the lazy
	// event sequence for that turn.
	StreamPrompt(ctx context.Context, sessionID, cwd, message string) (<-chan Event, error)
}

// truncate limits a string to maxLen characters, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
