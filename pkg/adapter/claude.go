package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/store"
)

// ClaudeAdapter drives the Claude Code CLI in non-interactive stream-json
// mode. Each prompt is one `claude -p` invocation; session continuity uses
// --session-id on the first turn and --resume afterwards.
type ClaudeAdapter struct {
	command         string
	skipPermissions bool

	mu      sync.Mutex
	started map[string]bool // sessions that have completed a first turn
}

// NewClaudeAdapter creates a Claude adapter. An empty command defaults to
// "claude" on PATH.
func NewClaudeAdapter(command string, skipPermissions bool) *ClaudeAdapter {
	if command == "" {
		command = "claude"
	}
	return &ClaudeAdapter{
		command:         command,
		skipPermissions: skipPermissions,
		started:         make(map[string]bool),
	}
}

// Kind implements Adapter.
func (a *ClaudeAdapter) Kind() store.RuntimeKind { return store.RuntimeClaude }

// CreateSession implements Adapter. The Claude CLI accepts caller-chosen
// session ids, so the handle is minted locally.
func (a *ClaudeAdapter) CreateSession(ctx context.Context, cwd, label string) (string, error) {
	return uuid.New().String(), nil
}

// StreamPrompt implements Adapter.
func (a *ClaudeAdapter) StreamPrompt(ctx context.Context, sessionID, cwd, message string) (<-chan Event, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}

	argv := []string{a.command, "-p", message, "--output-format", "stream-json", "--verbose"}
	if a.skipPermissions {
		argv = append(argv, "--dangerously-skip-permissions")
	}

	a.mu.Lock()
	if a.started[sessionID] {
		argv = append(argv, "--resume", sessionID)
	} else {
		argv = append(argv, "--session-id", sessionID)
		a.started[sessionID] = true
	}
	a.mu.Unlock()

	return streamCommand(ctx, cwd, argv, mapClaudeLine)
}

// claudeLine is the subset of the Claude stream-json wire format we decode.
type claudeLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
	Message   struct {
		Content []claudeBlock `json:"content"`
	} `json:"message"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// mapClaudeLine converts one stream-json line into adapter events.
// Assistant turns yield one EventAssistant plus one EventToolUse per
// tool_use block; user turns carry tool results; the final result line is
// the terminal marker.
func mapClaudeLine(line []byte) []Event {
	var msg claudeLine
	if err := json.Unmarshal(line, &msg); err != nil {
		return []Event{{Type: EventError, Message: fmt.Sprintf("malformed stream line: %v", err)}}
	}

	switch msg.Type {
	case "system":
		return []Event{{Type: EventSystem, SessionID: msg.SessionID, Message: msg.Subtype}}

	case "assistant":
		blocks := make([]ContentBlock, 0, len(msg.Message.Content))
		var toolEvents []Event
		for _, b := range msg.Message.Content {
			switch b.Type {
			case "text":
				blocks = append(blocks, ContentBlock{Type: "text", Text: b.Text})
			case "tool_use":
				blocks = append(blocks, ContentBlock{
					Type:      "tool_use",
					ToolUseID: b.ID,
					ToolName:  b.Name,
					ToolInput: b.Input,
				})
				toolEvents = append(toolEvents, Event{
					Type:      EventToolUse,
					SessionID: msg.SessionID,
					ToolUseID: b.ID,
					ToolName:  b.Name,
					ToolInput: b.Input,
				})
			}
		}
		events := []Event{{Type: EventAssistant, SessionID: msg.SessionID, Blocks: blocks}}
		return append(events, toolEvents...)

	case "user":
		var events []Event
		for _, b := range msg.Message.Content {
			if b.Type != "tool_result" {
				continue
			}
			events = append(events, Event{
				Type:      EventToolResult,
				SessionID: msg.SessionID,
				ToolUseID: b.ToolUseID,
				Result:    rawToText(b.Content),
			})
		}
		return events

	case "result":
		if msg.IsError || (msg.Subtype != "" && msg.Subtype != "success") {
			text := msg.Result
			if text == "" {
				text = msg.Subtype
			}
			return []Event{{Type: EventError, SessionID: msg.SessionID, Message: text}}
		}
		return []Event{{Type: EventDone, SessionID: msg.SessionID, Result: msg.Result}}

	default:
		return []Event{{Type: EventStatus, SessionID: msg.SessionID, Message: msg.Type}}
	}
}

// rawToText renders a tool_result content value, which the wire format
// allows as either a plain string or a block array.
func rawToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}

	return string(raw)
}
