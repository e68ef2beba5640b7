package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/store"
)

// CodexAdapter drives the Codex CLI via `codex exec --json`. Codex assigns
// its own thread ids, so the adapter maps roost session handles to the
// thread id learned from the first turn's stream and resumes with
// `codex exec resume` afterwards.
type CodexAdapter struct {
	command  string
	fullAuto bool

	mu      sync.Mutex
	threads map[string]string // session handle -> codex thread id
}

// NewCodexAdapter creates a Codex adapter. An empty command defaults to
// "codex" on PATH.
func NewCodexAdapter(command string, fullAuto bool) *CodexAdapter {
	if command == "" {
		command = "codex"
	}
	return &CodexAdapter{
		command:  command,
		fullAuto: fullAuto,
		threads:  make(map[string]string),
	}
}

// Kind implements Adapter.
func (a *CodexAdapter) Kind() store.RuntimeKind { return store.RuntimeCodex }

// CreateSession implements Adapter. Codex does not accept caller-chosen
// thread ids, so the handle is a local alias resolved lazily.
func (a *CodexAdapter) CreateSession(ctx context.Context, cwd, label string) (string, error) {
	return uuid.New().String(), nil
}

// StreamPrompt implements Adapter.
func (a *CodexAdapter) StreamPrompt(ctx context.Context, sessionID, cwd, message string) (<-chan Event, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id required")
	}

	argv := []string{a.command, "exec"}

	a.mu.Lock()
	threadID := a.threads[sessionID]
	a.mu.Unlock()

	if threadID != "" {
		argv = append(argv, "resume", threadID)
	}
	if a.fullAuto {
		argv = append(argv, "--full-auto")
	}
	argv = append(argv, "--json", message)

	mapper := a.newTurnMapper(sessionID)
	return streamCommand(ctx, cwd, argv, mapper)
}

// codexLine is the subset of the Codex JSONL wire format we decode.
type codexLine struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Item     struct {
		Type             string `json:"type"` // agent_message, command_execution, reasoning, ...
		Text             string `json:"text"`
		Command          string `json:"command"`
		AggregatedOutput string `json:"aggregated_output"`
		ExitCode         *int   `json:"exit_code"`
	} `json:"item"`
}

// newTurnMapper builds the per-turn line mapper. It tracks the last agent
// message so the terminal done event can carry the turn's final output, and
// records the thread id for session resume.
func (a *CodexAdapter) newTurnMapper(sessionID string) lineMapper {
	var lastMessage string

	return func(line []byte) []Event {
		var msg codexLine
		if err := json.Unmarshal(line, &msg); err != nil {
			return []Event{{Type: EventError, Message: fmt.Sprintf("malformed stream line: %v", err)}}
		}

		switch msg.Type {
		case "thread.started":
			if msg.ThreadID != "" {
				a.mu.Lock()
				a.threads[sessionID] = msg.ThreadID
				a.mu.Unlock()
			}
			return []Event{{Type: EventSystem, SessionID: sessionID, Message: "thread started"}}

		case "turn.started":
			return []Event{{Type: EventStatus, SessionID: sessionID, Message: "turn started"}}

		case "item.started", "item.updated":
			// Progress noise; the completed item carries the payload.
			return nil

		case "item.completed":
			switch msg.Item.Type {
			case "agent_message":
				lastMessage = msg.Item.Text
				return []Event{{
					Type:      EventAssistant,
					SessionID: sessionID,
					Blocks:    []ContentBlock{{Type: "text", Text: msg.Item.Text}},
				}}
			case "command_execution":
				events := []Event{{
					Type:      EventToolUse,
					SessionID: sessionID,
					ToolName:  "command_execution",
					ToolInput: json.RawMessage(mustJSON(msg.Item.Command)),
				}}
				result := msg.Item.AggregatedOutput
				if msg.Item.ExitCode != nil {
					result = fmt.Sprintf("exit %d: %s", *msg.Item.ExitCode, result)
				}
				return append(events, Event{
					Type:      EventToolResult,
					SessionID: sessionID,
					ToolName:  "command_execution",
					Result:    result,
				})
			default:
				return []Event{{Type: EventStatus, SessionID: sessionID, Message: "item: " + msg.Item.Type}}
			}

		case "turn.completed":
			return []Event{{Type: EventDone, SessionID: sessionID, Result: lastMessage}}

		case "turn.failed", "error":
			text := msg.Message
			if text == "" {
				text = "turn failed"
			}
			return []Event{{Type: EventError, SessionID: sessionID, Message: text}}

		default:
			return []Event{{Type: EventStatus, SessionID: sessionID, Message: msg.Type}}
		}
	}
}

// mustJSON marshals a plain string; cannot fail.
func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
