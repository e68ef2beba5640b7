package commands

import (
	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/pkg/adapter"
)

// printEvent renders one adapter event to the terminal. Used as the
// supervisor observer for interactive commands.
func printEvent(_ string, ev adapter.Event) {
	switch ev.Type {
	case adapter.EventAssistant:
		if text := ev.Text(); text != "" {
			printer.Printf("%s\n", text)
		}
	case adapter.EventToolUse:
		printer.Step("%s\n", ev.ToolName)
	case adapter.EventToolResult:
		// Tool output is in the instance log; keep the stream readable.
	case adapter.EventDone:
		printer.Success("turn complete\n")
	case adapter.EventError:
		printer.Warning("%s\n", ev.Message)
	}
}

// shortID renders the first segment of a UUID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
