// Package printer renders CLI output for the roost commands: colored
// status lines on stdout and structured error blocks on stderr.
package printer

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Keep color on even without a TTY; NO_COLOR opts out.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a green checkmark line.
func Success(format string, a ...any) {
	green.Printf("✓ %s", fmt.Sprintf(format, a...))
}

// Step prints a cyan arrow line marking progress in a multi-step operation.
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Warning prints a yellow warning line.
func Warning(format string, a ...any) {
	yellow.Printf("⚠ %s", fmt.Sprintf(format, a...))
}

// Info prints an uncolored informational message.
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Println prints a plain line, for tabular or raw output.
func Println(a ...any) {
	fmt.Println(a...)
}

// Printf prints plain formatted output.
func Printf(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Error renders a full error block on stderr (red title, explanation,
// optional suggestions) and returns a bare error carrying just the title.
// Commands hand that error to cobra, which stays silent because the root
// command sets SilenceErrors.
func Error(title, explanation string, suggestions []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", explanation)
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(&b, "\n%s\n", suggestions[0])
	default:
		b.WriteString("\nTry one of:\n")
		for i, s := range suggestions {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, s)
		}
	}

	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprint(os.Stderr, b.String())
	return fmt.Errorf("%s", title)
}
