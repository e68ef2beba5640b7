package adapter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

const (
	// maxLineSize caps a single stream line; agent events carrying large
	// tool output can run to megabytes.
	maxLineSize = 10 * 1024 * 1024

	// maxStderrCapture caps the stderr we retain for error reporting.
	maxStderrCapture = 256 * 1024
)

// lineMapper converts one raw stream line into zero or more events.
type lineMapper func(line []byte) []Event

// streamCommand launches argv in cwd and returns a channel of events decoded
// from its stdout, one JSON object per line. The channel is closed when the
// process exits. Abnormal exit without a terminal event is surfaced as an
// EventError carrying the exit status and a stderr tail - the stream never
// ends silently on failure. Cancelling ctx kills the process.
func streamCommand(ctx context.Context, cwd string, argv []string, mapLine lineMapper) (<-chan Event, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("command array is empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: maxStderrCapture}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)

		sawTerminal := false
		emit := func(ev Event) bool {
			if ev.Terminal() {
				sawTerminal = true
			}
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			for _, ev := range mapLine(line) {
				if !emit(ev) {
					cmd.Wait()
					return
				}
			}
		}
		scanErr := scanner.Err()

		waitErr := cmd.Wait()

		// Cancellation is the caller's doing; no synthetic error event.
		if ctx.Err() != nil {
			return
		}

		if sawTerminal {
			return
		}

		if waitErr != nil {
			emit(Event{
				Type:    EventError,
				Message: fmt.Sprintf("process failed: %v: %s", waitErr, stderrTail(stderrBuf)),
			})
			return
		}
		if scanErr != nil {
			emit(Event{
				Type:    EventError,
				Message: fmt.Sprintf("failed to read stream: %v", scanErr),
			})
		}
		// Clean exit without an explicit done marker: sequence exhaustion,
		// which the supervisor treats as a successful end of turn.
	}()

	return events, nil
}

// stderrTail returns the last portion of captured stderr, single-line.
func stderrTail(buf *bytes.Buffer) string {
	s := buf.String()
	if len(s) > 500 {
		s = s[len(s)-500:]
	}
	return string(bytes.TrimSpace(bytes.ReplaceAll([]byte(s), []byte("\n"), []byte(" | "))))
}

// limitedWriter wraps a writer and enforces a size limit.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err = lw.w.Write(toWrite)
	lw.written += n
	return len(p), err
}
