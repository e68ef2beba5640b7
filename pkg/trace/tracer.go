// Package trace records lightweight execution traces for agent turns,
// workflow runs and team activities. Traces are persisted entities, not a
// live telemetry pipeline: writes are best-effort and never fail the
// operation being traced.
package trace

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/store"
)

// Tracer writes traces and spans to the store. A nil Tracer is valid and
// records nothing, so callers never branch on whether tracing is enabled.
type Tracer struct {
	client *store.Client
}

// NewTracer creates a tracer over the given store client.
func NewTracer(client *store.Client) *Tracer {
	return &Tracer{client: client}
}

// Begin starts a new trace for the given subject ("agent:<id>",
// "workflow:<runID>", "team:<id>") and returns it. Store failures are
// logged and swallowed; the returned trace is still usable for spans.
func (t *Tracer) Begin(ctx context.Context, kind, subject string) *store.Trace {
	tr := &store.Trace{
		ID:          uuid.New().String(),
		Subject:     subject,
		Kind:        kind,
		Status:      "running",
		StartedAtMs: time.Now().UnixMilli(),
	}
	if t == nil {
		return tr
	}
	if err := t.client.PutTrace(ctx, tr); err != nil {
		log.Printf("[WARN] failed to write trace %s: %v", tr.ID, err)
	}
	return tr
}

// End marks the trace finished with the given status.
func (t *Tracer) End(ctx context.Context, tr *store.Trace, status string) {
	if t == nil || tr == nil {
		return
	}
	tr.Status = status
	tr.EndedAtMs = time.Now().UnixMilli()
	if err := t.client.PutTrace(ctx, tr); err != nil {
		log.Printf("[WARN] failed to finish trace %s: %v", tr.ID, err)
	}
}

// Span records a completed span under the trace.
func (t *Tracer) Span(ctx context.Context, traceID, name, status string, startedAtMs, endedAtMs int64) {
	if t == nil || traceID == "" {
		return
	}
	span := &store.TraceSpan{
		TraceID:     traceID,
		ID:          uuid.New().String(),
		Name:        name,
		Status:      status,
		StartedAtMs: startedAtMs,
		EndedAtMs:   endedAtMs,
	}
	if err := t.client.AppendSpan(ctx, span); err != nil {
		log.Printf("[WARN] failed to write span %s on trace %s: %v", name, traceID, err)
	}
}
