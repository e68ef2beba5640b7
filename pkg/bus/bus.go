// Package bus implements the workbench event bus: a single append-only,
// queryable log of typed events that any component publishes to and any
// component polls from.
//
// The bus is a flat log with client-side filtering rather than per-subscriber
// queues: publishers never block on consumers, consumers poll rather than
// subscribe, and there is no registry to keep consistent across restarts.
// Delivery is at-least-once for anyone polling after the publish.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

// Bus is the event log handle. Safe for concurrent use.
type Bus struct {
	client *store.Client
}

// New creates a bus over the given store client.
func New(client *store.Client) *Bus {
	return &Bus{client: client}
}

// Filter narrows a Check query.
type Filter struct {
	Type           string // Prefix/wildcard pattern, empty = all types
	Source         string // Exact source match, empty = all sources
	UnconsumedOnly bool
	Limit          int // Max events returned, <= 0 = no cap
}

// Publish appends a new event and returns it. Fire-and-forget with respect
// to consumers: nothing blocks on anyone reading the event.
func (b *Bus) Publish(ctx context.Context, eventType, source string, payload map[string]any) (*store.BusEvent, error) {
	if eventType == "" {
		return nil, faults.Validation("event type cannot be empty")
	}
	if source == "" {
		return nil, faults.Validation("event source cannot be empty")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	event := &store.BusEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Source:      source,
		Payload:     payload,
		CreatedAtMs: time.Now().UnixMilli(),
	}

	if err := b.client.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}
	return event, nil
}

// Match returns the most recent events whose type matches the pattern,
// newest first. A trailing '%' in the pattern matches any suffix
// ("worker.%" matches every type beginning "worker.").
func (b *Bus) Match(ctx context.Context, pattern string, limit int) ([]*store.BusEvent, error) {
	return b.Check(ctx, Filter{Type: pattern, Limit: limit})
}

// Check returns the most recent events passing the filter, newest first.
// Events from different sources may interleave arbitrarily; no ordering is
// promised across sources.
func (b *Bus) Check(ctx context.Context, f Filter) ([]*store.BusEvent, error) {
	ids, err := b.client.EventIDs(ctx, 0)
	if err != nil {
		return nil, err
	}

	events := make([]*store.BusEvent, 0)
	for _, id := range ids {
		event, err := b.client.GetEvent(ctx, id)
		if err != nil {
			// Evicted between the id read and the hash read; skip.
			if faults.IsNotFound(err) {
				continue
			}
			return nil, err
		}

		if !store.MatchesPattern(event.Type, f.Type) {
			continue
		}
		if f.Source != "" && event.Source != f.Source {
			continue
		}
		if f.UnconsumedOnly && event.Consumed() {
			continue
		}

		events = append(events, event)
		if f.Limit > 0 && len(events) >= f.Limit {
			break
		}
	}
	return events, nil
}

// Consume marks an event consumed. The claim is an atomic compare-and-set:
// the returned bool is true only for the caller that actually flipped the
// flag, so racing pollers never double-process. Consuming an already
// consumed or unknown event is a no-op, never an error.
func (b *Bus) Consume(ctx context.Context, eventID string) (bool, error) {
	return b.client.MarkConsumed(ctx, eventID)
}

// TeamSource returns the canonical bus source identifier for team-scoped
// events.
func TeamSource(teamID string) string {
	return "team:" + teamID
}

// AgentSource returns the canonical bus source identifier for
// supervisor-published instance events.
func AgentSource(instanceID string) string {
	return "agent:" + instanceID
}

// RunSource returns the canonical bus source identifier for workflow run
// events.
func RunSource(runID string) string {
	return "workflow:" + runID
}

// IsTeamSource reports whether a source string is team-scoped, returning the
// team id.
func IsTeamSource(source string) (string, bool) {
	id, ok := strings.CutPrefix(source, "team:")
	return id, ok
}
