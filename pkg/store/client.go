package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/roost/pkg/faults"
)

const (
	// DefaultLogRetention is the maximum number of log entries kept per
	// instance before oldest-first eviction.
	DefaultLogRetention = 1000

	// DefaultEventRetention is the maximum number of bus events kept in the
	// log before oldest-first eviction.
	DefaultEventRetention = 10000
)

// Client provides workbench-scoped Redis operations for all roost entities.
// All keys and channels are automatically namespaced with the workbench name.
// The client is thread-safe and can be used concurrently from multiple
// goroutines.
type Client struct {
	rdb            *redis.Client
	workbench      string
	logRetention   int64
	eventRetention int64
}

// NewClient creates a new store client for the specified workbench.
// Returns an error if workbench is empty.
func NewClient(redisOpts *redis.Options, workbench string) (*Client, error) {
	if workbench == "" {
		return nil, faults.Validation("workbench name cannot be empty")
	}

	return &Client{
		rdb:            redis.NewClient(redisOpts),
		workbench:      workbench,
		logRetention:   DefaultLogRetention,
		eventRetention: DefaultEventRetention,
	}, nil
}

// Workbench returns the namespace this client operates in.
func (c *Client) Workbench() string { return c.workbench }

// SetLogRetention overrides the per-instance log retention cap.
// Zero or negative disables trimming.
func (c *Client) SetLogRetention(n int64) { c.logRetention = n }

// SetEventRetention overrides the bus event retention cap.
// Zero or negative disables trimming.
func (c *Client) SetEventRetention(n int64) { c.eventRetention = n }

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ---------------------------------------------------------------------------
// Agent instances
// ---------------------------------------------------------------------------

// PutAgent writes an agent instance hash and registers it in the instance
// index. Validates the instance first. Idempotent: rewriting the same
// instance is a full-field replacement.
func (c *Client) PutAgent(ctx context.Context, a *AgentInstance) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid agent instance: %w", err)
	}

	key := AgentKey(c.workbench, a.ID)
	if err := c.rdb.HSet(ctx, key, AgentToHash(a)).Err(); err != nil {
		return fmt.Errorf("failed to write agent instance: %w", err)
	}
	if err := c.rdb.SAdd(ctx, AgentIndexKey(c.workbench), a.ID).Err(); err != nil {
		return fmt.Errorf("failed to index agent instance: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent instance by ID.
// Returns a faults.ErrNotFound error if the instance doesn't exist.
func (c *Client) GetAgent(ctx context.Context, instanceID string) (*AgentInstance, error) {
	hash, err := c.rdb.HGetAll(ctx, AgentKey(c.workbench, instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent instance: %w", err)
	}
	if len(hash) == 0 {
		return nil, faults.NotFound("agent instance %s", instanceID)
	}
	return HashToAgent(hash)
}

// DeleteAgent removes an instance, its log, and its index entry.
// Deleting an unknown instance is a no-op.
func (c *Client) DeleteAgent(ctx context.Context, instanceID string) error {
	keys := []string{
		AgentKey(c.workbench, instanceID),
		AgentLogKey(c.workbench, instanceID),
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete agent instance: %w", err)
	}
	if err := c.rdb.SRem(ctx, AgentIndexKey(c.workbench), instanceID).Err(); err != nil {
		return fmt.Errorf("failed to deindex agent instance: %w", err)
	}
	return nil
}

// ListAgents returns all instances in the workbench, ordered by start time.
// Index entries whose hash has vanished are skipped.
func (c *Client) ListAgents(ctx context.Context) ([]*AgentInstance, error) {
	ids, err := c.rdb.SMembers(ctx, AgentIndexKey(c.workbench)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agent instances: %w", err)
	}

	agents := make([]*AgentInstance, 0, len(ids))
	for _, id := range ids {
		a, err := c.GetAgent(ctx, id)
		if err != nil {
			if faults.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		agents = append(agents, a)
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].StartedAtMs != agents[j].StartedAtMs {
			return agents[i].StartedAtMs < agents[j].StartedAtMs
		}
		return agents[i].ID < agents[j].ID
	})
	return agents, nil
}

// ScanAgentIDs returns all instance ids with the given prefix.
// Used by the CLI short-id resolver.
func (c *Client) ScanAgentIDs(ctx context.Context, prefix string) ([]string, error) {
	return c.scanIndex(ctx, AgentIndexKey(c.workbench), prefix)
}

// ---------------------------------------------------------------------------
// Instance logs
// ---------------------------------------------------------------------------

// AppendLog appends one entry to an instance's log and applies the retention
// cap (oldest-first eviction, never reordering).
func (c *Client) AppendLog(ctx context.Context, instanceID string, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	key := AgentLogKey(c.workbench, instanceID)
	if err := c.rdb.RPush(ctx, key, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	if c.logRetention > 0 {
		if err := c.rdb.LTrim(ctx, key, -c.logRetention, -1).Err(); err != nil {
			return fmt.Errorf("failed to trim instance log: %w", err)
		}
	}
	return nil
}

// GetLogs returns an instance's log entries in emission order.
func (c *Client) GetLogs(ctx context.Context, instanceID string) ([]*LogEntry, error) {
	raw, err := c.rdb.LRange(ctx, AgentLogKey(c.workbench, instanceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read instance log: %w", err)
	}

	entries := make([]*LogEntry, 0, len(raw))
	for _, line := range raw {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// ClearLogs removes all log entries for an instance.
func (c *Client) ClearLogs(ctx context.Context, instanceID string) error {
	if err := c.rdb.Del(ctx, AgentLogKey(c.workbench, instanceID)).Err(); err != nil {
		return fmt.Errorf("failed to clear instance log: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Bus events
// ---------------------------------------------------------------------------

// AppendEvent writes a bus event hash, prepends its id to the event log, and
// publishes the full event JSON on the bus channel. Applies the event
// retention cap, deleting evicted event hashes alongside their log entries.
func (c *Client) AppendEvent(ctx context.Context, e *BusEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid bus event: %w", err)
	}

	hash, err := EventToHash(e)
	if err != nil {
		return fmt.Errorf("failed to serialize bus event: %w", err)
	}

	if err := c.rdb.HSet(ctx, EventKey(c.workbench, e.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write bus event: %w", err)
	}

	logKey := EventLogKey(c.workbench)
	if err := c.rdb.LPush(ctx, logKey, e.ID).Err(); err != nil {
		return fmt.Errorf("failed to append bus event id: %w", err)
	}

	if c.eventRetention > 0 {
		evicted, err := c.rdb.LRange(ctx, logKey, c.eventRetention, -1).Result()
		if err == nil && len(evicted) > 0 {
			keys := make([]string, 0, len(evicted))
			for _, id := range evicted {
				keys = append(keys, EventKey(c.workbench, id))
			}
			c.rdb.Del(ctx, keys...)
			c.rdb.LTrim(ctx, logKey, 0, c.eventRetention-1)
		}
	}

	eventJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal bus event for publish: %w", err)
	}
	if err := c.rdb.Publish(ctx, BusEventsChannel(c.workbench), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish bus event: %w", err)
	}
	return nil
}

// GetEvent retrieves a bus event by ID.
// Returns a faults.ErrNotFound error if the event doesn't exist.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*BusEvent, error) {
	hash, err := c.rdb.HGetAll(ctx, EventKey(c.workbench, eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read bus event: %w", err)
	}
	if len(hash) == 0 {
		return nil, faults.NotFound("bus event %s", eventID)
	}
	return HashToEvent(hash)
}

// EventIDs returns bus event ids newest first. limit <= 0 returns all
// retained ids.
func (c *Client) EventIDs(ctx context.Context, limit int64) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	ids, err := c.rdb.LRange(ctx, EventLogKey(c.workbench), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read bus event log: %w", err)
	}
	return ids, nil
}

// consumeScript claims an event's consumed marker only if the event hash
// still exists. Doing both in one script means an event evicted between the
// two checks can never leave behind a stray hash holding just the marker.
var consumeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
return redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2])
`)

// MarkConsumed atomically claims an event's consumed marker. Returns true if
// this call performed the claim, false if the event was already consumed or
// unknown (both treated as already-handled, never an error).
func (c *Client) MarkConsumed(ctx context.Context, eventID string) (bool, error) {
	key := EventKey(c.workbench, eventID)

	claimed, err := consumeScript.Run(ctx, c.rdb, []string{key}, "consumed_at_ms", strconv.FormatInt(nowMs(), 10)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to mark bus event consumed: %w", err)
	}
	return claimed == 1, nil
}

// Subscription represents an active Pub/Sub subscription to bus events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *BusEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of bus events. The channel is closed when the
// subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *BusEvent { return s.events }

// Errors returns the channel of subscription errors. Errors are non-fatal;
// malformed messages are skipped and the subscription continues.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeBusEvents subscribes to bus event notifications for this
// workbench. Delivery is at-most-once (Redis Pub/Sub); polling the event log
// remains the durable read path.
func (c *Client) SubscribeBusEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, BusEventsChannel(c.workbench))

	eventsChan := make(chan *BusEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event BusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal bus event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// ---------------------------------------------------------------------------
// Teams
// ---------------------------------------------------------------------------

// PutTeam writes a team hash and registers it in the team index.
// Validates the team first (including the supervisor-is-member invariant).
func (c *Client) PutTeam(ctx context.Context, t *Team) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid team: %w", err)
	}

	hash, err := TeamToHash(t)
	if err != nil {
		return fmt.Errorf("failed to serialize team: %w", err)
	}
	if err := c.rdb.HSet(ctx, TeamKey(c.workbench, t.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write team: %w", err)
	}
	if err := c.rdb.SAdd(ctx, TeamIndexKey(c.workbench), t.ID).Err(); err != nil {
		return fmt.Errorf("failed to index team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID.
// Returns a faults.ErrNotFound error if the team doesn't exist.
func (c *Client) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	hash, err := c.rdb.HGetAll(ctx, TeamKey(c.workbench, teamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read team: %w", err)
	}
	if len(hash) == 0 {
		return nil, faults.NotFound("team %s", teamID)
	}
	return HashToTeam(hash)
}

// DeleteTeam removes a team, its blackboard, and its index entry.
// Member agent instances are NOT stopped or removed; disbanding a team while
// its agents keep running is deliberate caller responsibility.
func (c *Client) DeleteTeam(ctx context.Context, teamID string) error {
	bbKeys, err := c.rdb.SMembers(ctx, BlackboardIndexKey(c.workbench, teamID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list blackboard keys: %w", err)
	}

	keys := []string{
		TeamKey(c.workbench, teamID),
		BlackboardIndexKey(c.workbench, teamID),
	}
	for _, k := range bbKeys {
		keys = append(keys, BlackboardKey(c.workbench, teamID, k))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if err := c.rdb.SRem(ctx, TeamIndexKey(c.workbench), teamID).Err(); err != nil {
		return fmt.Errorf("failed to deindex team: %w", err)
	}
	return nil
}

// ListTeams returns all teams in the workbench, ordered by name.
func (c *Client) ListTeams(ctx context.Context) ([]*Team, error) {
	ids, err := c.rdb.SMembers(ctx, TeamIndexKey(c.workbench)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	teams := make([]*Team, 0, len(ids))
	for _, id := range ids {
		t, err := c.GetTeam(ctx, id)
		if err != nil {
			if faults.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		teams = append(teams, t)
	}

	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

// ScanTeamIDs returns all team ids with the given prefix.
func (c *Client) ScanTeamIDs(ctx context.Context, prefix string) ([]string, error) {
	return c.scanIndex(ctx, TeamIndexKey(c.workbench), prefix)
}

// ---------------------------------------------------------------------------
// Team blackboard
// ---------------------------------------------------------------------------

// BlackboardWrite writes a key's full value and returns the stored entry.
// The version counter is advanced with HIncrBy, so versions are strictly
// increasing per key even under concurrent writers; value fields are
// last-write-wins, with the version authoritative for ordering.
func (c *Client) BlackboardWrite(ctx context.Context, teamID, key, value, updatedBy string) (*BlackboardEntry, error) {
	if key == "" {
		return nil, faults.Validation("blackboard key cannot be empty")
	}

	entryKey := BlackboardKey(c.workbench, teamID, key)
	version, err := c.rdb.HIncrBy(ctx, entryKey, "version", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to advance blackboard version: %w", err)
	}

	now := nowMs()
	fields := map[string]interface{}{
		"key":           key,
		"value":         value,
		"updated_by":    updatedBy,
		"updated_at_ms": now,
	}
	if err := c.rdb.HSet(ctx, entryKey, fields).Err(); err != nil {
		return nil, fmt.Errorf("failed to write blackboard entry: %w", err)
	}
	if err := c.rdb.SAdd(ctx, BlackboardIndexKey(c.workbench, teamID), key).Err(); err != nil {
		return nil, fmt.Errorf("failed to index blackboard key: %w", err)
	}

	return &BlackboardEntry{
		Key:         key,
		Value:       value,
		Version:     version,
		UpdatedBy:   updatedBy,
		UpdatedAtMs: now,
	}, nil
}

// BlackboardGet retrieves one blackboard entry.
// Returns a faults.ErrNotFound error if the key doesn't exist.
func (c *Client) BlackboardGet(ctx context.Context, teamID, key string) (*BlackboardEntry, error) {
	hash, err := c.rdb.HGetAll(ctx, BlackboardKey(c.workbench, teamID, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blackboard entry: %w", err)
	}
	if len(hash) == 0 {
		return nil, faults.NotFound("blackboard key %q", key)
	}
	return HashToBlackboardEntry(hash)
}

// BlackboardAll returns every entry on a team's blackboard, ordered by key.
func (c *Client) BlackboardAll(ctx context.Context, teamID string) ([]*BlackboardEntry, error) {
	keys, err := c.rdb.SMembers(ctx, BlackboardIndexKey(c.workbench, teamID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blackboard keys: %w", err)
	}
	sort.Strings(keys)

	entries := make([]*BlackboardEntry, 0, len(keys))
	for _, k := range keys {
		e, err := c.BlackboardGet(ctx, teamID, k)
		if err != nil {
			if faults.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// BlackboardDelete removes a blackboard key. Returns true if the key existed.
func (c *Client) BlackboardDelete(ctx context.Context, teamID, key string) (bool, error) {
	removed, err := c.rdb.Del(ctx, BlackboardKey(c.workbench, teamID, key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete blackboard entry: %w", err)
	}
	if err := c.rdb.SRem(ctx, BlackboardIndexKey(c.workbench, teamID), key).Err(); err != nil {
		return false, fmt.Errorf("failed to deindex blackboard key: %w", err)
	}
	return removed > 0, nil
}

// ---------------------------------------------------------------------------
// Workflows and runs
// ---------------------------------------------------------------------------

// PutWorkflow writes a workflow hash and registers it in the workflow index.
func (c *Client) PutWorkflow(ctx context.Context, w *Workflow) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}

	hash, err := WorkflowToHash(w)
	if err != nil {
		return fmt.Errorf("failed to serialize workflow: %w", err)
	}
	if err := c.rdb.HSet(ctx, WorkflowKey(c.workbench, w.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write workflow: %w", err)
	}
	if err := c.rdb.SAdd(ctx, WorkflowIndexKey(c.workbench), w.ID).Err(); err != nil {
		return fmt.Errorf("failed to index workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
// Returns a faults.ErrNotFound error if the workflow doesn't exist.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error) {
	hash, err := c.rdb.HGetAll(ctx, WorkflowKey(c.workbench, workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	if len(hash) == 0 {
		return nil, faults.NotFound("workflow %s", workflowID)
	}
	return HashToWorkflow(hash)
}

// DeleteWorkflow removes a workflow and its index entry. Past runs are kept:
// they are durable records.
func (c *Client) DeleteWorkflow(ctx context.Context, workflowID string) error {
	if err := c.rdb.Del(ctx, WorkflowKey(c.workbench, workflowID)).Err(); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if err := c.rdb.SRem(ctx, WorkflowIndexKey(c.workbench), workflowID).Err(); err != nil {
		return fmt.Errorf("failed to deindex workflow: %w", err)
	}
	return nil
}

// ListWorkflows returns all workflows in the workbench, ordered by name.
func (c *Client) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	ids, err := c.rdb.SMembers(ctx, WorkflowIndexKey(c.workbench)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*Workflow, 0, len(ids))
	for _, id := range ids {
		w, err := c.GetWorkflow(ctx, id)
		if err != nil {
			if faults.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		workflows = append(workflows, w)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })
	return workflows, nil
}

// ScanWorkflowIDs returns all workflow ids with the given prefix.
func (c *Client) ScanWorkflowIDs(ctx context.Context, prefix string) ([]string, error) {
	return c.scanIndex(ctx, WorkflowIndexKey(c.workbench), prefix)
}

// CreateRun writes a new run hash and prepends its id to the workflow's run
// index.
func (c *Client) CreateRun(ctx context.Context, r *WorkflowRun) error {
	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}
	if err := c.rdb.HSet(ctx, RunKey(c.workbench, r.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}
	if err := c.rdb.LPush(ctx, RunIndexKey(c.workbench, r.WorkflowID), r.ID).Err(); err != nil {
		return fmt.Errorf("failed to index run: %w", err)
	}
	return nil
}

// UpdateRun replaces an existing run's hash (full-field replacement).
// Called after every step result so the run record is durable mid-flight.
func (c *Client) UpdateRun(ctx context.Context, r *WorkflowRun) error {
	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}
	if err := c.rdb.HSet(ctx, RunKey(c.workbench, r.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
// Returns a faults.ErrNotFound error if the run doesn't exist.
func (c *Client) GetRun(ctx context.Context, runID string) (*WorkflowRun, error) {
	hash, err := c.rdb.HGetAll(ctx, RunKey(c.workbench, runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	if len(hash) == 0 {
		return nil, faults.NotFound("workflow run %s", runID)
	}
	return HashToRun(hash)
}

// ListRuns returns a workflow's runs, newest first.
func (c *Client) ListRuns(ctx context.Context, workflowID string) ([]*WorkflowRun, error) {
	ids, err := c.rdb.LRange(ctx, RunIndexKey(c.workbench, workflowID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*WorkflowRun, 0, len(ids))
	for _, id := range ids {
		r, err := c.GetRun(ctx, id)
		if err != nil {
			if faults.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// ---------------------------------------------------------------------------
// Traces
// ---------------------------------------------------------------------------

// PutTrace writes a trace hash (full-field replacement).
func (c *Client) PutTrace(ctx context.Context, t *Trace) error {
	if err := c.rdb.HSet(ctx, TraceKey(c.workbench, t.ID), TraceToHash(t)).Err(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// AppendSpan appends a span to a trace's span list in emission order.
func (c *Client) AppendSpan(ctx context.Context, span *TraceSpan) error {
	data, err := json.Marshal(span)
	if err != nil {
		return fmt.Errorf("failed to marshal trace span: %w", err)
	}
	if err := c.rdb.RPush(ctx, TraceSpansKey(c.workbench, span.TraceID), string(data)).Err(); err != nil {
		return fmt.Errorf("failed to append trace span: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// scanIndex returns all members of an index set matching the given prefix.
func (c *Client) scanIndex(ctx context.Context, indexKey, prefix string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}

	matches := make([]string, 0)
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// nowMs returns the current time as Unix milliseconds.
func nowMs() int64 {
	return time.Now().UnixMilli()
}
