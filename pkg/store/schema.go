package store

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by workbench name to
// enable multiple roost workbenches to safely coexist on a single Redis
// server.
//
// Key pattern: roost:{workbench}:{entity}:{id}
// Channel pattern: roost:{workbench}:{event_type}_events

// AgentKey returns the Redis key for an agent instance hash.
// Pattern: roost:{workbench}:agent:{instance_id}
func AgentKey(workbench, instanceID string) string {
	return fmt.Sprintf("roost:%s:agent:%s", workbench, instanceID)
}

// AgentLogKey returns the Redis key for an instance's append-only log list.
// Pattern: roost:{workbench}:agent:{instance_id}:log
func AgentLogKey(workbench, instanceID string) string {
	return fmt.Sprintf("roost:%s:agent:%s:log", workbench, instanceID)
}

// AgentIndexKey returns the Redis key for the set of all instance ids.
// Pattern: roost:{workbench}:agents
func AgentIndexKey(workbench string) string {
	return fmt.Sprintf("roost:%s:agents", workbench)
}

// EventKey returns the Redis key for a bus event hash.
// Pattern: roost:{workbench}:event:{event_id}
func EventKey(workbench, eventID string) string {
	return fmt.Sprintf("roost:%s:event:%s", workbench, eventID)
}

// EventLogKey returns the Redis key for the bus event id list, newest first.
// Pattern: roost:{workbench}:events
func EventLogKey(workbench string) string {
	return fmt.Sprintf("roost:%s:events", workbench)
}

// TeamKey returns the Redis key for a team hash.
// Pattern: roost:{workbench}:team:{team_id}
func TeamKey(workbench, teamID string) string {
	return fmt.Sprintf("roost:%s:team:%s", workbench, teamID)
}

// TeamIndexKey returns the Redis key for the set of all team ids.
// Pattern: roost:{workbench}:teams
func TeamIndexKey(workbench string) string {
	return fmt.Sprintf("roost:%s:teams", workbench)
}

// BlackboardKey returns the Redis key for one blackboard entry hash.
// Pattern: roost:{workbench}:team:{team_id}:bb:{key}
func BlackboardKey(workbench, teamID, key string) string {
	return fmt.Sprintf("roost:%s:team:%s:bb:%s", workbench, teamID, key)
}

// BlackboardIndexKey returns the Redis key for a team's blackboard key set.
// Pattern: roost:{workbench}:team:{team_id}:bb
func BlackboardIndexKey(workbench, teamID string) string {
	return fmt.Sprintf("roost:%s:team:%s:bb", workbench, teamID)
}

// WorkflowKey returns the Redis key for a workflow hash.
// Pattern: roost:{workbench}:workflow:{workflow_id}
func WorkflowKey(workbench, workflowID string) string {
	return fmt.Sprintf("roost:%s:workflow:%s", workbench, workflowID)
}

// WorkflowIndexKey returns the Redis key for the set of all workflow ids.
// Pattern: roost:{workbench}:workflows
func WorkflowIndexKey(workbench string) string {
	return fmt.Sprintf("roost:%s:workflows", workbench)
}

// RunKey returns the Redis key for a workflow run hash.
// Pattern: roost:{workbench}:run:{run_id}
func RunKey(workbench, runID string) string {
	return fmt.Sprintf("roost:%s:run:%s", workbench, runID)
}

// RunIndexKey returns the Redis key for a workflow's run id list, newest
// first.
// Pattern: roost:{workbench}:workflow:{workflow_id}:runs
func RunIndexKey(workbench, workflowID string) string {
	return fmt.Sprintf("roost:%s:workflow:%s:runs", workbench, workflowID)
}

// TraceKey returns the Redis key for a trace hash.
// Pattern: roost:{workbench}:trace:{trace_id}
func TraceKey(workbench, traceID string) string {
	return fmt.Sprintf("roost:%s:trace:%s", workbench, traceID)
}

// TraceSpansKey returns the Redis key for a trace's span list.
// Pattern: roost:{workbench}:trace:{trace_id}:spans
func TraceSpansKey(workbench, traceID string) string {
	return fmt.Sprintf("roost:%s:trace:%s:spans", workbench, traceID)
}

// BusEventsChannel returns the Pub/Sub channel name for bus event
// notifications. Carries full event JSON so `roost events --follow` can tail
// without polling.
// Pattern: roost:{workbench}:bus_events
func BusEventsChannel(workbench string) string {
	return fmt.Sprintf("roost:%s:bus_events", workbench)
}
