package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like
// member lists and step arrays are JSON-encoded into single hash fields. This
// keeps scalar fields individually readable while allowing nested structures.

// AgentToHash converts an AgentInstance to a Redis hash format.
func AgentToHash(a *AgentInstance) map[string]interface{} {
	return map[string]interface{}{
		"id":             a.ID,
		"agent_name":     a.AgentName,
		"display_name":   a.DisplayName,
		"runtime":        string(a.Runtime),
		"status":         string(a.Status),
		"work_dir":       a.WorkDir,
		"plugin":         a.Plugin,
		"session_id":     a.SessionID,
		"started_at_ms":  a.StartedAtMs,
		"last_active_ms": a.LastActiveMs,
		"last_error":     a.LastError,
	}
}

// HashToAgent converts a Redis hash to an AgentInstance struct.
func HashToAgent(hash map[string]string) (*AgentInstance, error) {
	startedAtMs, _ := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	lastActiveMs, _ := strconv.ParseInt(hash["last_active_ms"], 10, 64)

	return &AgentInstance{
		ID:           hash["id"],
		AgentName:    hash["agent_name"],
		DisplayName:  hash["display_name"],
		Runtime:      RuntimeKind(hash["runtime"]),
		Status:       InstanceStatus(hash["status"]),
		WorkDir:      hash["work_dir"],
		Plugin:       hash["plugin"],
		SessionID:    hash["session_id"],
		StartedAtMs:  startedAtMs,
		LastActiveMs: lastActiveMs,
		LastError:    hash["last_error"],
	}, nil
}

// EventToHash converts a BusEvent to a Redis hash format.
// The payload map is JSON-encoded into a single field. The consumed_at_ms
// field is written only at publish time when zero; consumption sets it via
// HSetNX so the flag stays monotone under racing consumers.
func EventToHash(e *BusEvent) (map[string]interface{}, error) {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return map[string]interface{}{
		"id":            e.ID,
		"type":          e.Type,
		"source":        e.Source,
		"payload":       string(payloadJSON),
		"created_at_ms": e.CreatedAtMs,
	}, nil
}

// HashToEvent converts a Redis hash to a BusEvent struct.
func HashToEvent(hash map[string]string) (*BusEvent, error) {
	var payload map[string]any
	if payloadJSON := hash["payload"]; payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	consumedAtMs, _ := strconv.ParseInt(hash["consumed_at_ms"], 10, 64)

	return &BusEvent{
		ID:           hash["id"],
		Type:         hash["type"],
		Source:       hash["source"],
		Payload:      payload,
		CreatedAtMs:  createdAtMs,
		ConsumedAtMs: consumedAtMs,
	}, nil
}

// TeamToHash converts a Team to a Redis hash format.
// The members array is JSON-encoded.
func TeamToHash(t *Team) (map[string]interface{}, error) {
	membersJSON, err := json.Marshal(t.Members)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal team members: %w", err)
	}

	return map[string]interface{}{
		"id":            t.ID,
		"name":          t.Name,
		"description":   t.Description,
		"status":        string(t.Status),
		"members":       string(membersJSON),
		"supervisor_id": t.SupervisorID,
	}, nil
}

// HashToTeam converts a Redis hash to a Team struct.
func HashToTeam(hash map[string]string) (*Team, error) {
	var members []TeamMember
	if membersJSON := hash["members"]; membersJSON != "" {
		if err := json.Unmarshal([]byte(membersJSON), &members); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team members: %w", err)
		}
	}
	if members == nil {
		members = []TeamMember{}
	}

	return &Team{
		ID:           hash["id"],
		Name:         hash["name"],
		Description:  hash["description"],
		Status:       TeamStatus(hash["status"]),
		Members:      members,
		SupervisorID: hash["supervisor_id"],
	}, nil
}

// HashToBlackboardEntry converts a Redis hash to a BlackboardEntry struct.
// Writes go through Client.BlackboardWrite which uses HIncrBy for the
// version, so there is no EntryToHash counterpart.
func HashToBlackboardEntry(hash map[string]string) (*BlackboardEntry, error) {
	version, err := strconv.ParseInt(hash["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	return &BlackboardEntry{
		Key:         hash["key"],
		Value:       hash["value"],
		Version:     version,
		UpdatedBy:   hash["updated_by"],
		UpdatedAtMs: updatedAtMs,
	}, nil
}

// WorkflowToHash converts a Workflow to a Redis hash format.
// The steps array is JSON-encoded.
func WorkflowToHash(w *Workflow) (map[string]interface{}, error) {
	stepsJSON, err := json.Marshal(w.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow steps: %w", err)
	}

	return map[string]interface{}{
		"id":          w.ID,
		"name":        w.Name,
		"description": w.Description,
		"trigger":     w.Trigger,
		"steps":       string(stepsJSON),
	}, nil
}

// HashToWorkflow converts a Redis hash to a Workflow struct.
func HashToWorkflow(hash map[string]string) (*Workflow, error) {
	var steps []WorkflowStep
	if stepsJSON := hash["steps"]; stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow steps: %w", err)
		}
	}
	if steps == nil {
		steps = []WorkflowStep{}
	}

	return &Workflow{
		ID:          hash["id"],
		Name:        hash["name"],
		Description: hash["description"],
		Trigger:     hash["trigger"],
		Steps:       steps,
	}, nil
}

// RunToHash converts a WorkflowRun to a Redis hash format.
// The step results array is JSON-encoded.
func RunToHash(r *WorkflowRun) (map[string]interface{}, error) {
	stepsJSON, err := json.Marshal(r.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run step results: %w", err)
	}

	return map[string]interface{}{
		"id":            r.ID,
		"workflow_id":   r.WorkflowID,
		"status":        string(r.Status),
		"input":         r.Input,
		"started_at_ms": r.StartedAtMs,
		"ended_at_ms":   r.EndedAtMs,
		"steps":         string(stepsJSON),
		"error":         r.Error,
	}, nil
}

// HashToRun converts a Redis hash to a WorkflowRun struct.
func HashToRun(hash map[string]string) (*WorkflowRun, error) {
	var steps []StepResult
	if stepsJSON := hash["steps"]; stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run step results: %w", err)
		}
	}
	if steps == nil {
		steps = []StepResult{}
	}

	startedAtMs, _ := strconv.ParseInt(hash["started_at_ms"], 10, 64)
	endedAtMs, _ := strconv.ParseInt(hash["ended_at_ms"], 10, 64)

	return &WorkflowRun{
		ID:          hash["id"],
		WorkflowID:  hash["workflow_id"],
		Status:      RunStatus(hash["status"]),
		Input:       hash["input"],
		StartedAtMs: startedAtMs,
		EndedAtMs:   endedAtMs,
		Steps:       steps,
		Error:       hash["error"],
	}, nil
}

// TraceToHash converts a Trace to a Redis hash format.
func TraceToHash(t *Trace) map[string]interface{} {
	return map[string]interface{}{
		"id":            t.ID,
		"subject":       t.Subject,
		"kind":          t.Kind,
		"status":        t.Status,
		"started_at_ms": t.StartedAtMs,
		"ended_at_ms":   t.EndedAtMs,
	}
}
