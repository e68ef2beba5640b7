package store

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/faults"
)

// RuntimeKind identifies which agent runtime adapter backs an instance.
type RuntimeKind string

const (
	// RuntimeClaude runs the Claude Code CLI in stream-json mode.
	RuntimeClaude RuntimeKind = "claude"

	// RuntimeCodex runs the Codex CLI in exec --json mode.
	RuntimeCodex RuntimeKind = "codex"
)

// Validate checks if the RuntimeKind is a valid enum value.
func (k RuntimeKind) Validate() error {
	switch k {
	case RuntimeClaude, RuntimeCodex:
		return nil
	default:
		return faults.Validation("unknown runtime kind: %q", k)
	}
}

// InstanceStatus defines the lifecycle state of an agent instance.
// Transitions: created → running → {idle, error}; idle → running on a
// follow-up prompt; any state → terminated on explicit stop. Terminated is
// absorbing.
type InstanceStatus string

const (
	// StatusCreated indicates the instance was allocated but has not begun
	// draining its first prompt yet.
	StatusCreated InstanceStatus = "created"

	// StatusRunning indicates an adapter stream is being drained.
	StatusRunning InstanceStatus = "running"

	// StatusIdle indicates the last turn completed successfully and the
	// instance can accept a follow-up prompt.
	StatusIdle InstanceStatus = "idle"

	// StatusError indicates the adapter stream raised or the process exited
	// abnormally. The triggering message is retained on the instance.
	StatusError InstanceStatus = "error"

	// StatusTerminated indicates an explicit stop. No further transitions.
	StatusTerminated InstanceStatus = "terminated"
)

// Validate checks if the InstanceStatus is a valid enum value.
func (s InstanceStatus) Validate() error {
	switch s {
	case StatusCreated, StatusRunning, StatusIdle, StatusError, StatusTerminated:
		return nil
	default:
		return faults.Validation("unknown instance status: %q", s)
	}
}

// AgentInstance represents one supervised run of an external agent.
// Mutated only by the supervisor; removed explicitly by the caller after
// reaching a terminal status.
type AgentInstance struct {
	ID           string         `json:"id"`             // UUID - unique identifier for this instance
	AgentName    string         `json:"agent_name"`     // Logical agent name (config template)
	DisplayName  string         `json:"display_name"`   // Human-facing name
	Runtime      RuntimeKind    `json:"runtime"`        // Which adapter backs this instance
	Status       InstanceStatus `json:"status"`         // Current lifecycle state
	WorkDir      string         `json:"work_dir"`       // Working directory the agent runs in
	Plugin       string         `json:"plugin"`         // Originating plugin reference, if any
	SessionID    string         `json:"session_id"`     // Adapter session handle, used for resume
	StartedAtMs  int64          `json:"started_at_ms"`  // Unix ms when the instance was created
	LastActiveMs int64          `json:"last_active_ms"` // Unix ms of the last observed adapter event
	LastError    string         `json:"last_error"`     // Terminal error message, if status=error
}

// Validate checks if the AgentInstance has valid field values.
func (a *AgentInstance) Validate() error {
	if !isValidUUID(a.ID) {
		return faults.Validation("invalid instance ID: not a valid UUID")
	}
	if a.AgentName == "" {
		return faults.Validation("agent name cannot be empty")
	}
	if err := a.Runtime.Validate(); err != nil {
		return err
	}
	return a.Status.Validate()
}

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one append-only record in an instance's log.
// Entries are never mutated or reordered; retention evicts oldest-first.
type LogEntry struct {
	TimestampMs int64    `json:"timestamp_ms"`
	Level       LogLevel `json:"level"`
	Message     string   `json:"message"`
}

// BusEvent is an immutable, typed, timestamped fact published for
// asynchronous observation. Only the consumed marker mutates, and only
// monotonically (unset → set).
type BusEvent struct {
	ID           string         `json:"id"`             // UUID
	Type         string         `json:"type"`           // Dotted-hierarchical type, e.g. "worker.completed"
	Source       string         `json:"source"`         // Publisher identity, e.g. "team:<id>"
	Payload      map[string]any `json:"payload"`        // Arbitrary structured payload
	CreatedAtMs  int64          `json:"created_at_ms"`  // Unix ms at publish
	ConsumedAtMs int64          `json:"consumed_at_ms"` // Unix ms at consumption, 0 if unconsumed
}

// Consumed reports whether the event has been marked consumed.
func (e *BusEvent) Consumed() bool { return e.ConsumedAtMs > 0 }

// Validate checks if the BusEvent has valid field values.
func (e *BusEvent) Validate() error {
	if !isValidUUID(e.ID) {
		return faults.Validation("invalid event ID: not a valid UUID")
	}
	if e.Type == "" {
		return faults.Validation("event type cannot be empty")
	}
	if e.Source == "" {
		return faults.Validation("event source cannot be empty")
	}
	return nil
}

// MatchesPattern reports whether the event type matches a prefix/wildcard
// pattern. A trailing '%' matches any suffix: "worker.%" matches every type
// beginning "worker.". Without '%' the match is exact. "%" matches all.
func MatchesPattern(eventType, pattern string) bool {
	if pattern == "" || pattern == "%" {
		return true
	}
	if strings.HasSuffix(pattern, "%") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "%"))
	}
	return eventType == pattern
}

// BlackboardEntry is one key in a team's shared blackboard. Version is
// strictly increasing per key; each write replaces the full value.
type BlackboardEntry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Version     int64  `json:"version"`       // Starts at 1, incremented on every write
	UpdatedBy   string `json:"updated_by"`    // Last writer identity
	UpdatedAtMs int64  `json:"updated_at_ms"` // Unix ms of last write
}

// TeamStatus defines the lifecycle state of a team.
type TeamStatus string

const (
	TeamIdle   TeamStatus = "idle"
	TeamActive TeamStatus = "active"
	TeamError  TeamStatus = "error"
)

// Validate checks if the TeamStatus is a valid enum value.
func (s TeamStatus) Validate() error {
	switch s {
	case TeamIdle, TeamActive, TeamError:
		return nil
	default:
		return faults.Validation("unknown team status: %q", s)
	}
}

// TeamMember binds an agent instance into a team with a role and
// capability tags.
type TeamMember struct {
	InstanceID   string   `json:"instance_id"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
}

// Team is a named group of agent instances collaborating via a shared
// blackboard and the event bus.
type Team struct {
	ID           string       `json:"id"` // UUID
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Status       TeamStatus   `json:"status"`
	Members      []TeamMember `json:"members"`       // Ordered
	SupervisorID string       `json:"supervisor_id"` // Instance ID of the supervising member, optional
}

// Validate checks the Team invariants. A set supervisor must reference a
// member of the same team.
func (t *Team) Validate() error {
	if !isValidUUID(t.ID) {
		return faults.Validation("invalid team ID: not a valid UUID")
	}
	if t.Name == "" {
		return faults.Validation("team name cannot be empty")
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	for i, m := range t.Members {
		if m.InstanceID == "" {
			return faults.Validation("member %d has empty instance ID", i)
		}
	}
	if t.SupervisorID != "" && t.Member(t.SupervisorID) == nil {
		return faults.Validation("supervisor %s is not a member of team %s", t.SupervisorID, t.ID)
	}
	return nil
}

// Member returns the member with the given instance ID, or nil.
func (t *Team) Member(instanceID string) *TeamMember {
	for i := range t.Members {
		if t.Members[i].InstanceID == instanceID {
			return &t.Members[i]
		}
	}
	return nil
}

// StepType identifies what a workflow step executes.
type StepType string

const (
	// StepAgent invokes an agent instance with the step's resolved input
	// as the prompt and captures the final output.
	StepAgent StepType = "agent"
)

// Validate checks if the StepType is a valid enum value.
func (s StepType) Validate() error {
	switch s {
	case StepAgent:
		return nil
	default:
		return faults.Validation("unknown step type: %q", s)
	}
}

// RetryPolicy controls how a failing step is retried before being recorded
// as failed. Backoff between attempts is exponential starting at BackoffMs.
type RetryPolicy struct {
	MaxAttempts int   `json:"max_attempts"` // Total attempts including the first (min 1)
	BackoffMs   int64 `json:"backoff_ms"`   // Initial backoff between attempts
}

// WorkflowStep is one declared step of a workflow.
type WorkflowStep struct {
	ID              string      `json:"id"`
	Type            StepType    `json:"type"`
	Agent           string      `json:"agent"`             // Agent template name (agent steps)
	Input           string      `json:"input"`             // Input-binding expression, empty = ${input}
	Condition       string      `json:"condition"`         // Guard predicate, empty = always run
	Retry           RetryPolicy `json:"retry"`
	ContinueOnError bool        `json:"continue_on_error"` // Failed step does not halt the run
	FreshInstance   bool        `json:"fresh_instance"`    // Never reuse an idle instance from a prior step
}

// TriggerManual is the only trigger descriptor currently supported.
const TriggerManual = "manual"

// Workflow is a persisted multi-step automation definition.
type Workflow struct {
	ID          string         `json:"id"` // UUID
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Trigger     string         `json:"trigger"` // "manual"; automatic triggers reserved
	Steps       []WorkflowStep `json:"steps"`   // Ordered; executed strictly in sequence
}

// Validate checks the Workflow shape: unique non-empty step ids, valid step
// types, sane retry policies, agent set on agent steps.
func (w *Workflow) Validate() error {
	if !isValidUUID(w.ID) {
		return faults.Validation("invalid workflow ID: not a valid UUID")
	}
	if w.Name == "" {
		return faults.Validation("workflow name cannot be empty")
	}
	if w.Trigger == "" {
		w.Trigger = TriggerManual
	}
	if w.Trigger != TriggerManual {
		return faults.Validation("unsupported trigger: %q", w.Trigger)
	}
	if len(w.Steps) == 0 {
		return faults.Validation("workflow must declare at least one step")
	}
	seen := make(map[string]bool, len(w.Steps))
	for i, s := range w.Steps {
		if s.ID == "" {
			return faults.Validation("step %d has empty ID", i)
		}
		if seen[s.ID] {
			return faults.Validation("duplicate step ID: %q", s.ID)
		}
		seen[s.ID] = true
		if err := s.Type.Validate(); err != nil {
			return err
		}
		if s.Type == StepAgent && s.Agent == "" {
			return faults.Validation("step %q: agent steps must name an agent", s.ID)
		}
		if s.Retry.MaxAttempts < 0 || s.Retry.BackoffMs < 0 {
			return faults.Validation("step %q: negative retry policy", s.ID)
		}
	}
	return nil
}

// StepStatus is the recorded outcome of one step in a run.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// RunStatus is the overall status of a workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StepResult is the durable per-step outcome appended to a run, strictly in
// step order.
type StepResult struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	Output     string     `json:"output"`
	Error      string     `json:"error"`
	Attempts   int        `json:"attempts"`
	DurationMs int64      `json:"duration_ms"`
}

// WorkflowRun is one durable execution of a workflow.
type WorkflowRun struct {
	ID          string       `json:"id"` // UUID
	WorkflowID  string       `json:"workflow_id"`
	Status      RunStatus    `json:"status"`
	Input       string       `json:"input"` // Initial input snapshot
	StartedAtMs int64        `json:"started_at_ms"`
	EndedAtMs   int64        `json:"ended_at_ms"` // 0 while running
	Steps       []StepResult `json:"steps"`
	Error       string       `json:"error"` // Human-readable terminal failure, if status=failed
}

// Trace wraps one top-level agent or workflow invocation for observability.
// The core only writes traces; querying them is a collaborator concern.
type Trace struct {
	ID          string `json:"id"` // UUID
	Subject     string `json:"subject"` // instance or run id
	Kind        string `json:"kind"`    // "agent" or "workflow"
	Status      string `json:"status"`
	StartedAtMs int64  `json:"started_at_ms"`
	EndedAtMs   int64  `json:"ended_at_ms"`
}

// TraceSpan is a named, timed sub-operation belonging to exactly one trace.
type TraceSpan struct {
	TraceID     string `json:"trace_id"`
	ID          string `json:"id"` // UUID
	Name        string `json:"name"`
	Status      string `json:"status"`
	StartedAtMs int64  `json:"started_at_ms"`
	EndedAtMs   int64  `json:"ended_at_ms"`
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
