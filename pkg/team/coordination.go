package team

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/roost/pkg/adapter"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/supervisor"
)

// taskResult is the outcome of one delegated task, fed back to the
// coordination loop.
type taskResult struct {
	TaskID string
	Member string
	Output string
	Failed bool
}

// EventHook receives every task event the coordination loop handles
// (task.delegated, task.failed, task.completed) at the moment it is claimed
// or published. The events are already consumed when the hook sees them.
type EventHook func(event *store.BusEvent)

func (h EventHook) relay(event *store.BusEvent) {
	if h != nil && event != nil {
		h(event)
	}
}

// Start runs a team activity: the supervisor member is prompted with the
// given message, task.delegated events it publishes are claimed and
// dispatched to the named members, and their outcomes are relayed back to
// the supervisor as follow-up prompts. The call blocks until the activity
// ends.
//
// The activity ends when a supervisor turn finishes with nothing delegated
// and nothing in flight. A supervisor turn error ends the activity
// immediately and leaves the team in error status; there is no automatic
// retry. A team without a supervisor member cannot start an activity.
//
// obs receives the supervisor member's adapter events; hook receives each
// task event as the loop handles it. Either may be nil.
func (m *Manager) Start(ctx context.Context, teamID, prompt string, obs supervisor.Observer, hook EventHook) error {
	team, err := m.client.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.SupervisorID == "" {
		if err := m.setStatus(ctx, team, store.TeamError); err != nil {
			return err
		}
		return faults.InvalidState("team %s has no supervisor member, cannot start an activity", teamID)
	}
	if team.Status == store.TeamActive {
		return faults.InvalidState("team %s already has an activity in progress", teamID)
	}

	if err := m.setStatus(ctx, team, store.TeamActive); err != nil {
		return err
	}
	m.publish(ctx, "team.started", team.ID, map[string]any{"prompt": truncate(prompt, 200)})

	runErr := m.coordinate(ctx, team, prompt, obs, hook)

	if runErr != nil {
		if err := m.setStatus(ctx, team, store.TeamError); err != nil {
			log.Printf("[WARN] failed to record error status for team %s: %v", team.ID, err)
		}
		m.publish(ctx, "team.error", team.ID, map[string]any{"error": runErr.Error()})
		return runErr
	}

	if err := m.setStatus(ctx, team, store.TeamIdle); err != nil {
		return err
	}
	m.publish(ctx, "team.completed", team.ID, nil)
	return nil
}

// coordinate is the delegation loop. Each iteration runs one supervisor
// turn, claims the task.delegated events that turn produced, dispatches
// them to members concurrently, then waits for outcomes and feeds them back
// as the next supervisor prompt.
func (m *Manager) coordinate(ctx context.Context, team *store.Team, prompt string, obs supervisor.Observer, hook EventHook) error {
	results := make(chan taskResult, 16)
	pending := 0
	message := prompt

	for {
		if err := m.sup.Prompt(ctx, team.SupervisorID, message, obs); err != nil {
			return fmt.Errorf("failed to prompt team supervisor: %w", err)
		}
		if err := m.sup.Wait(ctx, team.SupervisorID); err != nil {
			return err
		}
		instance, err := m.sup.Instance(ctx, team.SupervisorID)
		if err != nil {
			return err
		}
		if instance.Status != store.StatusIdle {
			return faults.AdapterFailure("team supervisor turn failed: %s", instance.LastError)
		}

		dispatched, err := m.dispatchDelegations(ctx, team, results, hook)
		if err != nil {
			return err
		}
		pending += dispatched

		if pending == 0 {
			return nil
		}

		// Block until at least one outcome arrives, polling the bus for
		// further task events in the meantime.
		outcomes, waited, err := m.collectResults(ctx, team, results, pending, hook)
		if err != nil {
			return err
		}
		// Externally reported outcomes can exceed what this loop dispatched.
		pending -= waited
		if pending < 0 {
			pending = 0
		}

		lines := make([]string, 0, len(outcomes))
		for _, res := range outcomes {
			lines = append(lines, renderResult(res))
		}
		message = strings.Join(lines, "\n")
	}
}

// collectResults waits for at least one task outcome, then drains whatever
// else is already available. Bus polling continues while waiting so task
// events published by member turns are claimed promptly.
func (m *Manager) collectResults(ctx context.Context, team *store.Team, results chan taskResult, pending int, hook EventHook) ([]taskResult, int, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var outcomes []taskResult
	for len(outcomes) == 0 {
		select {
		case res := <-results:
			outcomes = append(outcomes, res)
		case <-ticker.C:
			claimed, err := m.claimReportedResults(ctx, team, hook)
			if err != nil {
				return nil, 0, err
			}
			outcomes = append(outcomes, claimed...)
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	for len(outcomes) < pending {
		select {
		case res := <-results:
			outcomes = append(outcomes, res)
		default:
			return outcomes, len(outcomes), nil
		}
	}
	return outcomes, len(outcomes), nil
}

// dispatchDelegations claims unconsumed task.delegated events for the team
// and prompts the addressed members concurrently. Each dispatch reports its
// outcome on the results channel and publishes the matching task event.
func (m *Manager) dispatchDelegations(ctx context.Context, team *store.Team, results chan<- taskResult, hook EventHook) (int, error) {
	events, err := m.bus.Check(ctx, bus.Filter{
		Type:           "task.delegated",
		Source:         bus.TeamSource(team.ID),
		UnconsumedOnly: true,
	})
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, event := range events {
		claimed, err := m.bus.Consume(ctx, event.ID)
		if err != nil {
			return dispatched, err
		}
		if !claimed {
			continue
		}
		hook.relay(event)

		task := delegationFromPayload(event.Payload)
		if task.TaskID == "" {
			task.TaskID = event.ID
		}

		target := m.resolveTarget(team, task)
		if target == "" {
			m.reportResult(ctx, team, results, taskResult{
				TaskID: task.TaskID,
				Failed: true,
				Output: fmt.Sprintf("no team member matches role %q", task.Role),
			}, hook)
			continue
		}

		dispatched++
		go m.runTask(ctx, team, target, task, results, hook)
	}
	return dispatched, nil
}

// delegation is the payload shape of a task.delegated event.
type delegation struct {
	TaskID string
	Member string // explicit instance id, optional
	Role   string // member role to address, used when Member is empty
	Task   string // the prompt for the member
}

func delegationFromPayload(payload map[string]any) delegation {
	str := func(key string) string {
		if v, ok := payload[key].(string); ok {
			return v
		}
		return ""
	}
	return delegation{
		TaskID: str("task_id"),
		Member: str("member"),
		Role:   str("role"),
		Task:   str("task"),
	}
}

// resolveTarget picks the member instance a delegation addresses: explicit
// instance id first, then the first non-supervisor member with the role.
func (m *Manager) resolveTarget(team *store.Team, task delegation) string {
	if task.Member != "" && team.Member(task.Member) != nil {
		return task.Member
	}
	if task.Role == "" {
		return ""
	}
	for _, member := range team.Members {
		if member.InstanceID == team.SupervisorID {
			continue
		}
		if member.Role == task.Role {
			return member.InstanceID
		}
	}
	return ""
}

// runTask executes one delegated task against a member instance and reports
// the outcome.
func (m *Manager) runTask(ctx context.Context, team *store.Team, instanceID string, task delegation, results chan<- taskResult, hook EventHook) {
	var output string
	var outputMu sync.Mutex
	capture := func(_ string, ev adapter.Event) {
		if ev.Type == adapter.EventDone {
			outputMu.Lock()
			output = ev.Result
			outputMu.Unlock()
		}
	}

	res := taskResult{TaskID: task.TaskID, Member: instanceID}

	if err := m.sup.Prompt(ctx, instanceID, task.Task, capture); err != nil {
		res.Failed = true
		res.Output = err.Error()
		m.reportResult(ctx, team, results, res, hook)
		return
	}
	if err := m.sup.Wait(ctx, instanceID); err != nil {
		res.Failed = true
		res.Output = err.Error()
		m.reportResult(ctx, team, results, res, hook)
		return
	}

	instance, err := m.sup.Instance(ctx, instanceID)
	switch {
	case err != nil:
		res.Failed = true
		res.Output = err.Error()
	case instance.Status != store.StatusIdle:
		res.Failed = true
		res.Output = instance.LastError
	default:
		outputMu.Lock()
		res.Output = output
		outputMu.Unlock()
	}
	m.reportResult(ctx, team, results, res, hook)
}

// reportResult publishes the task outcome event and feeds the coordination
// loop. The published event is claimed immediately so the loop's own poll
// does not double-count it; it stays on the bus for outside observers.
func (m *Manager) reportResult(ctx context.Context, team *store.Team, results chan<- taskResult, res taskResult, hook EventHook) {
	eventType := "task.completed"
	payloadKey := "result"
	if res.Failed {
		eventType = "task.failed"
		payloadKey = "error"
	}
	event, err := m.bus.Publish(ctx, eventType, bus.TeamSource(team.ID), map[string]any{
		"task_id":  res.TaskID,
		"member":   res.Member,
		payloadKey: res.Output,
	})
	if err != nil {
		log.Printf("[WARN] failed to publish %s for team %s: %v", eventType, team.ID, err)
	} else {
		claimed, err := m.bus.Consume(ctx, event.ID)
		if err != nil {
			log.Printf("[WARN] failed to claim own %s event for team %s: %v", eventType, team.ID, err)
		}
		// Relay only on a won claim; if the poll claimed first it relays.
		if claimed {
			hook.relay(event)
		}
	}

	select {
	case results <- res:
	case <-ctx.Done():
	}
}

// claimReportedResults claims task.completed and task.failed events
// published directly to the bus by member runtimes (rather than by this
// loop) and converts them into results.
func (m *Manager) claimReportedResults(ctx context.Context, team *store.Team, hook EventHook) ([]taskResult, error) {
	var claimed []taskResult
	for _, eventType := range []string{"task.completed", "task.failed"} {
		events, err := m.bus.Check(ctx, bus.Filter{
			Type:           eventType,
			Source:         bus.TeamSource(team.ID),
			UnconsumedOnly: true,
		})
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			ok, err := m.bus.Consume(ctx, event.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			hook.relay(event)
			res := taskResult{Failed: eventType == "task.failed"}
			if v, ok := event.Payload["task_id"].(string); ok {
				res.TaskID = v
			}
			if v, ok := event.Payload["member"].(string); ok {
				res.Member = v
			}
			if v, ok := event.Payload["result"].(string); ok {
				res.Output = v
			} else if v, ok := event.Payload["error"].(string); ok {
				res.Output = v
			}
			claimed = append(claimed, res)
		}
	}
	return claimed, nil
}

// renderResult formats a task outcome as a follow-up line for the
// supervisor member.
func renderResult(res taskResult) string {
	if res.Failed {
		return fmt.Sprintf("Task %s failed: %s", res.TaskID, res.Output)
	}
	return fmt.Sprintf("Task %s completed: %s", res.TaskID, res.Output)
}

// publish emits a team lifecycle event, swallowing bus failures.
func (m *Manager) publish(ctx context.Context, eventType, teamID string, payload map[string]any) {
	if _, err := m.bus.Publish(ctx, eventType, bus.TeamSource(teamID), payload); err != nil {
		log.Printf("[WARN] failed to publish %s for team %s: %v", eventType, teamID, err)
	}
}

// truncate limits a string to maxLen characters, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
