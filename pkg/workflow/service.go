// Package workflow executes declared multi-step automations over agent
// instances. A workflow is an ordered list of steps; a run is one durable
// execution of it, with per-step outcomes, retries with exponential
// backoff, conditional guards and input bindings between steps.
package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/adapter"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/supervisor"
	"github.com/dyluth/roost/pkg/trace"
)

// AgentTemplate describes how to launch an instance for a named agent.
type AgentTemplate struct {
	Runtime     store.RuntimeKind
	WorkDir     string
	DisplayName string
}

// Service owns workflow definitions and runs them. Safe for concurrent use.
type Service struct {
	client    *store.Client
	bus       *bus.Bus
	sup       *supervisor.Supervisor
	tracer    *trace.Tracer
	templates map[string]AgentTemplate
}

// NewService creates a workflow service. The tracer may be nil. Templates
// map agent names used by workflow steps to launch parameters.
func NewService(client *store.Client, eventBus *bus.Bus, sup *supervisor.Supervisor, tracer *trace.Tracer, templates map[string]AgentTemplate) *Service {
	if templates == nil {
		templates = make(map[string]AgentTemplate)
	}
	return &Service{
		client:    client,
		bus:       eventBus,
		sup:       sup,
		tracer:    tracer,
		templates: templates,
	}
}

// Create validates and persists a workflow definition. Beyond the shape
// checks, every condition and input binding must reference only steps
// declared earlier in the same workflow.
func (s *Service) Create(ctx context.Context, w *store.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.Trigger == "" {
		w.Trigger = store.TriggerManual
	}
	if err := validateDefinition(w); err != nil {
		return err
	}
	return s.client.PutWorkflow(ctx, w)
}

// Update replaces an existing workflow definition. The replacement passes
// the same validation as Create; runs recorded against the old definition
// are untouched.
func (s *Service) Update(ctx context.Context, w *store.Workflow) error {
	if _, err := s.client.GetWorkflow(ctx, w.ID); err != nil {
		return err
	}
	if w.Trigger == "" {
		w.Trigger = store.TriggerManual
	}
	if err := validateDefinition(w); err != nil {
		return err
	}
	return s.client.PutWorkflow(ctx, w)
}

// validateDefinition runs the shape checks plus the ordering rule: every
// condition and input binding may reference only steps declared earlier in
// the same workflow.
func validateDefinition(w *store.Workflow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	earlier := make(map[string]bool, len(w.Steps))
	for _, step := range w.Steps {
		if err := validateCondition(step.ID, step.Condition, earlier); err != nil {
			return err
		}
		if err := validateBinding(step.ID, step.Input, earlier); err != nil {
			return err
		}
		earlier[step.ID] = true
	}
	return nil
}

// Get loads a workflow definition.
func (s *Service) Get(ctx context.Context, workflowID string) (*store.Workflow, error) {
	return s.client.GetWorkflow(ctx, workflowID)
}

// List returns all workflow definitions.
func (s *Service) List(ctx context.Context) ([]*store.Workflow, error) {
	return s.client.ListWorkflows(ctx)
}

// Delete removes a workflow definition. Past runs are retained; they are
// the execution record.
func (s *Service) Delete(ctx context.Context, workflowID string) error {
	if _, err := s.client.GetWorkflow(ctx, workflowID); err != nil {
		return err
	}
	return s.client.DeleteWorkflow(ctx, workflowID)
}

// Run loads one run record.
func (s *Service) Run(ctx context.Context, runID string) (*store.WorkflowRun, error) {
	return s.client.GetRun(ctx, runID)
}

// Runs lists the runs of a workflow, newest first.
func (s *Service) Runs(ctx context.Context, workflowID string) ([]*store.WorkflowRun, error) {
	if _, err := s.client.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.client.ListRuns(ctx, workflowID)
}

// Execute runs a workflow to a terminal status and returns the run record.
// Steps execute strictly in order. A step that fails all its attempts
// (and is not marked continue-on-error) halts the run: remaining steps are
// recorded skipped and the run is failed. The run record is persisted after
// every step, so a crash leaves a truthful partial record.
//
// A failed run is not an error return; the failure lives in the run's
// status. The error return is for infrastructure problems only.
func (s *Service) Execute(ctx context.Context, workflowID, input string, obs supervisor.Observer) (*store.WorkflowRun, error) {
	w, err := s.client.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run := &store.WorkflowRun{
		ID:          uuid.New().String(),
		WorkflowID:  w.ID,
		Status:      store.RunRunning,
		Input:       input,
		StartedAtMs: time.Now().UnixMilli(),
		Steps:       make([]store.StepResult, 0, len(w.Steps)),
	}
	if err := s.client.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	tr := s.tracer.Begin(ctx, "workflow", bus.RunSource(run.ID))
	s.publish(ctx, "workflow.started", run.ID, map[string]any{"workflow_id": w.ID, "name": w.Name})
	s.logEvent("run_started", map[string]interface{}{"run_id": run.ID, "workflow": w.Name})

	exec := &execution{
		service:   s,
		workflow:  w,
		run:       run,
		recorded:  make(map[string]store.StepResult, len(w.Steps)),
		instances: make(map[string]string),
		obs:       obs,
		traceID:   tr.ID,
	}
	defer exec.stopInstances(ctx)

	halted := false
	for _, step := range w.Steps {
		result := exec.runStep(ctx, step, halted)
		run.Steps = append(run.Steps, result)
		exec.recorded[step.ID] = result

		if ctx.Err() != nil {
			run.Status = store.RunFailed
			run.Error = ctx.Err().Error()
			run.EndedAtMs = time.Now().UnixMilli()
			if err := s.client.UpdateRun(ctx, run); err != nil {
				log.Printf("[WARN] failed to record cancelled run %s: %v", run.ID, err)
			}
			s.tracer.End(ctx, tr, "failed")
			return run, ctx.Err()
		}

		if err := s.client.UpdateRun(ctx, run); err != nil {
			return nil, err
		}

		switch result.Status {
		case store.StepFailed:
			s.publish(ctx, "workflow.step.failed", run.ID, map[string]any{"step": step.ID, "error": result.Error})
			if !step.ContinueOnError {
				halted = true
				run.Error = fmt.Sprintf("step %q failed: %s", step.ID, result.Error)
			}
		case store.StepSkipped:
			s.publish(ctx, "workflow.step.skipped", run.ID, map[string]any{"step": step.ID})
		default:
			s.publish(ctx, "workflow.step.completed", run.ID, map[string]any{"step": step.ID})
		}
	}

	run.EndedAtMs = time.Now().UnixMilli()
	if halted {
		run.Status = store.RunFailed
	} else {
		run.Status = store.RunCompleted
	}
	if err := s.client.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	if run.Status == store.RunFailed {
		s.logEvent("run_failed", map[string]interface{}{"run_id": run.ID, "error": run.Error})
		s.publish(ctx, "workflow.failed", run.ID, map[string]any{"error": run.Error})
		s.tracer.End(ctx, tr, "failed")
	} else {
		s.logEvent("run_completed", map[string]interface{}{"run_id": run.ID})
		s.publish(ctx, "workflow.completed", run.ID, nil)
		s.tracer.End(ctx, tr, "completed")
	}
	return run, nil
}

// execution carries the mutable state of one run.
type execution struct {
	service   *Service
	workflow  *store.Workflow
	run       *store.WorkflowRun
	recorded  map[string]store.StepResult
	instances map[string]string // agent name -> reusable instance id
	launched  []string          // instances this run created, stopped at the end
	obs       supervisor.Observer
	traceID   string
}

// runStep executes one step, honoring its guard condition and retry policy.
// A halted run records every remaining step as skipped.
func (e *execution) runStep(ctx context.Context, step store.WorkflowStep, halted bool) store.StepResult {
	result := store.StepResult{StepID: step.ID}

	if halted {
		result.Status = store.StepSkipped
		return result
	}

	shouldRun, err := evaluateCondition(step.Condition, e.recorded)
	if err != nil {
		result.Status = store.StepFailed
		result.Error = err.Error()
		return result
	}
	if !shouldRun {
		result.Status = store.StepSkipped
		return result
	}

	input, err := resolveBinding(step.Input, e.run.Input, e.recorded)
	if err != nil {
		result.Status = store.StepFailed
		result.Error = err.Error()
		return result
	}

	maxAttempts := step.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	if step.Retry.BackoffMs > 0 {
		bo.InitialInterval = time.Duration(step.Retry.BackoffMs) * time.Millisecond
	}
	bo.MaxElapsedTime = 0

	started := time.Now()
	var output string
	var stepErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		output, stepErr = e.runAgentStep(ctx, step, input)
		if stepErr == nil {
			break
		}
		e.service.logEvent("step_attempt_failed", map[string]interface{}{
			"run_id":  e.run.ID,
			"step":    step.ID,
			"attempt": attempt,
			"error":   stepErr.Error(),
		})
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(bo.NextBackOff()):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			// Cancelled mid-backoff; do not burn another attempt on a
			// dead context.
			break
		}
	}
	result.DurationMs = time.Since(started).Milliseconds()

	if stepErr != nil {
		result.Status = store.StepFailed
		result.Error = stepErr.Error()
	} else {
		result.Status = store.StepCompleted
		result.Output = output
	}
	e.service.tracer.Span(ctx, e.traceID, "step:"+step.ID, string(result.Status),
		started.UnixMilli(), time.Now().UnixMilli())
	return result
}

// runAgentStep performs one attempt of an agent step: pick or launch an
// instance, prompt it with the resolved input and capture the final output.
func (e *execution) runAgentStep(ctx context.Context, step store.WorkflowStep, input string) (string, error) {
	instanceID, err := e.instanceFor(ctx, step)
	if err != nil {
		return "", err
	}

	var output string
	capture := func(id string, ev adapter.Event) {
		if ev.Type == adapter.EventDone {
			output = ev.Result
		}
		if e.obs != nil {
			e.obs(id, ev)
		}
	}

	if err := e.service.sup.Prompt(ctx, instanceID, input, capture); err != nil {
		return "", err
	}
	if err := e.service.sup.Wait(ctx, instanceID); err != nil {
		return "", err
	}

	instance, err := e.service.sup.Instance(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if instance.Status != store.StatusIdle {
		return "", faults.StepFailure("agent turn failed: %s", instance.LastError)
	}
	return output, nil
}

// instanceFor returns the instance a step runs on. By default an idle
// instance launched earlier in the run for the same agent is reused, so the
// agent keeps its session context across steps; FreshInstance forces a new
// launch.
func (e *execution) instanceFor(ctx context.Context, step store.WorkflowStep) (string, error) {
	if !step.FreshInstance {
		if id, ok := e.instances[step.Agent]; ok {
			instance, err := e.service.sup.Instance(ctx, id)
			if err == nil && instance.Status == store.StatusIdle {
				return id, nil
			}
		}
	}

	tmpl, ok := e.service.templates[step.Agent]
	if !ok {
		return "", faults.Validation("no agent template named %q", step.Agent)
	}
	instance, err := e.service.sup.Launch(ctx, supervisor.LaunchSpec{
		AgentName:   step.Agent,
		DisplayName: tmpl.DisplayName,
		Runtime:     tmpl.Runtime,
		WorkDir:     tmpl.WorkDir,
	}, "", nil)
	if err != nil {
		return "", err
	}

	e.launched = append(e.launched, instance.ID)
	if !step.FreshInstance {
		e.instances[step.Agent] = instance.ID
	}
	return instance.ID, nil
}

// stopInstances terminates every instance the run launched.
func (e *execution) stopInstances(ctx context.Context) {
	for _, id := range e.launched {
		if err := e.service.sup.Stop(ctx, id); err != nil {
			log.Printf("[WARN] failed to stop run instance %s: %v", id, err)
		}
	}
}

// publish emits a run lifecycle event, swallowing bus failures.
func (s *Service) publish(ctx context.Context, eventType, runID string, payload map[string]any) {
	if _, err := s.bus.Publish(ctx, eventType, bus.RunSource(runID), payload); err != nil {
		log.Printf("[WARN] failed to publish %s for run %s: %v", eventType, runID, err)
	}
}

// logEvent logs structured workflow events
func (s *Service) logEvent(event string, data map[string]interface{}) {
	log.Printf("[Workflow] event=%s %v", event, data)
}
