// Package supervisor manages the lifecycle of agent instances: external
// coding-agent processes driven through runtime adapters.
//
// An instance moves created -> running -> {idle, error}, idle -> running on
// the next prompt, and any state -> terminated on an explicit stop.
// Terminated is absorbing. Each prompt turn drains the adapter's event
// stream asynchronously, appending every event to the instance log and
// publishing lifecycle events on the bus.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/adapter"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/trace"
)

// Observer receives adapter events for a turn as they are drained. Called
// from the drain goroutine; must not block for long.
type Observer func(instanceID string, ev adapter.Event)

// LaunchSpec describes a new instance.
type LaunchSpec struct {
	AgentName   string
	DisplayName string
	Runtime     store.RuntimeKind
	WorkDir     string
	Plugin      string
}

// liveInstance tracks the in-process state of a draining turn. Instances
// with no liveInstance entry have no turn in flight in this process.
type liveInstance struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// Supervisor owns instance state transitions. All status writes go through
// it; nothing else mutates agent hashes.
type Supervisor struct {
	client   *store.Client
	bus      *bus.Bus
	registry *adapter.Registry
	tracer   *trace.Tracer

	mu   sync.Mutex
	live map[string]*liveInstance
}

// New creates a supervisor. The tracer may be nil.
func New(client *store.Client, eventBus *bus.Bus, registry *adapter.Registry, tracer *trace.Tracer) *Supervisor {
	return &Supervisor{
		client:   client,
		bus:      eventBus,
		registry: registry,
		tracer:   tracer,
		live:     make(map[string]*liveInstance),
	}
}

// Launch creates and registers a new instance. If prompt is non-empty the
// first turn starts immediately and drains in the background; otherwise the
// instance is ready (idle) for a later Prompt. Launch never waits for the
// turn to finish.
func (s *Supervisor) Launch(ctx context.Context, spec LaunchSpec, prompt string, obs Observer) (*store.AgentInstance, error) {
	if spec.AgentName == "" {
		return nil, faults.Validation("agent name cannot be empty")
	}
	ad, err := s.registry.Get(spec.Runtime)
	if err != nil {
		return nil, err
	}

	instance := &store.AgentInstance{
		ID:           uuid.New().String(),
		AgentName:    spec.AgentName,
		DisplayName:  spec.DisplayName,
		Runtime:      spec.Runtime,
		Status:       store.StatusCreated,
		WorkDir:      spec.WorkDir,
		Plugin:       spec.Plugin,
		StartedAtMs:  time.Now().UnixMilli(),
		LastActiveMs: time.Now().UnixMilli(),
	}
	if instance.DisplayName == "" {
		instance.DisplayName = spec.AgentName
	}

	sessionID, err := ad.CreateSession(ctx, spec.WorkDir, spec.AgentName)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	instance.SessionID = sessionID

	if err := s.client.PutAgent(ctx, instance); err != nil {
		return nil, err
	}
	s.logEvent("instance_launched", map[string]interface{}{
		"instance_id": instance.ID,
		"agent":       instance.AgentName,
		"runtime":     instance.Runtime,
	})
	s.publish(ctx, "agent.started", instance.ID, map[string]any{
		"agent":   instance.AgentName,
		"runtime": string(instance.Runtime),
	})

	if prompt == "" {
		instance.Status = store.StatusIdle
		if err := s.client.PutAgent(ctx, instance); err != nil {
			return nil, err
		}
		snapshot := *instance
		return &snapshot, nil
	}

	if err := s.startTurn(ctx, instance, ad, prompt, obs); err != nil {
		return nil, err
	}
	// The drain goroutine keeps mutating instance; hand the caller a copy.
	// The lock orders this read against the drain's final status write.
	s.mu.Lock()
	snapshot := *instance
	s.mu.Unlock()
	return &snapshot, nil
}

// Prompt sends a follow-up message to an idle instance. The turn drains in
// the background; use Wait to block until it ends. Prompting a running,
// errored or terminated instance is an invalid-state error.
func (s *Supervisor) Prompt(ctx context.Context, instanceID, message string, obs Observer) error {
	if message == "" {
		return faults.Validation("prompt message cannot be empty")
	}

	instance, err := s.Instance(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status != store.StatusIdle {
		return faults.InvalidState("instance %s is %s, can only prompt an idle instance", instanceID, instance.Status)
	}

	ad, err := s.registry.Get(instance.Runtime)
	if err != nil {
		return err
	}
	return s.startTurn(ctx, instance, ad, message, obs)
}

// Stop terminates an instance. A draining turn is cancelled cooperatively;
// the final status is terminated regardless of how the cancellation races
// with stream shutdown. Stopping an already terminated instance is a no-op.
func (s *Supervisor) Stop(ctx context.Context, instanceID string) error {
	instance, err := s.client.GetAgent(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status == store.StatusTerminated {
		return nil
	}

	s.mu.Lock()
	if li, ok := s.live[instanceID]; ok {
		li.stopped = true
		li.cancel()
	}
	s.mu.Unlock()

	instance.Status = store.StatusTerminated
	instance.LastActiveMs = time.Now().UnixMilli()
	if err := s.client.PutAgent(ctx, instance); err != nil {
		return err
	}
	s.logEvent("instance_terminated", map[string]interface{}{"instance_id": instanceID})
	s.publish(ctx, "agent.terminated", instanceID, nil)
	return nil
}

// Remove deletes a terminated instance and its logs. Removing a live
// instance is an invalid-state error; stop it first.
func (s *Supervisor) Remove(ctx context.Context, instanceID string) error {
	instance, err := s.client.GetAgent(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status != store.StatusTerminated {
		return faults.InvalidState("instance %s is %s, stop it before removing", instanceID, instance.Status)
	}
	if err := s.client.ClearLogs(ctx, instanceID); err != nil {
		return err
	}
	return s.client.DeleteAgent(ctx, instanceID)
}

// Wait blocks until the instance's in-flight turn (if any) has fully
// drained, or ctx is cancelled.
func (s *Supervisor) Wait(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	li, ok := s.live[instanceID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-li.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Instance loads an instance, recovering orphans along the way: a stored
// running status with no drain in this process means a previous process
// died mid-turn, and the instance is moved to error.
func (s *Supervisor) Instance(ctx context.Context, instanceID string) (*store.AgentInstance, error) {
	instance, err := s.client.GetAgent(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return s.recover(ctx, instance)
}

// List returns all instances, oldest first, applying orphan recovery.
func (s *Supervisor) List(ctx context.Context) ([]*store.AgentInstance, error) {
	instances, err := s.client.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i, instance := range instances {
		recovered, err := s.recover(ctx, instance)
		if err != nil {
			return nil, err
		}
		instances[i] = recovered
	}
	return instances, nil
}

// Logs returns the instance's retained log entries, oldest first.
func (s *Supervisor) Logs(ctx context.Context, instanceID string) ([]*store.LogEntry, error) {
	if _, err := s.client.GetAgent(ctx, instanceID); err != nil {
		return nil, err
	}
	return s.client.GetLogs(ctx, instanceID)
}

// ClearLogs drops the instance's retained log entries.
func (s *Supervisor) ClearLogs(ctx context.Context, instanceID string) error {
	if _, err := s.client.GetAgent(ctx, instanceID); err != nil {
		return err
	}
	return s.client.ClearLogs(ctx, instanceID)
}

// recover flips a stored running instance with no live drain to error.
func (s *Supervisor) recover(ctx context.Context, instance *store.AgentInstance) (*store.AgentInstance, error) {
	if instance.Status != store.StatusRunning {
		return instance, nil
	}
	s.mu.Lock()
	_, draining := s.live[instance.ID]
	s.mu.Unlock()
	if draining {
		return instance, nil
	}

	instance.Status = store.StatusError
	instance.LastError = "turn orphaned by supervisor restart"
	instance.LastActiveMs = time.Now().UnixMilli()
	if err := s.client.PutAgent(ctx, instance); err != nil {
		return nil, err
	}
	s.logEvent("instance_orphan_recovered", map[string]interface{}{"instance_id": instance.ID})
	s.publish(ctx, "agent.error", instance.ID, map[string]any{"error": instance.LastError})
	return instance, nil
}

// publish emits a lifecycle event, logging and swallowing bus failures so
// instance state transitions never depend on event delivery.
func (s *Supervisor) publish(ctx context.Context, eventType, instanceID string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Publish(ctx, eventType, bus.AgentSource(instanceID), payload); err != nil {
		log.Printf("[WARN] failed to publish %s for instance %s: %v", eventType, instanceID, err)
	}
}

// logEvent logs structured supervisor events
func (s *Supervisor) logEvent(event string, data map[string]interface{}) {
	log.Printf("[Supervisor] event=%s %v", event, data)
}
