// Package team groups agent instances into named teams that coordinate
// through a shared blackboard and the event bus. One member may be marked
// as the team's supervisor; team activities are driven by prompting the
// supervisor and relaying the task events it publishes.
package team

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/supervisor"
)

// DefaultPollInterval is how often the coordination loop checks the bus for
// task events while work is in flight.
const DefaultPollInterval = 500 * time.Millisecond

// Manager owns team records and runs team activities. Safe for concurrent
// use.
type Manager struct {
	client       *store.Client
	bus          *bus.Bus
	sup          *supervisor.Supervisor
	pollInterval time.Duration
}

// NewManager creates a team manager.
func NewManager(client *store.Client, eventBus *bus.Bus, sup *supervisor.Supervisor) *Manager {
	return &Manager{
		client:       client,
		bus:          eventBus,
		sup:          sup,
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval overrides the coordination poll interval.
func (m *Manager) SetPollInterval(d time.Duration) {
	if d > 0 {
		m.pollInterval = d
	}
}

// Create registers a new team. Every member must reference an existing
// agent instance, and the supervisor (if set) must be one of the members.
func (m *Manager) Create(ctx context.Context, name, description string, members []store.TeamMember, supervisorID string) (*store.Team, error) {
	team := &store.Team{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		Status:       store.TeamIdle,
		Members:      members,
		SupervisorID: supervisorID,
	}
	if err := team.Validate(); err != nil {
		return nil, err
	}
	for _, member := range members {
		if _, err := m.client.GetAgent(ctx, member.InstanceID); err != nil {
			if faults.IsNotFound(err) {
				return nil, faults.Validation("member instance %s does not exist", member.InstanceID)
			}
			return nil, err
		}
	}
	if err := m.client.PutTeam(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// Get loads a team by id.
func (m *Manager) Get(ctx context.Context, teamID string) (*store.Team, error) {
	return m.client.GetTeam(ctx, teamID)
}

// List returns all teams.
func (m *Manager) List(ctx context.Context) ([]*store.Team, error) {
	return m.client.ListTeams(ctx)
}

// Update replaces a team record. The team must already exist.
func (m *Manager) Update(ctx context.Context, team *store.Team) error {
	if err := team.Validate(); err != nil {
		return err
	}
	if _, err := m.client.GetTeam(ctx, team.ID); err != nil {
		return err
	}
	return m.client.PutTeam(ctx, team)
}

// Delete removes a team and its blackboard. Member instances are untouched;
// they outlive team membership.
func (m *Manager) Delete(ctx context.Context, teamID string) error {
	if _, err := m.client.GetTeam(ctx, teamID); err != nil {
		return err
	}
	return m.client.DeleteTeam(ctx, teamID)
}

// WriteNote writes a blackboard entry for the team. Each write bumps the
// key's version, so concurrent writers always produce distinct versions.
func (m *Manager) WriteNote(ctx context.Context, teamID, key, value, updatedBy string) (*store.BlackboardEntry, error) {
	if _, err := m.client.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return m.client.BlackboardWrite(ctx, teamID, key, value, updatedBy)
}

// Note reads one blackboard entry.
func (m *Manager) Note(ctx context.Context, teamID, key string) (*store.BlackboardEntry, error) {
	if _, err := m.client.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return m.client.BlackboardGet(ctx, teamID, key)
}

// Notes reads the whole blackboard, sorted by key.
func (m *Manager) Notes(ctx context.Context, teamID string) ([]*store.BlackboardEntry, error) {
	if _, err := m.client.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return m.client.BlackboardAll(ctx, teamID)
}

// DeleteNote removes one blackboard entry, reporting whether it existed.
func (m *Manager) DeleteNote(ctx context.Context, teamID, key string) (bool, error) {
	if _, err := m.client.GetTeam(ctx, teamID); err != nil {
		return false, err
	}
	return m.client.BlackboardDelete(ctx, teamID, key)
}

// setStatus persists a team status change.
func (m *Manager) setStatus(ctx context.Context, team *store.Team, status store.TeamStatus) error {
	team.Status = status
	return m.client.PutTeam(ctx, team)
}
