// Package registry keeps the in-memory pool of customer-service agents.
package registry

import (
	"log/slog"
	"sort"

	"github.com/wedraw/support/internal/domain"
)

// Registry holds all known agents for the process lifetime. Agents are never
// removed; they go offline instead.
//
// Registry is not safe for concurrent use. The dispatcher serializes access
// to it alongside the session store and waiting queue so that agent load and
// session status always mutate together.
type Registry struct {
	agents map[string]*domain.Agent
	order  map[string]int
	nextID int
}

// New creates an empty agent registry.
func New() *Registry {
	return &Registry{
		agents: make(map[string]*domain.Agent),
		order:  make(map[string]int),
	}
}

// Register adds an agent to the pool, or refreshes display name, capacity and
// specialties if the agent reconnects under a known ID. Registration order is
// recorded once and survives re-registration; it is the final tie-break in
// FindAvailable.
func (r *Registry) Register(agent *domain.Agent) *domain.Agent {
	if existing, ok := r.agents[agent.ID]; ok {
		existing.DisplayName = agent.DisplayName
		existing.MaxSessions = agent.MaxSessions
		existing.Specialties = agent.Specialties
		return existing
	}

	if agent.Status == "" {
		agent.Status = domain.AgentOffline
	}
	r.agents[agent.ID] = agent
	r.order[agent.ID] = r.nextID
	r.nextID++
	return agent
}

// Get returns the agent with the given ID, or nil.
func (r *Registry) Get(agentID string) *domain.Agent {
	return r.agents[agentID]
}

// SetStatus updates an agent's online flag and status.
func (r *Registry) SetStatus(agentID string, online bool, status domain.AgentStatus) error {
	agent, ok := r.agents[agentID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	agent.Online = online
	agent.Status = status
	if !online {
		agent.Status = domain.AgentOffline
	}
	return nil
}

// FindAvailable returns the best agent for a question type, or nil when no
// agent can take the session. Candidates must be online with spare capacity
// and not in the exclude list. Ordering is explicit and deterministic:
// specialty match first, then least load, then registration order.
//
// This is a full scan per call. Agent pools are tens of entries, not
// thousands, so the scan is fine at this scale.
func (r *Registry) FindAvailable(questionType string, exclude ...string) *domain.Agent {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var candidates []*domain.Agent
	for _, agent := range r.agents {
		if excluded[agent.ID] || !agent.Available() {
			continue
		}
		candidates = append(candidates, agent)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		am, bm := a.HasSpecialty(questionType), b.HasSpecialty(questionType)
		if am != bm {
			return am
		}
		if a.CurrentSessions != b.CurrentSessions {
			return a.CurrentSessions < b.CurrentSessions
		}
		return r.order[a.ID] < r.order[b.ID]
	})

	return candidates[0]
}

// IncrementLoad bumps an agent's session counter. Exceeding capacity is a
// programming error in the caller; the counter is left untouched and the
// violation logged.
func (r *Registry) IncrementLoad(agentID string) error {
	agent, ok := r.agents[agentID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	if agent.CurrentSessions >= agent.MaxSessions {
		slog.Warn("agent load increment past capacity refused",
			"agent_id", agentID, "current", agent.CurrentSessions, "max", agent.MaxSessions)
		return nil
	}
	agent.CurrentSessions++
	return nil
}

// DecrementLoad releases one session slot, clamped at zero.
func (r *Registry) DecrementLoad(agentID string) error {
	agent, ok := r.agents[agentID]
	if !ok {
		return domain.ErrAgentNotFound
	}
	if agent.CurrentSessions <= 0 {
		slog.Warn("agent load decrement below zero refused", "agent_id", agentID)
		return nil
	}
	agent.CurrentSessions--
	return nil
}

// List returns all agents in registration order.
func (r *Registry) List() []*domain.Agent {
	agents := make([]*domain.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool {
		return r.order[agents[i].ID] < r.order[agents[j].ID]
	})
	return agents
}
