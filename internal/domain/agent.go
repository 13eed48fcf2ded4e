// Package domain contains core domain types for the WeDraw support router.
package domain

import "slices"

// AgentStatus describes an agent's availability state.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentBusy    AgentStatus = "busy"
	AgentAway    AgentStatus = "away"
	AgentOffline AgentStatus = "offline"
)

// ValidAgentStatus reports whether s is a known agent status.
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentOnline, AgentBusy, AgentAway, AgentOffline:
		return true
	}
	return false
}

// Agent represents a customer-service operator.
// Agents are never deleted; going offline is the terminal-ish state.
type Agent struct {
	ID              string      `json:"id"`
	DisplayName     string      `json:"display_name"`
	Online          bool        `json:"online"`
	Status          AgentStatus `json:"status"`
	MaxSessions     int         `json:"max_sessions"`
	CurrentSessions int         `json:"current_sessions"`
	Specialties     []string    `json:"specialties,omitempty"`
}

// HasSpecialty reports whether the agent carries the given specialty tag.
func (a *Agent) HasSpecialty(questionType string) bool {
	return slices.Contains(a.Specialties, questionType)
}

// Available reports whether the agent can accept another session.
func (a *Agent) Available() bool {
	return a.Online && a.CurrentSessions < a.MaxSessions
}
