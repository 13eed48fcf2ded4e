package domain

import "errors"

// Sentinel errors for session routing operations. Callers match these with
// errors.Is; wrapping adds the operation context.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAgentNotFound   = errors.New("agent not found")
	ErrInvalidTransfer = errors.New("invalid transfer")
	ErrNotSessionAgent = errors.New("agent not assigned to session")
)
