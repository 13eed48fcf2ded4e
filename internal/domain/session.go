package domain

import "time"

// SessionStatus describes a support session's lifecycle state.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
)

// Session is a single conversation between one user and at most one agent.
//
// Status transitions are waiting -> active -> closed or waiting -> closed.
// Failover demotes active back to waiting when an agent disconnects; that is
// the only path back.
type Session struct {
	ID            string        `json:"session_id"`
	UserID        string        `json:"user_id"`
	UserName      string        `json:"user_name"`
	QuestionType  string        `json:"question_type"`
	Status        SessionStatus `json:"status"`
	AgentID       string        `json:"agent_id,omitempty"`
	AgentName     string        `json:"agent_name,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	AssignedAt    *time.Time    `json:"assigned_at,omitempty"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	ClosedBy      string        `json:"closed_by,omitempty"`
	CloseReason   string        `json:"close_reason,omitempty"`
	LastMessageAt time.Time     `json:"last_message_at"`
	Messages      []*Message    `json:"messages,omitempty"`
}

// Assigned reports whether the session currently has an agent.
func (s *Session) Assigned() bool {
	return s.AgentID != ""
}

// Open reports whether the session is still live (waiting or active).
func (s *Session) Open() bool {
	return s.Status != SessionClosed
}

// Message is one entry in a session's history. Messages are append-only and
// immutable once created, except for the read flag.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
	IsAutoReply bool      `json:"is_auto_reply"`
	IsSystem    bool      `json:"is_system"`
}
