// Package session holds the in-memory session store and waiting queue.
package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wedraw/support/internal/domain"
)

// Store is the authoritative in-memory session table. A userID index keeps
// the one-open-session-per-user lookup O(1) instead of a scan over every
// session.
//
// Store is not safe for concurrent use; the dispatcher serializes access.
type Store struct {
	sessions map[string]*domain.Session
	byUser   map[string]string // userID -> open session ID
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
		byUser:   make(map[string]string),
	}
}

// Create returns the user's existing open session when there is one
// (idempotent-by-user semantics), otherwise creates a new waiting session.
// The second return value reports whether a session was created.
func (s *Store) Create(userID, userName, questionType string) (*domain.Session, bool) {
	if existing := s.UserActiveSession(userID); existing != nil {
		return existing, false
	}

	now := time.Now()
	sess := &domain.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		UserName:      userName,
		QuestionType:  questionType,
		Status:        domain.SessionWaiting,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	s.sessions[sess.ID] = sess
	s.byUser[userID] = sess.ID
	return sess, true
}

// Get returns the session with the given ID, or nil.
func (s *Store) Get(sessionID string) *domain.Session {
	return s.sessions[sessionID]
}

// UserActiveSession returns the user's open (waiting or active) session, or
// nil.
func (s *Store) UserActiveSession(userID string) *domain.Session {
	id, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	sess := s.sessions[id]
	if sess == nil || !sess.Open() {
		delete(s.byUser, userID)
		return nil
	}
	return sess
}

// AppendMessage adds a message to the session's history and bumps
// LastMessageAt. The message ID and timestamp are filled in when absent.
func (s *Store) AppendMessage(sessionID string, msg *domain.Message) (*domain.Message, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.SessionID = sessionID
	sess.Messages = append(sess.Messages, msg)
	sess.LastMessageAt = msg.Timestamp
	return msg, nil
}

// Messages returns the session's history in insertion order.
func (s *Store) Messages(sessionID string) ([]*domain.Message, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Messages, nil
}

// Close transitions a session to closed. Closing an already-closed session
// is a no-op with a warning, not an error. Agent fields are cleared so the
// status/agent coupling holds; who handled the session survives in ClosedBy
// and the message history.
func (s *Store) Close(sessionID, closedBy, reason string) (*domain.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if sess.Status == domain.SessionClosed {
		slog.Warn("close requested on already closed session", "session_id", sessionID, "closed_by", closedBy)
		return sess, nil
	}

	now := time.Now()
	sess.Status = domain.SessionClosed
	sess.AgentID = ""
	sess.AgentName = ""
	sess.ClosedAt = &now
	sess.ClosedBy = closedBy
	sess.CloseReason = reason
	delete(s.byUser, sess.UserID)
	return sess, nil
}

// ActiveByAgent returns every active session currently owned by the agent.
func (s *Store) ActiveByAgent(agentID string) []*domain.Session {
	var owned []*domain.Session
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionActive && sess.AgentID == agentID {
			owned = append(owned, sess)
		}
	}
	return owned
}

// ClosedBefore returns closed sessions whose ClosedAt is before the cutoff.
func (s *Store) ClosedBefore(cutoff time.Time) []*domain.Session {
	var closed []*domain.Session
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionClosed && sess.ClosedAt != nil && sess.ClosedAt.Before(cutoff) {
			closed = append(closed, sess)
		}
	}
	return closed
}

// Delete removes a session from the live table. Used by the retention worker
// after the session has been flushed to the mirror store.
func (s *Store) Delete(sessionID string) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if id, ok := s.byUser[sess.UserID]; ok && id == sessionID {
		delete(s.byUser, sess.UserID)
	}
	delete(s.sessions, sessionID)
}

// Len returns the number of live sessions (any status) held in memory.
func (s *Store) Len() int {
	return len(s.sessions)
}
