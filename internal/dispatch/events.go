package dispatch

import (
	"context"

	"github.com/wedraw/support/internal/domain"
)

// Outbound event types form a closed set; the transport wraps each into a
// {type, data, timestamp} envelope for the recipient.
const (
	EventSessionWaiting     = "customer_service_waiting"
	EventQueuePosition      = "customer_service_queue_position"
	EventSessionAssigned    = "customer_service_session_assigned"
	EventMessage            = "customer_service_message"
	EventTyping             = "customer_service_typing"
	EventSessionClosed      = "customer_service_session_closed"
	EventSessionTransferred = "customer_service_session_transferred"
	EventError              = "customer_service_error"
)

// Notifier delivers an outbound event to a recipient. Implementations must
// not block the caller: the transport hub writes on the live WebSocket when
// the recipient is connected and falls back to push notification otherwise.
type Notifier interface {
	Notify(ctx context.Context, recipientID, event string, data any)
}

// Mirror is the best-effort persistence side-channel. Write failures are
// logged and swallowed; in-memory state stays authoritative.
type Mirror interface {
	SaveSession(ctx context.Context, sess *domain.Session) error
	SaveMessage(ctx context.Context, msg *domain.Message) error
}

// SessionInfo is the session summary carried by lifecycle events.
type SessionInfo struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	QuestionType string `json:"question_type"`
	Status       string `json:"status"`
	AgentID      string `json:"agent_id,omitempty"`
	AgentName    string `json:"agent_name,omitempty"`
}

// QueuePositionInfo is sent to waiting users whenever their position changes
// or the queue is re-broadcast.
type QueuePositionInfo struct {
	SessionID            string `json:"session_id"`
	Position             int    `json:"position"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

// TypingInfo relays typing state between session participants.
type TypingInfo struct {
	SessionID string `json:"session_id"`
	SenderID  string `json:"sender_id"`
	IsTyping  bool   `json:"is_typing"`
}

// ClosedInfo is sent to both participants when a session closes.
type ClosedInfo struct {
	SessionID string `json:"session_id"`
	ClosedBy  string `json:"closed_by"`
	Reason    string `json:"reason"`
}

// TransferInfo is sent when a session changes hands.
type TransferInfo struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Reason    string `json:"reason"`
}

func sessionInfo(sess *domain.Session) SessionInfo {
	return SessionInfo{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		QuestionType: sess.QuestionType,
		Status:       string(sess.Status),
		AgentID:      sess.AgentID,
		AgentName:    sess.AgentName,
	}
}
