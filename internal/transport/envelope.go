package transport

import (
	"encoding/json"
	"time"
)

// Inbound envelope types form a closed set; anything else is answered with a
// customer_service_error envelope.
const (
	TypeMessage = "customer_service_message"
	TypeTyping  = "customer_service_typing"
	TypeLeave   = "customer_service_leave_session"
)

// Envelope is the inbound WebSocket frame {type, data, sessionId?}.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Outbound is the frame sent to clients: {type, data, timestamp}.
type Outbound struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// messagePayload is the data of a customer_service_message frame. UserName
// and QuestionType only matter on the first message of a new session.
type messagePayload struct {
	Content      string `json:"content"`
	ContentType  string `json:"contentType,omitempty"`
	UserName     string `json:"userName,omitempty"`
	QuestionType string `json:"questionType,omitempty"`
}

// typingPayload is the data of a customer_service_typing frame.
type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// errorPayload is the data of a customer_service_error frame.
type errorPayload struct {
	Message string `json:"message"`
}
