// Package transport carries support-router events over WebSocket with a
// push-notification fallback for offline recipients.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/wedraw/support/internal/push"
)

const (
	writeTimeout  = 10 * time.Second
	outboundDepth = 64
)

// client is one participant's live connection plus its outbound queue. A
// single writer goroutine drains the queue, so events to a recipient leave
// the socket in the order they were emitted.
type client struct {
	conn *websocket.Conn
	role string
	out  chan Outbound
	done chan struct{}
}

func (c *client) writeLoop(participantID string) {
	for {
		select {
		case msg := <-c.out:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := writeJSON(ctx, c.conn, msg)
			cancel()
			if err != nil {
				slog.Debug("websocket notify failed", "recipient_id", participantID, "event", msg.Type, "error", err)
			}
		case <-c.done:
			return
		}
	}
}

// Hub tracks the live WebSocket connection per participant. Users and agents
// share the namespace; IDs are disjoint by construction (agent IDs come from
// the registry, user IDs from the storefront).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	pusher  *push.Client
}

// NewHub creates a connection hub. pusher may be nil, in which case events
// for offline recipients are dropped with a debug log.
func NewHub(pusher *push.Client) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		pusher:  pusher,
	}
}

// Register adds a connection for a participant, replacing and closing any
// previous one, and starts its writer goroutine.
func (h *Hub) Register(participantID, role string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[participantID]; ok && existing.conn != conn {
		close(existing.done)
		_ = existing.conn.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	c := &client{
		conn: conn,
		role: role,
		out:  make(chan Outbound, outboundDepth),
		done: make(chan struct{}),
	}
	h.clients[participantID] = c
	go c.writeLoop(participantID)
	slog.Info("participant connected", "participant_id", participantID, "role", role)
}

// Unregister removes a connection, but only if it is still the current one
// for the participant (a replaced connection must not evict its successor).
func (h *Hub) Unregister(participantID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[participantID]; ok && current.conn == conn {
		close(current.done)
		delete(h.clients, participantID)
		slog.Info("participant disconnected", "participant_id", participantID)
	}
}

// IsConnected reports whether the participant has a live connection.
func (h *Hub) IsConnected(participantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[participantID]
	return ok
}

// Role returns the registered role for a participant, or "".
func (h *Hub) Role(participantID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[participantID]; ok {
		return c.role
	}
	return ""
}

// Notify implements dispatch.Notifier. Connected recipients get the event
// queued on their connection's writer; everyone else gets a push
// notification. Enqueueing never blocks the caller; a full queue drops the
// event with a warning.
func (h *Hub) Notify(_ context.Context, recipientID, event string, data any) {
	h.mu.RLock()
	c := h.clients[recipientID]
	h.mu.RUnlock()

	out := Outbound{Type: event, Data: data, Timestamp: time.Now()}

	if c != nil {
		select {
		case c.out <- out:
		default:
			slog.Warn("outbound queue full, event dropped", "recipient_id", recipientID, "event", event)
		}
		return
	}

	if h.pusher == nil {
		slog.Debug("recipient offline and no push configured, event dropped",
			"recipient_id", recipientID, "event", event)
		return
	}
	h.pusher.Send(context.Background(), push.Notification{
		UserID:  recipientID,
		Title:   pushTitle(event),
		Content: pushContent(event),
		Type:    "customer_service",
		Data:    push.Data{SessionID: sessionIDOf(data)},
	})
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// sessionIDOf extracts the session_id field from an event payload. Every
// event payload carries one.
func sessionIDOf(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.SessionID
}
