package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/coder/websocket"
	"github.com/wedraw/support/internal/dispatch"
	"github.com/wedraw/support/internal/domain"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

var participantIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Handler upgrades /ws/support connections and drives the support dispatcher
// from inbound envelopes. All handler-level errors are converted to
// customer_service_error envelopes; nothing on this path crashes the
// process.
type Handler struct {
	d             *dispatch.Dispatcher
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(d *dispatch.Dispatcher, hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{d: d, hub: hub, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade. Identity
// travels in-band: user_id and role query parameters on connect, validated
// against a conservative pattern.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("user_id")
	role := r.URL.Query().Get("role")
	if role == "" {
		role = RoleUser
	}

	if !participantIDPattern.MatchString(participantID) {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	if role != RoleUser && role != RoleAgent {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	slog.Info("support connection request", "participant_id", participantID, "role", role, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "participant_id", participantID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "error", closeErr, "participant_id", participantID)
		}
	}()

	h.hub.Register(participantID, role, ws)
	defer h.hub.Unregister(participantID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if role == RoleAgent {
		if err := h.d.SetAgentOnline(ctx, participantID, true, domain.AgentOnline); err != nil {
			slog.Warn("agent connect rejected", "agent_id", participantID, "error", err)
			h.sendError(ws, "agent not registered")
			return
		}
		defer func() {
			// Disconnect drives failover for every session the agent owns.
			offCtx, offCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer offCancel()
			if err := h.d.SetAgentOnline(offCtx, participantID, false, domain.AgentOffline); err != nil {
				slog.Warn("agent offline transition failed", "agent_id", participantID, "error", err)
			}
		}()
	}

	h.readLoop(ctx, ws, participantID, role)
	slog.Info("support connection ended", "participant_id", participantID, "role", role)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, participantID, role string) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("websocket closed by client", "participant_id", participantID)
			} else {
				slog.Warn("websocket read error", "error", err, "participant_id", participantID)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.sendError(ws, "malformed envelope")
			continue
		}

		if err := h.dispatch(ctx, participantID, role, env); err != nil {
			slog.Warn("envelope rejected", "participant_id", participantID, "type", env.Type, "error", err)
			h.sendError(ws, err.Error())
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, participantID, role string, env Envelope) error {
	switch env.Type {
	case TypeMessage:
		var payload messagePayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				return err
			}
		}
		if payload.ContentType == "" {
			payload.ContentType = "text"
		}
		if role == RoleAgent {
			_, err := h.d.AgentMessage(ctx, participantID, env.SessionID, payload.Content, payload.ContentType)
			return err
		}
		_, err := h.d.HandleUserMessage(ctx, participantID, payload.UserName, payload.QuestionType, payload.Content, payload.ContentType)
		return err

	case TypeTyping:
		var payload typingPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				return err
			}
		}
		return h.d.HandleTyping(ctx, participantID, env.SessionID, payload.IsTyping)

	case TypeLeave:
		return h.d.HandleLeave(ctx, participantID, env.SessionID)

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

func (h *Handler) sendError(ws *websocket.Conn, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	out := Outbound{
		Type:      dispatch.EventError,
		Data:      errorPayload{Message: message},
		Timestamp: time.Now(),
	}
	if err := writeJSON(ctx, ws, out); err != nil {
		slog.Debug("failed to send error envelope", "error", err)
	}
}
