// Package api provides HTTP handlers for the support router API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wedraw/support/internal/dispatch"
	"github.com/wedraw/support/internal/domain"
	"github.com/wedraw/support/internal/store"
)

// Handler exposes read and admin endpoints over the dispatcher. Live state
// answers first; the mirror store backs history queries for sessions already
// evicted from memory.
type Handler struct {
	d    *dispatch.Dispatcher
	repo store.Repository
}

// NewHandler creates a new Handler.
func NewHandler(d *dispatch.Dispatcher, repo store.Repository) *Handler {
	return &Handler{d: d, repo: repo}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts the API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.registerAgent)
		r.Patch("/agents/{agentID}/status", h.setAgentStatus)
		r.Get("/queue", h.queueSnapshot)
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{sessionID}", h.getSession)
		r.Get("/sessions/{sessionID}/messages", h.getSessionMessages)
		r.Post("/sessions/{sessionID}/transfer", h.transferSession)
		r.Post("/sessions/{sessionID}/close", h.closeSession)
	})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.d.Agents())
}

type registerAgentRequest struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	MaxSessions int      `json:"max_sessions"`
	Specialties []string `json:"specialties"`
}

func (h *Handler) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.DisplayName == "" {
		Error(w, http.StatusBadRequest, "id and display_name are required")
		return
	}
	if req.MaxSessions <= 0 {
		req.MaxSessions = 5
	}

	agent := h.d.RegisterAgent(r.Context(), &domain.Agent{
		ID:          req.ID,
		DisplayName: req.DisplayName,
		MaxSessions: req.MaxSessions,
		Specialties: req.Specialties,
	})
	JSON(w, http.StatusCreated, agent)
}

type agentStatusRequest struct {
	Online bool               `json:"online"`
	Status domain.AgentStatus `json:"status"`
}

func (h *Handler) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req agentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		if req.Online {
			req.Status = domain.AgentOnline
		} else {
			req.Status = domain.AgentOffline
		}
	}

	if err := h.d.SetAgentOnline(r.Context(), agentID, req.Online, req.Status); err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.d.Agent(agentID))
}

func (h *Handler) queueSnapshot(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.d.QueueSnapshot())
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	status := domain.SessionStatus(r.URL.Query().Get("status"))

	sessions, err := h.repo.ListSessions(r.Context(), status)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	JSON(w, http.StatusOK, sessions)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if sess := h.d.Session(sessionID); sess != nil {
		JSON(w, http.StatusOK, sess)
		return
	}

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, sess)
}

func (h *Handler) getSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if msgs, err := h.d.SessionMessages(sessionID); err == nil {
		JSON(w, http.StatusOK, msgs)
		return
	}

	msgs, err := h.repo.ListMessages(r.Context(), sessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if len(msgs) == 0 {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, msgs)
}

type transferRequest struct {
	TargetAgentID string `json:"target_agent_id"`
	By            string `json:"by"`
	Reason        string `json:"reason"`
}

func (h *Handler) transferSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetAgentID == "" {
		Error(w, http.StatusBadRequest, "target_agent_id is required")
		return
	}

	if err := h.d.Transfer(r.Context(), sessionID, req.TargetAgentID, req.By, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.d.Session(sessionID))
}

type closeRequest struct {
	ClosedBy string `json:"closed_by"`
	Reason   string `json:"reason"`
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.d.CloseSession(r.Context(), sessionID, req.ClosedBy, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.d.Session(sessionID))
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrAgentNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransfer):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
