// Package dispatch implements session admission, agent assignment, transfer
// and failover for the support router.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wedraw/support/internal/autoreply"
	"github.com/wedraw/support/internal/domain"
	"github.com/wedraw/support/internal/registry"
	"github.com/wedraw/support/internal/session"
)

const (
	// SenderSystem marks auto-replies and transfer notices in history.
	SenderSystem     = "system"
	systemSenderName = "WeDraw Support"

	defaultWaitPerSlot = 3 * time.Minute
)

// Options configures a Dispatcher.
type Options struct {
	Matcher *autoreply.Matcher
	// Notifier receives outbound events. Required.
	Notifier Notifier
	// Mirror persists sessions and messages best-effort. Optional.
	Mirror Mirror
	// WaitPerSlot is the estimated handling time per queue position used for
	// wait-time broadcasts. Zero means the default of 3 minutes.
	WaitPerSlot time.Duration
	// MirrorMaxInflight bounds concurrent mirror writes. Zero means 16.
	MirrorMaxInflight int64
}

// Dispatcher owns the agent registry, session store and waiting queue. A
// single mutex serializes every state-mutating operation, so each logical
// operation (create+assign, transfer, failover sweep) is atomic with respect
// to the others. Agent load and session status always change together under
// the same lock.
type Dispatcher struct {
	mu       sync.Mutex
	agents   *registry.Registry
	sessions *session.Store
	queue    *session.Queue

	matcher     *autoreply.Matcher
	notifier    Notifier
	mirror      *asyncMirror
	waitPerSlot time.Duration
}

// New creates a Dispatcher with empty state.
func New(opts Options) *Dispatcher {
	waitPerSlot := opts.WaitPerSlot
	if waitPerSlot <= 0 {
		waitPerSlot = defaultWaitPerSlot
	}
	return &Dispatcher{
		agents:      registry.New(),
		sessions:    session.NewStore(),
		queue:       session.NewQueue(),
		matcher:     opts.Matcher,
		notifier:    opts.Notifier,
		mirror:      newAsyncMirror(opts.Mirror, opts.MirrorMaxInflight),
		waitPerSlot: waitPerSlot,
	}
}

// RegisterAgent adds or refreshes an agent and, when the agent is online,
// immediately sweeps the waiting queue since capacity may have appeared.
// Returns a copy of the registered agent.
func (d *Dispatcher) RegisterAgent(ctx context.Context, agent *domain.Agent) *domain.Agent {
	d.mu.Lock()
	defer d.mu.Unlock()

	registered := d.agents.Register(agent)
	slog.Info("agent registered", "agent_id", registered.ID, "max_sessions", registered.MaxSessions,
		"specialties", registered.Specialties)
	if registered.Available() {
		d.processQueueLocked(ctx)
	}
	return agentSnapshot(registered)
}

// SetAgentOnline updates an agent's availability. Going offline triggers
// failover for every active session the agent owns; coming online sweeps the
// waiting queue.
func (d *Dispatcher) SetAgentOnline(ctx context.Context, agentID string, online bool, status domain.AgentStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !domain.ValidAgentStatus(status) {
		return fmt.Errorf("set agent %s status: unknown status %q", agentID, status)
	}
	if err := d.agents.SetStatus(agentID, online, status); err != nil {
		return fmt.Errorf("set agent %s status: %w", agentID, err)
	}
	slog.Info("agent status changed", "agent_id", agentID, "online", online, "status", status)

	if !online {
		d.failoverLocked(ctx, agentID, "agent disconnected")
	} else {
		d.processQueueLocked(ctx)
	}
	return nil
}

// HandleUserMessage processes an inbound end-user message: session lookup or
// creation, history append, auto-reply, and an assignment attempt when the
// session is unassigned. Returns a copy of the session the message landed
// in.
func (d *Dispatcher) HandleUserMessage(ctx context.Context, userID, userName, questionType, content, contentType string) (*domain.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess, created := d.sessions.Create(userID, userName, questionType)
	if created {
		slog.Info("session created", "session_id", sess.ID, "user_id", userID, "question_type", questionType)
		d.mirror.saveSession(ctx, sess)
	}

	msg, err := d.sessions.AppendMessage(sess.ID, &domain.Message{
		SenderID:    userID,
		SenderName:  userName,
		Content:     content,
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	d.mirror.saveMessage(ctx, msg)

	// Deliver to the assigned agent, if any.
	if sess.Status == domain.SessionActive {
		d.notifier.Notify(ctx, sess.AgentID, EventMessage, msg)
	}

	// Auto-reply fires only for end-user senders; agent and system messages
	// never trigger it.
	if d.matcher != nil {
		if response, ok := d.matcher.Match(content); ok {
			reply, appendErr := d.sessions.AppendMessage(sess.ID, &domain.Message{
				SenderID:    SenderSystem,
				SenderName:  systemSenderName,
				Content:     response,
				ContentType: "text",
				IsAutoReply: true,
			})
			if appendErr == nil {
				d.mirror.saveMessage(ctx, reply)
				d.notifier.Notify(ctx, userID, EventMessage, reply)
			}
		}
	}

	if sess.Status == domain.SessionWaiting {
		d.assignLocked(ctx, sess)
	}
	return sessionSnapshot(sess), nil
}

// AgentMessage appends an agent's reply to a session and delivers it to the
// user. Only the assigned agent may post; waiting sessions have no assigned
// agent, so they reject every sender. Auto-reply never fires on this path.
func (d *Dispatcher) AgentMessage(ctx context.Context, agentID, sessionID, content, contentType string) (*domain.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	agent := d.agents.Get(agentID)
	if agent == nil {
		return nil, fmt.Errorf("agent message: %w", domain.ErrAgentNotFound)
	}
	sess := d.sessions.Get(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("agent message: %w", domain.ErrSessionNotFound)
	}
	if sess.Status == domain.SessionClosed {
		return nil, fmt.Errorf("agent message: session %s is closed: %w", sessionID, domain.ErrSessionNotFound)
	}
	if sess.AgentID != agentID {
		return nil, fmt.Errorf("agent message: session %s: %w", sessionID, domain.ErrNotSessionAgent)
	}

	msg, err := d.sessions.AppendMessage(sessionID, &domain.Message{
		SenderID:    agentID,
		SenderName:  agent.DisplayName,
		Content:     content,
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("append agent message: %w", err)
	}
	d.mirror.saveMessage(ctx, msg)
	d.notifier.Notify(ctx, sess.UserID, EventMessage, msg)
	out := *msg
	return &out, nil
}

// HandleTyping relays typing state to the counterpart of the sender. No
// session state changes.
func (d *Dispatcher) HandleTyping(ctx context.Context, senderID, sessionID string, isTyping bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess := d.sessions.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("typing: %w", domain.ErrSessionNotFound)
	}

	info := TypingInfo{SessionID: sessionID, SenderID: senderID, IsTyping: isTyping}
	if senderID == sess.UserID {
		if sess.AgentID != "" {
			d.notifier.Notify(ctx, sess.AgentID, EventTyping, info)
		}
	} else {
		d.notifier.Notify(ctx, sess.UserID, EventTyping, info)
	}
	return nil
}

// CloseSession ends a session. An active close releases exactly one slot on
// the owning agent and re-sweeps the queue; a waiting close also removes the
// session from the queue. Closing twice is a no-op.
func (d *Dispatcher) CloseSession(ctx context.Context, sessionID, closedBy, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked(ctx, sessionID, closedBy, reason)
}

func (d *Dispatcher) closeLocked(ctx context.Context, sessionID, closedBy, reason string) error {
	sess := d.sessions.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("close session: %w", domain.ErrSessionNotFound)
	}
	if sess.Status == domain.SessionClosed {
		slog.Warn("close requested on closed session", "session_id", sessionID)
		return nil
	}

	wasActive := sess.Status == domain.SessionActive
	agentID := sess.AgentID

	if _, err := d.sessions.Close(sessionID, closedBy, reason); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	d.queue.Remove(sessionID)

	if wasActive && agentID != "" {
		if err := d.agents.DecrementLoad(agentID); err != nil {
			slog.Warn("release agent slot on close failed", "agent_id", agentID, "error", err)
		}
	}

	slog.Info("session closed", "session_id", sessionID, "closed_by", closedBy, "reason", reason)
	d.mirror.saveSession(ctx, sess)

	info := ClosedInfo{SessionID: sessionID, ClosedBy: closedBy, Reason: reason}
	d.notifier.Notify(ctx, sess.UserID, EventSessionClosed, info)
	if agentID != "" {
		d.notifier.Notify(ctx, agentID, EventSessionClosed, info)
	}

	// A slot may have opened up.
	if wasActive {
		d.processQueueLocked(ctx)
	}
	return nil
}

// HandleLeave closes the session on behalf of the departing user.
func (d *Dispatcher) HandleLeave(ctx context.Context, userID, sessionID string) error {
	return d.CloseSession(ctx, sessionID, userID, "user left session")
}

// Transfer moves a session to a specific agent. Fails with ErrInvalidTransfer
// when the session is closed, the target is offline or at capacity, or the
// target already owns the session.
func (d *Dispatcher) Transfer(ctx context.Context, sessionID, targetAgentID, by, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sess := d.sessions.Get(sessionID)
	if sess == nil {
		return fmt.Errorf("transfer: %w", domain.ErrSessionNotFound)
	}
	target := d.agents.Get(targetAgentID)
	if target == nil {
		return fmt.Errorf("transfer: %w", domain.ErrAgentNotFound)
	}

	switch {
	case sess.Status == domain.SessionClosed:
		return fmt.Errorf("transfer of closed session %s: %w", sessionID, domain.ErrInvalidTransfer)
	case !target.Online:
		return fmt.Errorf("transfer to offline agent %s: %w", targetAgentID, domain.ErrInvalidTransfer)
	case target.CurrentSessions >= target.MaxSessions:
		return fmt.Errorf("transfer to agent %s at capacity: %w", targetAgentID, domain.ErrInvalidTransfer)
	case sess.AgentID == targetAgentID:
		return fmt.Errorf("transfer to current agent %s: %w", targetAgentID, domain.ErrInvalidTransfer)
	}

	d.reassignLocked(ctx, sess, target, reason)
	slog.Info("session transferred", "session_id", sessionID, "target_agent_id", targetAgentID,
		"by", by, "reason", reason)
	return nil
}

// ProcessQueue broadcasts queue positions and runs one assignment pass over
// the waiting queue, front to back.
func (d *Dispatcher) ProcessQueue(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processQueueLocked(ctx)
}

func (d *Dispatcher) processQueueLocked(ctx context.Context) {
	// Position broadcast happens before the assignment pass so every waiting
	// user hears a fresh estimate even if nobody is assigned this round.
	for _, id := range d.queue.Entries() {
		sess := d.sessions.Get(id)
		if sess == nil || sess.Status != domain.SessionWaiting {
			// Stale entry; queue invariant says this should not happen.
			d.queue.Remove(id)
			continue
		}
		d.notifyPositionLocked(ctx, sess)
	}

	for _, id := range d.queue.Entries() {
		sess := d.sessions.Get(id)
		if sess == nil || sess.Status != domain.SessionWaiting {
			continue
		}
		d.assignLocked(ctx, sess)
	}
}

// assignLocked implements the assignment algorithm: find the best available
// agent; on success mark the session active, move the load counter and drop
// the queue entry; otherwise leave the session queued.
func (d *Dispatcher) assignLocked(ctx context.Context, sess *domain.Session) bool {
	agent := d.agents.FindAvailable(sess.QuestionType)
	if agent == nil {
		if d.queue.Enqueue(sess.ID) {
			slog.Info("session queued", "session_id", sess.ID, "position", d.queue.Position(sess.ID))
			d.notifier.Notify(ctx, sess.UserID, EventSessionWaiting, QueuePositionInfo{
				SessionID:            sess.ID,
				Position:             d.queue.Position(sess.ID),
				EstimatedWaitMinutes: d.estimateWait(d.queue.Position(sess.ID)),
			})
		}
		return false
	}

	now := time.Now()
	sess.AgentID = agent.ID
	sess.AgentName = agent.DisplayName
	sess.Status = domain.SessionActive
	sess.AssignedAt = &now
	if err := d.agents.IncrementLoad(agent.ID); err != nil {
		slog.Warn("agent load increment failed", "agent_id", agent.ID, "error", err)
	}
	d.queue.Remove(sess.ID)

	slog.Info("session assigned", "session_id", sess.ID, "agent_id", agent.ID, "agent_load", agent.CurrentSessions)
	d.mirror.saveSession(ctx, sess)

	info := sessionInfo(sess)
	d.notifier.Notify(ctx, sess.UserID, EventSessionAssigned, info)
	d.notifier.Notify(ctx, agent.ID, EventSessionAssigned, info)
	return true
}

// reassignLocked moves an open session onto target, releasing the previous
// agent's slot and recording a system message in the history.
func (d *Dispatcher) reassignLocked(ctx context.Context, sess *domain.Session, target *domain.Agent, reason string) {
	previousAgent := sess.AgentID
	if sess.Status == domain.SessionActive && previousAgent != "" {
		if err := d.agents.DecrementLoad(previousAgent); err != nil {
			slog.Warn("release previous agent slot failed", "agent_id", previousAgent, "error", err)
		}
	}

	now := time.Now()
	sess.AgentID = target.ID
	sess.AgentName = target.DisplayName
	sess.Status = domain.SessionActive
	sess.AssignedAt = &now
	if err := d.agents.IncrementLoad(target.ID); err != nil {
		slog.Warn("agent load increment failed", "agent_id", target.ID, "error", err)
	}
	d.queue.Remove(sess.ID)

	note := fmt.Sprintf("Session transferred to %s: %s", target.DisplayName, reason)
	if msg, err := d.sessions.AppendMessage(sess.ID, &domain.Message{
		SenderID:    SenderSystem,
		SenderName:  systemSenderName,
		Content:     note,
		ContentType: "text",
		IsSystem:    true,
	}); err == nil {
		d.mirror.saveMessage(ctx, msg)
	}
	d.mirror.saveSession(ctx, sess)

	info := TransferInfo{SessionID: sess.ID, AgentID: target.ID, AgentName: target.DisplayName, Reason: reason}
	d.notifier.Notify(ctx, sess.UserID, EventSessionTransferred, info)
	d.notifier.Notify(ctx, target.ID, EventSessionTransferred, info)
	if previousAgent != "" && previousAgent != target.ID {
		d.notifier.Notify(ctx, previousAgent, EventSessionTransferred, info)
	}
}

// failoverLocked re-homes every active session of a departed agent. Sessions
// with no qualified replacement demote back to waiting and join the queue
// tail; this is the one legitimate active -> waiting transition.
func (d *Dispatcher) failoverLocked(ctx context.Context, agentID, reason string) {
	owned := d.sessions.ActiveByAgent(agentID)
	if len(owned) == 0 {
		return
	}
	slog.Info("failover started", "agent_id", agentID, "sessions", len(owned))

	for _, sess := range owned {
		replacement := d.agents.FindAvailable(sess.QuestionType, agentID)
		if replacement != nil {
			d.reassignLocked(ctx, sess, replacement, reason)
			continue
		}

		if err := d.agents.DecrementLoad(agentID); err != nil {
			slog.Warn("release departed agent slot failed", "agent_id", agentID, "error", err)
		}
		sess.Status = domain.SessionWaiting
		sess.AgentID = ""
		sess.AgentName = ""
		sess.AssignedAt = nil
		d.queue.Enqueue(sess.ID)

		note := fmt.Sprintf("Your agent disconnected (%s). You have been placed back in the queue.", reason)
		if msg, err := d.sessions.AppendMessage(sess.ID, &domain.Message{
			SenderID:    SenderSystem,
			SenderName:  systemSenderName,
			Content:     note,
			ContentType: "text",
			IsSystem:    true,
		}); err == nil {
			d.mirror.saveMessage(ctx, msg)
		}
		d.mirror.saveSession(ctx, sess)

		slog.Info("session requeued after failover", "session_id", sess.ID, "position", d.queue.Position(sess.ID))
		d.notifyPositionLocked(ctx, sess)
	}
}

func (d *Dispatcher) notifyPositionLocked(ctx context.Context, sess *domain.Session) {
	position := d.queue.Position(sess.ID)
	if position == 0 {
		return
	}
	d.notifier.Notify(ctx, sess.UserID, EventQueuePosition, QueuePositionInfo{
		SessionID:            sess.ID,
		Position:             position,
		EstimatedWaitMinutes: d.estimateWait(position),
	})
}

func (d *Dispatcher) estimateWait(position int) int {
	return position * int(d.waitPerSlot/time.Minute)
}

// EvictClosedBefore flushes closed sessions older than the cutoff to the
// mirror and drops them from memory. Returns the number evicted.
func (d *Dispatcher) EvictClosedBefore(ctx context.Context, cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	closed := d.sessions.ClosedBefore(cutoff)
	for _, sess := range closed {
		d.mirror.saveSession(ctx, sess)
		d.sessions.Delete(sess.ID)
	}
	if len(closed) > 0 {
		slog.Info("closed sessions evicted from memory", "count", len(closed))
	}
	return len(closed)
}

// sessionSnapshot copies a session so callers can read and marshal it after
// the dispatcher lock is released. The Messages slice header is copied; the
// messages themselves are append-only and never mutated once created.
func sessionSnapshot(sess *domain.Session) *domain.Session {
	if sess == nil {
		return nil
	}
	out := *sess
	out.Messages = slices.Clone(sess.Messages)
	return &out
}

func agentSnapshot(agent *domain.Agent) *domain.Agent {
	if agent == nil {
		return nil
	}
	out := *agent
	out.Specialties = slices.Clone(agent.Specialties)
	return &out
}

// Session returns a copy of the session with the given ID, or nil.
func (d *Dispatcher) Session(sessionID string) *domain.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sessionSnapshot(d.sessions.Get(sessionID))
}

// UserActiveSession returns a copy of the user's open session, or nil.
func (d *Dispatcher) UserActiveSession(userID string) *domain.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sessionSnapshot(d.sessions.UserActiveSession(userID))
}

// SessionMessages returns a session's history in insertion order.
func (d *Dispatcher) SessionMessages(sessionID string) ([]*domain.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs, err := d.sessions.Messages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Agents returns copies of all registered agents in registration order.
func (d *Dispatcher) Agents() []*domain.Agent {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := d.agents.List()
	out := make([]*domain.Agent, len(live))
	for i, agent := range live {
		out[i] = agentSnapshot(agent)
	}
	return out
}

// Agent returns a copy of the agent with the given ID, or nil.
func (d *Dispatcher) Agent(agentID string) *domain.Agent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return agentSnapshot(d.agents.Get(agentID))
}

// QueueSnapshot returns the waiting queue front to back with positions and
// wait estimates.
func (d *Dispatcher) QueueSnapshot() []QueuePositionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.queue.Entries()
	out := make([]QueuePositionInfo, 0, len(entries))
	for i, id := range entries {
		out = append(out, QueuePositionInfo{
			SessionID:            id,
			Position:             i + 1,
			EstimatedWaitMinutes: d.estimateWait(i + 1),
		})
	}
	return out
}
