package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/wedraw/support/internal/domain"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMirrorInflight = 16
	mirrorWriteTimeout    = 5 * time.Second
)

// asyncMirror wraps a Mirror with bounded-concurrency, fire-and-forget
// semantics. Writes never block the dispatcher's critical section; when the
// inflight budget is exhausted the write is dropped with a warning instead
// of queueing unboundedly. The in-memory state is authoritative either way.
type asyncMirror struct {
	mirror Mirror
	sem    *semaphore.Weighted
}

func newAsyncMirror(mirror Mirror, maxInflight int64) *asyncMirror {
	if maxInflight <= 0 {
		maxInflight = defaultMirrorInflight
	}
	return &asyncMirror{
		mirror: mirror,
		sem:    semaphore.NewWeighted(maxInflight),
	}
}

func (m *asyncMirror) saveSession(_ context.Context, sess *domain.Session) {
	if m.mirror == nil {
		return
	}
	snapshot := *sess
	snapshot.Messages = nil
	m.run("session", snapshot.ID, func(ctx context.Context) error {
		return m.mirror.SaveSession(ctx, &snapshot)
	})
}

func (m *asyncMirror) saveMessage(_ context.Context, msg *domain.Message) {
	if m.mirror == nil {
		return
	}
	snapshot := *msg
	m.run("message", snapshot.ID, func(ctx context.Context) error {
		return m.mirror.SaveMessage(ctx, &snapshot)
	})
}

func (m *asyncMirror) run(kind, id string, write func(context.Context) error) {
	if !m.sem.TryAcquire(1) {
		slog.Warn("mirror write dropped, inflight budget exhausted", "kind", kind, "id", id)
		return
	}
	go func() {
		defer m.sem.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			slog.Warn("mirror write failed", "kind", kind, "id", id, "error", err)
		}
	}()
}
