// Package store provides the persistence side-channel for the support
// router. The in-memory dispatcher state is authoritative; this mirror
// exists for history queries and post-eviction retention.
package store

import (
	"context"
	"time"

	"github.com/wedraw/support/internal/domain"
)

// Repository defines the interface for mirroring sessions and messages.
type Repository interface {
	// SaveSession creates or updates a session record.
	SaveSession(ctx context.Context, sess *domain.Session) error

	// SaveMessage inserts a message record. Duplicate IDs are upserts so the
	// mirror tolerates replays.
	SaveMessage(ctx context.Context, msg *domain.Message) error

	// GetSession retrieves a mirrored session, or nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions returns mirrored sessions, newest first, optionally
	// filtered by status. An empty status returns everything.
	ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error)

	// ListMessages returns a session's mirrored messages in timestamp order.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// ListAutoReplyRules returns all configured auto-reply rules.
	ListAutoReplyRules(ctx context.Context) ([]domain.AutoReplyRule, error)

	// SeedAutoReplyRules inserts rules that are not already present.
	SeedAutoReplyRules(ctx context.Context, rules []domain.AutoReplyRule) error

	// DeleteClosedBefore removes mirrored sessions (and their messages)
	// closed before the cutoff.
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
