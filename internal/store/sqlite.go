package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wedraw/support/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL,
		question_type TEXT NOT NULL,
		status TEXT NOT NULL,
		agent_id TEXT,
		agent_name TEXT,
		created_at INTEGER NOT NULL,
		assigned_at INTEGER,
		closed_at INTEGER,
		closed_by TEXT,
		close_reason TEXT,
		last_message_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_closed ON sessions(closed_at) WHERE status = 'closed';

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		content TEXT NOT NULL,
		content_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		read INTEGER DEFAULT 0,
		is_auto_reply INTEGER DEFAULT 0,
		is_system INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

	CREATE TABLE IF NOT EXISTS auto_reply_rules (
		keyword TEXT PRIMARY KEY,
		response TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveSession creates or updates a session record.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (session_id, user_id, user_name, question_type, status,
		agent_id, agent_name, created_at, assigned_at, closed_at, closed_by,
		close_reason, last_message_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		status = excluded.status,
		agent_id = excluded.agent_id,
		agent_name = excluded.agent_name,
		assigned_at = excluded.assigned_at,
		closed_at = excluded.closed_at,
		closed_by = excluded.closed_by,
		close_reason = excluded.close_reason,
		last_message_at = excluded.last_message_at`

	var agentID, agentName, closedBy, closeReason interface{}
	if sess.AgentID != "" {
		agentID = sess.AgentID
		agentName = sess.AgentName
	}
	if sess.ClosedBy != "" {
		closedBy = sess.ClosedBy
	}
	if sess.CloseReason != "" {
		closeReason = sess.CloseReason
	}

	var assignedAt, closedAt interface{}
	if sess.AssignedAt != nil {
		assignedAt = sess.AssignedAt.Unix()
	}
	if sess.ClosedAt != nil {
		closedAt = sess.ClosedAt.Unix()
	}

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			sess.ID, sess.UserID, sess.UserName, sess.QuestionType, string(sess.Status),
			agentID, agentName, sess.CreatedAt.Unix(), assignedAt, closedAt,
			closedBy, closeReason, sess.LastMessageAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveMessage inserts a message record, upserting on replay.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (message_id, session_id, sender_id, sender_name,
		content, content_type, timestamp, read, is_auto_reply, is_system)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(message_id) DO UPDATE SET
		read = excluded.read`

	err := withBusyRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			msg.ID, msg.SessionID, msg.SenderID, msg.SenderName,
			msg.Content, msg.ContentType, msg.Timestamp.Unix(),
			msg.Read, msg.IsAutoReply, msg.IsSystem,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// GetSession retrieves a mirrored session, or nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_id, user_name, question_type, status,
		       agent_id, agent_name, created_at, assigned_at, closed_at,
		       closed_by, close_reason, last_message_at
		FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var status string
	var agentID, agentName, closedBy, closeReason sql.NullString
	var createdAt, lastMessageAt int64
	var assignedAt, closedAt sql.NullInt64

	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.UserName, &sess.QuestionType, &status,
		&agentID, &agentName, &createdAt, &assignedAt, &closedAt,
		&closedBy, &closeReason, &lastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	sess.AgentID = agentID.String
	sess.AgentName = agentName.String
	sess.ClosedBy = closedBy.String
	sess.CloseReason = closeReason.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.LastMessageAt = time.Unix(lastMessageAt, 0)
	if assignedAt.Valid {
		ts := time.Unix(assignedAt.Int64, 0)
		sess.AssignedAt = &ts
	}
	if closedAt.Valid {
		ts := time.Unix(closedAt.Int64, 0)
		sess.ClosedAt = &ts
	}
	return &sess, nil
}

// ListSessions returns mirrored sessions, newest first, optionally filtered
// by status.
func (s *SQLiteStore) ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	query := `
		SELECT session_id, user_id, user_name, question_type, status,
		       agent_id, agent_name, created_at, assigned_at, closed_at,
		       closed_by, close_reason, last_message_at
		FROM sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, session_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages returns a session's mirrored messages in timestamp order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	query := `
		SELECT message_id, session_id, sender_id, sender_name, content,
		       content_type, timestamp, read, is_auto_reply, is_system
		FROM messages WHERE session_id = ? ORDER BY timestamp, message_id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var ts int64
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.SenderID, &msg.SenderName, &msg.Content,
			&msg.ContentType, &ts, &msg.Read, &msg.IsAutoReply, &msg.IsSystem,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Timestamp = time.Unix(ts, 0)
		msgs = append(msgs, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// ListAutoReplyRules returns all configured auto-reply rules, highest
// priority first.
func (s *SQLiteStore) ListAutoReplyRules(ctx context.Context) ([]domain.AutoReplyRule, error) {
	query := `SELECT keyword, response, priority FROM auto_reply_rules ORDER BY priority DESC, keyword`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query auto-reply rules: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close rule rows", "error", closeErr)
		}
	}()

	var rules []domain.AutoReplyRule
	for rows.Next() {
		var rule domain.AutoReplyRule
		if err := rows.Scan(&rule.Keyword, &rule.Response, &rule.Priority); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// SeedAutoReplyRules inserts rules that are not already present. Existing
// keywords keep their configured response and priority.
func (s *SQLiteStore) SeedAutoReplyRules(ctx context.Context, rules []domain.AutoReplyRule) error {
	query := `INSERT OR IGNORE INTO auto_reply_rules (keyword, response, priority) VALUES (?, ?, ?)`
	for _, rule := range rules {
		if _, err := s.db.ExecContext(ctx, query, rule.Keyword, rule.Response, rule.Priority); err != nil {
			return fmt.Errorf("seed auto-reply rule %q: %w", rule.Keyword, err)
		}
	}
	return nil
}

// DeleteClosedBefore removes mirrored sessions closed before the cutoff and
// their message history.
func (s *SQLiteStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	threshold := cutoff.Unix()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN
			(SELECT session_id FROM sessions WHERE status = 'closed' AND closed_at < ?)`,
		threshold); err != nil {
		return 0, fmt.Errorf("delete closed session messages: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = 'closed' AND closed_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete closed sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
