package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/wedraw/support/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func TestSQLiteStore_SaveAndGetSession(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	assigned := now.Add(time.Minute)
	sess := &domain.Session{
		ID:            "s1",
		UserID:        "u1",
		UserName:      "User One",
		QuestionType:  "billing",
		Status:        domain.SessionActive,
		AgentID:       "a1",
		AgentName:     "Agent One",
		CreatedAt:     now,
		AssignedAt:    &assigned,
		LastMessageAt: now,
	}

	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.Status != domain.SessionActive || got.AgentID != "a1" {
		t.Errorf("Unexpected session %+v", got)
	}
	if got.AssignedAt == nil || !got.AssignedAt.Equal(assigned) {
		t.Errorf("Expected AssignedAt %v, got %v", assigned, got.AssignedAt)
	}

	// Upsert moves the session to closed.
	closedAt := now.Add(2 * time.Minute)
	sess.Status = domain.SessionClosed
	sess.ClosedAt = &closedAt
	sess.ClosedBy = "u1"
	sess.CloseReason = "solved"
	if err := repo.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession upsert: %v", err)
	}

	got, err = repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != domain.SessionClosed || got.ClosedBy != "u1" {
		t.Errorf("Expected closed session, got %+v", got)
	}
}

func TestSQLiteStore_GetSessionMissing(t *testing.T) {
	repo := newTestStore(t)
	got, err := repo.GetSession(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing session, got %+v", got)
	}
}

func TestSQLiteStore_ListSessionsByStatus(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	closedAt := now.Add(time.Minute)
	for _, s := range []*domain.Session{
		{ID: "s1", UserID: "u1", UserName: "User One", QuestionType: "billing",
			Status: domain.SessionWaiting, CreatedAt: now, LastMessageAt: now},
		{ID: "s2", UserID: "u2", UserName: "User Two", QuestionType: "billing",
			Status: domain.SessionClosed, CreatedAt: now.Add(time.Second),
			ClosedAt: &closedAt, ClosedBy: "u2", LastMessageAt: now},
	} {
		if err := repo.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	all, err := repo.ListSessions(ctx, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(all))
	}
	if all[0].ID != "s2" {
		t.Errorf("Expected newest session first, got %s", all[0].ID)
	}

	closed, err := repo.ListSessions(ctx, domain.SessionClosed)
	if err != nil {
		t.Fatalf("ListSessions closed: %v", err)
	}
	if len(closed) != 1 || closed[0].ID != "s2" {
		t.Errorf("Expected only s2 closed, got %v", closed)
	}
}

func TestSQLiteStore_MessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	base := time.Now().Truncate(time.Second)
	for i, content := range []string{"one", "two", "three"} {
		msg := &domain.Message{
			ID:          "m" + strconv.Itoa(i+1),
			SessionID:   "s1",
			SenderID:    "u1",
			SenderName:  "User One",
			Content:     content,
			ContentType: "text",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	msgs, err := repo.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	want := []string{"one", "two", "three"}
	for i, c := range want {
		if msgs[i].Content != c {
			t.Errorf("Expected msgs[%d]=%q, got %q", i, c, msgs[i].Content)
		}
	}
}

func TestSQLiteStore_SaveMessageReplayTolerated(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	msg := &domain.Message{
		ID: "m1", SessionID: "s1", SenderID: "u1", SenderName: "User One",
		Content: "hi", ContentType: "text", Timestamp: time.Now(),
	}
	if err := repo.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	msg.Read = true
	if err := repo.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("SaveMessage replay: %v", err)
	}

	msgs, err := repo.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message after replay, got %d", len(msgs))
	}
	if !msgs[0].Read {
		t.Error("Expected read flag updated on replay")
	}
}

func TestSQLiteStore_AutoReplyRules(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	seed := []domain.AutoReplyRule{
		{Keyword: "refund", Response: "refund info", Priority: 100},
		{Keyword: "shipping", Response: "shipping info", Priority: 50},
	}
	if err := repo.SeedAutoReplyRules(ctx, seed); err != nil {
		t.Fatalf("SeedAutoReplyRules: %v", err)
	}

	// Re-seeding must not overwrite tuned rules.
	if err := repo.SeedAutoReplyRules(ctx, []domain.AutoReplyRule{
		{Keyword: "refund", Response: "changed", Priority: 1},
	}); err != nil {
		t.Fatalf("SeedAutoReplyRules again: %v", err)
	}

	rules, err := repo.ListAutoReplyRules(ctx)
	if err != nil {
		t.Fatalf("ListAutoReplyRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}
	if rules[0].Keyword != "refund" || rules[0].Response != "refund info" {
		t.Errorf("Expected original refund rule first, got %+v", rules[0])
	}
}

func TestSQLiteStore_DeleteClosedBefore(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()
	for _, s := range []*domain.Session{
		{ID: "old", UserID: "u1", UserName: "User One", QuestionType: "billing",
			Status: domain.SessionClosed, CreatedAt: old, ClosedAt: &old, LastMessageAt: old},
		{ID: "recent", UserID: "u2", UserName: "User Two", QuestionType: "billing",
			Status: domain.SessionClosed, CreatedAt: recent, ClosedAt: &recent, LastMessageAt: recent},
	} {
		if err := repo.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}
	if err := repo.SaveMessage(ctx, &domain.Message{
		ID: "m1", SessionID: "old", SenderID: "u1", SenderName: "User One",
		Content: "hi", ContentType: "text", Timestamp: old,
	}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	deleted, err := repo.DeleteClosedBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteClosedBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 session deleted, got %d", deleted)
	}

	if got, _ := repo.GetSession(ctx, "old"); got != nil {
		t.Error("Expected old session deleted")
	}
	if got, _ := repo.GetSession(ctx, "recent"); got == nil {
		t.Error("Expected recent session retained")
	}
	if msgs, _ := repo.ListMessages(ctx, "old"); len(msgs) != 0 {
		t.Errorf("Expected old session messages deleted, got %d", len(msgs))
	}
}
