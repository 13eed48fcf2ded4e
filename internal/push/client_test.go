package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestClient_SendPostsNotification(t *testing.T) {
	var mu sync.Mutex
	var received []Notification

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Errorf("decode notification: %v", err)
		}
		mu.Lock()
		received = append(received, n)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, []string{"app", "sms"}, 4)
	c.Send(context.Background(), Notification{
		UserID:  "u1",
		Title:   "New support message",
		Content: "You have a new message.",
		Type:    "customer_service",
		Data:    Data{SessionID: "s1"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for push delivery")
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	got := received[0]
	if got.UserID != "u1" || got.Type != "customer_service" || got.Data.SessionID != "s1" {
		t.Errorf("Unexpected notification %+v", got)
	}
	if len(got.Channels) != 2 {
		t.Errorf("Expected default channels applied, got %v", got.Channels)
	}
}

func TestClient_DisabledIsNoOp(t *testing.T) {
	c := New("", nil, 4)
	// Must not panic or block.
	c.Send(context.Background(), Notification{UserID: "u1"})
}

func TestClient_ServerErrorSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, nil, 4)
	// Failure is logged, never surfaced.
	c.Send(context.Background(), Notification{UserID: "u1"})
	time.Sleep(50 * time.Millisecond)
}
