package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/wedraw/support/internal/dispatch"
)

func TestHub_Register(t *testing.T) {
	h := NewHub(nil)
	conn := &websocket.Conn{}

	h.Register("u1", RoleUser, conn)

	if !h.IsConnected("u1") {
		t.Error("Expected u1 connected after Register")
	}
	if got := h.Role("u1"); got != RoleUser {
		t.Errorf("Expected role user, got %q", got)
	}
}

func TestHub_Unregister(t *testing.T) {
	h := NewHub(nil)
	conn := &websocket.Conn{}

	h.Register("u1", RoleUser, conn)
	h.Unregister("u1", conn)

	if h.IsConnected("u1") {
		t.Error("Expected u1 disconnected after Unregister")
	}
}

// newServerConn dials a throwaway server and returns the accepted
// server-side connection. The client side keeps reading so close handshakes
// complete promptly.
func newServerConn(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	clientConn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = clientConn.CloseNow() })
	go func() {
		for {
			if _, _, err := clientConn.Read(context.Background()); err != nil {
				return
			}
		}
	}()
	return <-accepted
}

func TestHub_UnregisterStale(t *testing.T) {
	h := NewHub(nil)
	old := newServerConn(t)
	current := newServerConn(t)

	h.Register("u1", RoleUser, old)
	h.Register("u1", RoleUser, current)

	// The replaced connection's teardown must not evict its successor.
	h.Unregister("u1", old)

	if !h.IsConnected("u1") {
		t.Error("Expected replacement connection to stay registered")
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := NewHub(nil)

	go func() {
		for i := 0; i < 1000; i++ {
			h.Register("user-"+strconv.Itoa(i), RoleUser, &websocket.Conn{})
		}
	}()

	go func() {
		for i := 0; i < 1000; i++ {
			h.IsConnected("user-" + strconv.Itoa(i))
		}
	}()

	time.Sleep(100 * time.Millisecond)
}

func TestHub_NotifyPreservesOrder(t *testing.T) {
	h := NewHub(nil)
	registered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		h.Register("u1", RoleUser, conn)
		close(registered)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	<-registered

	const n = 20
	for i := 0; i < n; i++ {
		h.Notify(context.Background(), "u1", dispatch.EventQueuePosition,
			dispatch.QueuePositionInfo{SessionID: "s1", Position: i + 1})
	}

	// A single writer per connection drains the queue in emission order.
	for i := 0; i < n; i++ {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read frame %d: %v", i, err)
		}
		var out struct {
			Data dispatch.QueuePositionInfo `json:"data"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("Unmarshal frame %d: %v", i, err)
		}
		if out.Data.Position != i+1 {
			t.Fatalf("Expected frame %d with position %d, got %d", i, i+1, out.Data.Position)
		}
	}
}

func TestSessionIDOf(t *testing.T) {
	data := dispatch.QueuePositionInfo{SessionID: "s1", Position: 2}
	if got := sessionIDOf(data); got != "s1" {
		t.Errorf("Expected s1, got %q", got)
	}
	if got := sessionIDOf("not a struct"); got != "" {
		t.Errorf("Expected empty session id for scalar payload, got %q", got)
	}
}
