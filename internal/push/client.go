// Package push delivers fallback notifications to an external push service.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxInflight = 32
	requestTimeout     = 10 * time.Second
)

// Data carries the session reference of a push notification.
type Data struct {
	SessionID string `json:"sessionId"`
}

// Notification is the payload posted to the push service.
type Notification struct {
	UserID   string   `json:"userId"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Type     string   `json:"type"`
	Data     Data     `json:"data"`
	Channels []string `json:"channels,omitempty"`
}

// Client posts notifications to an external push service. Delivery is
// fire-and-forget with a bounded inflight budget: there are no retries, and
// failures are logged and swallowed (the session history is the durable
// record either way).
type Client struct {
	url      string
	channels []string
	http     *http.Client
	sem      *semaphore.Weighted
}

// New creates a push client. An empty url disables delivery; Send becomes a
// logged no-op.
func New(url string, channels []string, maxInflight int64) *Client {
	if maxInflight <= 0 {
		maxInflight = defaultMaxInflight
	}
	return &Client{
		url:      url,
		channels: channels,
		http:     &http.Client{Timeout: requestTimeout},
		sem:      semaphore.NewWeighted(maxInflight),
	}
}

// Send queues a notification for delivery without blocking the caller. When
// the inflight budget is exhausted the notification is dropped with a
// warning rather than queueing unboundedly.
func (c *Client) Send(_ context.Context, n Notification) {
	if c.url == "" {
		slog.Debug("push disabled, notification dropped", "user_id", n.UserID, "type", n.Type)
		return
	}
	if len(n.Channels) == 0 {
		n.Channels = c.channels
	}
	if !c.sem.TryAcquire(1) {
		slog.Warn("push inflight budget exhausted, notification dropped", "user_id", n.UserID)
		return
	}
	go func() {
		defer c.sem.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := c.post(ctx, n); err != nil {
			slog.Warn("push delivery failed", "user_id", n.UserID, "error", err)
		}
	}()
}

func (c *Client) post(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close push response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
