package store

import (
	"context"
	"strings"
	"time"
)

const (
	busyRetries = 3
	busyBackoff = 50 * time.Millisecond
)

// isBusyError reports whether err is a SQLite concurrency error (SQLITE_BUSY
// or "database is locked"). modernc.org/sqlite surfaces both as plain error
// strings, so this is a substring check.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs fn, retrying a few times with a short backoff when the
// database is locked by another writer. Any other error returns immediately.
func withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = fn(); !isBusyError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyBackoff):
		}
	}
	return err
}
