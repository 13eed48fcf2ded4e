package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// StartQueueWorker runs a background goroutine that periodically sweeps the
// waiting queue. State changes already trigger sweeps inline; the ticker is
// the safety net that re-broadcasts positions and catches entries skipped
// during a concurrent pass.
func StartQueueWorker(ctx context.Context, d *Dispatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("queue worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				d.ProcessQueue(ctx)
			case <-ctx.Done():
				slog.Info("queue worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// StartRetentionWorker runs a background goroutine that flushes closed
// sessions older than ttl to the mirror store and evicts them from memory,
// keeping the live table bounded under sustained load.
func StartRetentionWorker(ctx context.Context, d *Dispatcher, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("retention worker started", "ttl", ttl, "interval", interval)

		for {
			select {
			case <-ticker.C:
				d.EvictClosedBefore(ctx, time.Now().Add(-ttl))
			case <-ctx.Done():
				slog.Info("retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
