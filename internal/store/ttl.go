package store

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback is called after a sweep removed sessions.
type CleanupCallback func(removed int64)

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle for longer than ttl. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, s SessionStore, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpired(ctx, s, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(ctx context.Context, s SessionStore, ttl time.Duration, onCleanup CleanupCallback) {
	removed, err := s.CleanupExpired(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("TTL worker: context canceled during cleanup", "error", err)
			return
		}
		slog.Error("TTL worker failed to cleanup expired sessions", "error", err)
		return
	}
	if removed == 0 {
		return
	}

	slog.Info("TTL worker cleaned up expired sessions", "count", removed)
	if onCleanup != nil {
		onCleanup(removed)
	}
}
