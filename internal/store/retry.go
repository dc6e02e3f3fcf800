package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// IsBusyError reports whether err is a SQLite lock contention error
// (SQLITE_BUSY or "database is locked") that is worth retrying.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

const (
	busyRetries   = 3
	busyBaseDelay = 50 * time.Millisecond
)

// withBusyRetry runs op, retrying lock contention with exponential backoff
// (50ms, 100ms).
func withBusyRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		if err = op(); err == nil || !IsBusyError(err) {
			return err
		}
		if i == busyRetries-1 {
			break
		}

		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("Database busy, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
