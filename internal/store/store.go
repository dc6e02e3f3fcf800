// Package store provides session persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/aicare/internal/domain"
)

// SessionStore persists dialogue sessions keyed by user ID.
type SessionStore interface {
	// Get returns the session for userID, or (nil, nil) when none exists.
	Get(ctx context.Context, userID string) (*domain.Session, error)

	// Put creates or replaces a session.
	Put(ctx context.Context, session *domain.Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, userID string) error

	// CleanupExpired removes sessions idle for longer than ttl and returns
	// how many were removed.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}
