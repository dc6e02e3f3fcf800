package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/aicare/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to avoid SQLITE_BUSY
}

// NewSQLite opens (and creates if needed) a SQLite session store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS dialogue_sessions (
		user_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		state TEXT NOT NULL,
		backend TEXT NOT NULL,
		slots_json TEXT NOT NULL,
		transcript_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dialogue_sessions_updated ON dialogue_sessions(updated_at);
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

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads the session for userID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	query := `
		SELECT user_id, session_id, state, backend, slots_json, transcript_json, created_at, updated_at
		FROM dialogue_sessions WHERE user_id = ?`

	var (
		sess                 domain.Session
		state, backend       string
		slotsJSON, transJSON string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&sess.UserID, &sess.ID, &state, &backend, &slotsJSON, &transJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(slotsJSON), &sess.Slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	if err := json.Unmarshal([]byte(transJSON), &sess.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	sess.State = domain.State(state)
	sess.Backend = domain.BackendChoice(backend)
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	return &sess, nil
}

// Put upserts a session.
func (s *SQLiteStore) Put(ctx context.Context, sess *domain.Session) error {
	slotsJSON, err := json.Marshal(sess.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	transcript := sess.Transcript
	if transcript == nil {
		transcript = []domain.Message{}
	}
	transJSON, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	query := `
	INSERT INTO dialogue_sessions (user_id, session_id, state, backend, slots_json, transcript_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		session_id = excluded.session_id,
		state = excluded.state,
		backend = excluded.backend,
		slots_json = excluded.slots_json,
		transcript_json = excluded.transcript_json,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withBusyRetry(ctx, "put session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.UserID, sess.ID, string(sess.State), string(sess.Backend),
			string(slotsJSON), string(transJSON),
			sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// Delete removes the session for userID.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return withBusyRetry(ctx, "delete session", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM dialogue_sessions WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// CleanupExpired removes sessions not updated within ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).UnixMilli()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var n int64
	err := withBusyRetry(ctx, "cleanup sessions", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM dialogue_sessions WHERE updated_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup expired sessions: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
