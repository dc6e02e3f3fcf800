package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnRegistry tracks the open dialogue sockets of each user, one per tab.
// Dialogue restarts and resets are published to every open socket of the
// user so stale views do not keep talking to a discarded session.
type ConnRegistry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*websocket.Conn // user -> tab -> socket
	logger *slog.Logger
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry(logger *slog.Logger) *ConnRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnRegistry{
		byUser: make(map[string]map[string]*websocket.Conn),
		logger: logger,
	}
}

// Add records conn as the socket of a user's tab. A socket already open for
// the same tab is closed.
func (c *ConnRegistry) Add(userID, tabID string, conn *websocket.Conn) {
	c.mu.Lock()
	tabs := c.byUser[userID]
	if tabs == nil {
		tabs = make(map[string]*websocket.Conn)
		c.byUser[userID] = tabs
	}
	old := tabs[tabID]
	tabs[tabID] = conn
	open := len(tabs)
	c.mu.Unlock()

	if old != nil && old != conn {
		_ = old.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
	c.logger.Debug("Dialogue socket added", "user_id", userID, "tab_id", tabID, "open_tabs", open)
}

// Remove forgets conn unless a newer socket already took its tab.
func (c *ConnRegistry) Remove(userID, tabID string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tabs := c.byUser[userID]
	if tabs[tabID] != conn {
		return
	}
	delete(tabs, tabID)
	if len(tabs) == 0 {
		delete(c.byUser, userID)
	}
}

// Publish writes v as a JSON frame to every socket of userID except skip
// and returns how many sockets received it. Failed writes are logged and
// skipped; the socket's own read loop notices the broken connection.
func (c *ConnRegistry) Publish(ctx context.Context, userID string, skip *websocket.Conn, v any) int {
	c.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(c.byUser[userID]))
	for _, conn := range c.byUser[userID] {
		if conn != skip {
			targets = append(targets, conn)
		}
	}
	c.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode socket frame", "user_id", userID, "error", err)
		return 0
	}

	sent := 0
	for _, conn := range targets {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err := conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			c.logger.Debug("Socket publish failed", "user_id", userID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes every socket and returns how many were open.
func (c *ConnRegistry) CloseAll() int {
	c.mu.Lock()
	all := c.byUser
	c.byUser = make(map[string]map[string]*websocket.Conn)
	c.mu.Unlock()

	n := 0
	for _, tabs := range all {
		for _, conn := range tabs {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			n++
		}
	}
	return n
}
