package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/aicare/internal/dialogue"
	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/identity"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is an inbound frame. Frames that are not JSON are treated as
// message text.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Backend string `json:"backend,omitempty"`
}

// Outbound frame types. Restart and reset frames are also pushed to the
// user's other open sockets.
const (
	frameReply   = "reply"
	frameRestart = "restart"
	frameReset   = "reset"
)

// wsReply is an outbound reply frame.
type wsReply struct {
	Type string `json:"type"`
	dialogue.Reply
}

// ServeWebSocket handles GET /ws/dialogue.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.logger.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.Add(userID, sessionID, ws)
	defer h.conns.Remove(userID, sessionID, ws)

	h.readLoop(r.Context(), ws, userID)
	h.logger.Info("Dialogue socket ended", "user_id", userID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed", "user_id", userID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			msg = wsMessage{Type: "message", Content: string(data)}
		}

		if err := h.dispatch(ctx, ws, userID, msg); err != nil {
			h.logger.Debug("WebSocket write failed", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, ws *websocket.Conn, userID string, msg wsMessage) error {
	switch msg.Type {
	case "message":
		if strings.TrimSpace(msg.Content) == "" {
			return h.writeError(ctx, ws, "text is required")
		}
		if !h.allow(userID) {
			return h.writeError(ctx, ws, "rate limit exceeded")
		}
		reply, err := h.conv.HandleMessage(ctx, userID, msg.Content)
		if err != nil {
			h.logger.Error("Dialogue message failed", "user_id", userID, "error", err)
			return h.writeError(ctx, ws, "dialogue unavailable")
		}
		return h.writeJSON(ctx, ws, wsReply{Type: frameReply, Reply: reply})

	case "start":
		var choice domain.BackendChoice
		if msg.Backend != "" {
			c, ok := domain.ParseBackendChoice(strings.ToLower(msg.Backend))
			if !ok {
				return h.writeError(ctx, ws, "unknown backend")
			}
			choice = c
		}
		reply, err := h.conv.Start(ctx, userID, choice)
		if err != nil {
			if errors.Is(err, dialogue.ErrBackendNotConfigured) {
				return h.writeError(ctx, ws, "backend not available")
			}
			h.logger.Error("Dialogue start failed", "user_id", userID, "error", err)
			return h.writeError(ctx, ws, "dialogue unavailable")
		}
		h.conns.Publish(ctx, userID, ws, wsReply{Type: frameRestart, Reply: reply})
		return h.writeJSON(ctx, ws, wsReply{Type: frameReply, Reply: reply})

	case "reset":
		if err := h.conv.Reset(ctx, userID); err != nil {
			h.logger.Error("Dialogue reset failed", "user_id", userID, "error", err)
			return h.writeError(ctx, ws, "dialogue unavailable")
		}
		frame := map[string]string{"type": frameReset}
		h.conns.Publish(ctx, userID, ws, frame)
		return h.writeJSON(ctx, ws, frame)

	case "ping":
		return h.writeJSON(ctx, ws, map[string]string{"type": "pong"})
	}
	return h.writeError(ctx, ws, "unknown message type")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "" || h.opts.AllowedOrigin == "*" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

func (h *Handler) writeError(ctx context.Context, ws *websocket.Conn, message string) error {
	return h.writeJSON(ctx, ws, map[string]string{"type": "error", "error": message})
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
