package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/aicare/internal/dialogue"
	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/identity"
)

// MessageRequest is the body of POST /api/dialogue/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// StartRequest is the body of POST /api/dialogue/start.
type StartRequest struct {
	Backend string `json:"backend"`
}

// SessionResponse describes the caller's stored session.
type SessionResponse struct {
	SessionID string               `json:"session_id"`
	State     domain.State         `json:"state"`
	Backend   domain.BackendChoice `json:"backend"`
	Slots     domain.Slots         `json:"slots"`
	Messages  int                  `json:"messages"`
}

// Start handles POST /api/dialogue/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req StartRequest
	if err := h.decode(w, r, &req, true); err != nil {
		return
	}

	var choice domain.BackendChoice
	if req.Backend != "" {
		c, ok := domain.ParseBackendChoice(strings.ToLower(req.Backend))
		if !ok {
			Error(w, http.StatusBadRequest, "unknown backend")
			return
		}
		choice = c
	}

	reply, err := h.conv.Start(r.Context(), userID, choice)
	if err != nil {
		h.fail(w, r, userID, err)
		return
	}
	h.conns.Publish(r.Context(), userID, nil, wsReply{Type: frameRestart, Reply: reply})
	JSON(w, http.StatusOK, reply)
}

// Message handles POST /api/dialogue/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Rate-limit by userID only so clients cannot bypass throttling by
	// rotating tab session IDs.
	if !h.allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req MessageRequest
	if err := h.decode(w, r, &req, false); err != nil {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	h.logger.Info("Dialogue message",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Text))

	reply, err := h.conv.HandleMessage(r.Context(), userID, req.Text)
	if err != nil {
		h.fail(w, r, userID, err)
		return
	}
	JSON(w, http.StatusOK, reply)
}

// GetSession handles GET /api/dialogue/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sess, err := h.conv.Session(r.Context(), userID)
	if err != nil {
		h.fail(w, r, userID, err)
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "no active session")
		return
	}

	JSON(w, http.StatusOK, SessionResponse{
		SessionID: sess.ID,
		State:     sess.State,
		Backend:   sess.Backend,
		Slots:     sess.Slots,
		Messages:  len(sess.Transcript),
	})
}

// DeleteSession handles DELETE /api/dialogue/session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.conv.Reset(r.Context(), userID); err != nil {
		h.fail(w, r, userID, err)
		return
	}
	h.conns.Publish(r.Context(), userID, nil, map[string]string{"type": frameReset})
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// decode reads a JSON body. An empty body is accepted when optional.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return err
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return err
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, userID string, err error) {
	if errors.Is(err, dialogue.ErrBackendNotConfigured) {
		Error(w, http.StatusBadRequest, "backend not available")
		return
	}
	h.logger.Error("Dialogue request failed",
		"user_id", userID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"error", err)
	Error(w, http.StatusInternalServerError, "dialogue unavailable")
}
