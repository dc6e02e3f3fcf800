// Package api provides HTTP handlers for the AIcare dialogue API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/aicare/internal/dialogue"
	"github.com/ashureev/aicare/internal/domain"
)

const defaultMaxRequestBodySize = 16 << 10

// Conversations is the dialogue surface the transports drive.
type Conversations interface {
	Start(ctx context.Context, userID string, choice domain.BackendChoice) (dialogue.Reply, error)
	HandleMessage(ctx context.Context, userID, text string) (dialogue.Reply, error)
	Reset(ctx context.Context, userID string) error
	Session(ctx context.Context, userID string) (*domain.Session, error)
}

// Options configures a Handler.
type Options struct {
	// RateLimitPerMinute caps inbound messages per user. Zero disables it.
	RateLimitPerMinute int
	MaxRequestBodySize int64
	// AllowedOrigin restricts websocket upgrades outside development.
	AllowedOrigin string
	IsDev         bool
}

// Handler serves the dialogue endpoints.
type Handler struct {
	conv    Conversations
	limiter *RateLimiter
	conns   *ConnRegistry
	opts    Options
	logger  *slog.Logger
}

// NewHandler creates a Handler. Call Close to stop its background work.
func NewHandler(conv Conversations, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRequestBodySize <= 0 {
		opts.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	h := &Handler{
		conv:   conv,
		conns:  NewConnRegistry(logger),
		opts:   opts,
		logger: logger,
	}
	if opts.RateLimitPerMinute > 0 {
		h.limiter = NewRateLimiter(opts.RateLimitPerMinute, logger)
	}
	return h
}

// RegisterRoutes registers the dialogue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/dialogue", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/messages", h.Message)
		r.Get("/session", h.GetSession)
		r.Delete("/session", h.DeleteSession)
	})
	r.Get("/ws/dialogue", h.ServeWebSocket)
}

// Close closes live websocket connections and stops the rate limiter.
func (h *Handler) Close() {
	if n := h.conns.CloseAll(); n > 0 {
		h.logger.Info("Closed dialogue sockets", "count", n)
	}
	if h.limiter != nil {
		h.limiter.Close()
	}
}

// allow applies the per-user rate limit.
func (h *Handler) allow(userID string) bool {
	return h.limiter == nil || h.limiter.Allow(userID)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
