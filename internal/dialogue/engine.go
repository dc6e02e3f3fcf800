package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/aicare/internal/backend"
	"github.com/ashureev/aicare/internal/convlog"
	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/intent"
	"github.com/ashureev/aicare/internal/store"
)

// ErrBackendNotConfigured is returned when a session asks for a backend the
// engine was not given.
var ErrBackendNotConfigured = errors.New("backend is not configured")

// BackendPolicy picks the backend for a new session.
type BackendPolicy func(userID string) domain.BackendChoice

// FixedPolicy always returns choice.
func FixedPolicy(choice domain.BackendChoice) BackendPolicy {
	return func(string) domain.BackendChoice { return choice }
}

// Reply is the engine's answer to one inbound message.
type Reply struct {
	Text  string       `json:"reply"`
	State domain.State `json:"state"`
	Ended bool         `json:"ended"`
}

// Deps wires an Engine.
type Deps struct {
	Store     store.SessionStore
	Backends  map[domain.BackendChoice]backend.Backend
	Policy    BackendPolicy
	Extractor *intent.Extractor
	Composer  *Composer
	Log       convlog.Sink
	Logger    *slog.Logger
	// Channel labels conversation log events, e.g. "http" or "console".
	Channel string
	Now     func() time.Time
}

// Engine runs the booking dialogue for many users. Messages of one user
// are handled strictly one at a time.
type Engine struct {
	store     store.SessionStore
	backends  map[domain.BackendChoice]backend.Backend
	policy    BackendPolicy
	extractor *intent.Extractor
	composer  *Composer
	log       convlog.Sink
	logger    *slog.Logger
	channel   string
	now       func() time.Time
	locks     *keyedMutex
}

// NewEngine validates deps and creates an Engine.
func NewEngine(d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, errors.New("dialogue engine requires a session store")
	}
	if len(d.Backends) == 0 {
		return nil, errors.New("dialogue engine requires at least one backend")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Policy == nil {
		d.Policy = FixedPolicy(domain.BackendLocal)
	}
	if d.Extractor == nil {
		d.Extractor = intent.NewExtractor(intent.Options{}, d.Logger)
	}
	if d.Composer == nil {
		d.Composer = NewComposer(false, d.Logger)
	}
	if d.Log == nil {
		d.Log = convlog.Nop{}
	}
	if d.Channel == "" {
		d.Channel = "api"
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	return &Engine{
		store:     d.Store,
		backends:  d.Backends,
		policy:    d.Policy,
		extractor: d.Extractor,
		composer:  d.Composer,
		log:       d.Log,
		logger:    d.Logger,
		channel:   d.Channel,
		now:       d.Now,
		locks:     newKeyedMutex(),
	}, nil
}

// Start opens a fresh session for userID and returns the greeting. An empty
// choice defers to the backend policy.
func (e *Engine) Start(ctx context.Context, userID string, choice domain.BackendChoice) (Reply, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()
	return e.start(ctx, userID, choice)
}

// HandleMessage processes one user message and returns the reply.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) (Reply, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	text = strings.TrimSpace(text)
	if isStartCommand(text) {
		return e.start(ctx, userID, "")
	}

	sess, err := e.store.Get(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return e.start(ctx, userID, "")
	}

	b, ok := e.backends[sess.Backend]
	if !ok {
		// backend removed from the configuration since the session started
		e.logger.Warn("Session backend no longer configured, restarting",
			"user_id", userID,
			"session_id", sess.ID,
			"backend", sess.Backend)
		return e.start(ctx, userID, "")
	}

	prev := sess.State
	res := intent.Unparseable()
	if kind := Expects(prev); kind != intent.KindUnparseable {
		res = e.extractor.Extract(ctx, kind, b, text)
	}
	out := Transition(prev, res, sess.Slots, TransitionOptions{Now: e.now()})
	if out.Restart {
		return e.start(ctx, userID, sess.Backend)
	}

	sess.Append(domain.UserMessage(text))
	e.record(sess, convlog.Inbound, "user_message", text, nil)
	out.Updates.Apply(&sess.Slots)

	replyText := e.composer.Compose(ctx, b, out.Reply, sess.History())
	sess.Append(domain.AssistantMessage(replyText))
	sess.State = out.Next
	sess.UpdatedAt = e.now()

	e.logger.Info("Dialogue transition",
		"user_id", userID,
		"session_id", sess.ID,
		"from", prev,
		"to", out.Next,
		"intent", res.String(),
		"slots_changed", !out.Updates.Empty())
	e.record(sess, convlog.Outbound, "assistant_reply", replyText, map[string]any{
		"from_state": string(prev),
		"intent":     res.String(),
		"template":   out.Reply.Template,
	})

	if out.Next == domain.StateEnd {
		if err := e.store.Delete(ctx, userID); err != nil {
			return Reply{}, fmt.Errorf("discard finished session: %w", err)
		}
		return Reply{Text: replyText, State: out.Next, Ended: true}, nil
	}

	if err := e.store.Put(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	return Reply{Text: replyText, State: out.Next}, nil
}

// Reset discards the stored session for userID.
func (e *Engine) Reset(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	if err := e.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	e.logger.Info("Dialogue reset", "user_id", userID)
	return nil
}

// Session returns a snapshot of the stored session, or nil.
func (e *Engine) Session(ctx context.Context, userID string) (*domain.Session, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	sess, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func (e *Engine) start(ctx context.Context, userID string, choice domain.BackendChoice) (Reply, error) {
	if choice == "" {
		choice = e.policy(userID)
	}
	if _, ok := e.backends[choice]; !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrBackendNotConfigured, choice)
	}

	now := e.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     domain.StateStart,
		Backend:   choice,
		CreatedAt: now,
		UpdatedAt: now,
		Transcript: []domain.Message{
			domain.UserMessage(StartCommand),
			domain.AssistantMessage(Greeting),
		},
	}
	sess.State = domain.StateNameExtraction

	if err := e.store.Put(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}

	e.logger.Info("Dialogue started", "user_id", userID, "session_id", sess.ID, "backend", choice)
	e.record(sess, convlog.Inbound, "start", StartCommand, map[string]any{"backend": string(choice)})
	e.record(sess, convlog.Outbound, "assistant_reply", Greeting, nil)

	return Reply{Text: Greeting, State: sess.State}, nil
}

func (e *Engine) record(sess *domain.Session, direction, eventType, content string, meta map[string]any) {
	e.log.Log(convlog.Event{
		Timestamp:  e.now().UTC().Format(time.RFC3339Nano),
		UserID:     sess.UserID,
		SessionID:  sess.ID,
		Channel:    e.channel,
		Direction:  direction,
		EventType:  eventType,
		State:      string(sess.State),
		ContentRaw: content,
		Meta:       meta,
	})
}

func isStartCommand(text string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && fields[0] == StartCommand
}
