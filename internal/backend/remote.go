package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/aicare/internal/domain"
)

// FinishReason is a provider-neutral completion end state.
type FinishReason string

// Finish reasons reported by Completer adapters.
const (
	FinishStop    FinishReason = "stop"
	FinishLength  FinishReason = "length"
	FinishRefusal FinishReason = "refusal"
	FinishOther   FinishReason = "other"
)

// CompletionRequest is a chat completion call.
type CompletionRequest struct {
	Messages  []domain.Message
	MaxTokens int
}

// Completion is a provider response.
type Completion struct {
	Text    string
	Finish  FinishReason
	Refusal string
}

// Completer is a remote chat completion provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// Remote serves requests from a hosted chat completion provider.
type Remote struct {
	name string
	c    Completer
}

// NewRemote wraps a provider adapter.
func NewRemote(name string, c Completer) *Remote {
	return &Remote{name: name, c: c}
}

func (r *Remote) Name() string { return "remote/" + r.name }

func (r *Remote) Invoke(ctx context.Context, user, system string, maxTokens int) (string, error) {
	msgs := make([]domain.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, domain.SystemMessage(system))
	}
	msgs = append(msgs, domain.UserMessage(user))
	return r.complete(ctx, msgs, maxTokens)
}

func (r *Remote) InvokeMessages(ctx context.Context, history []domain.Message, maxTokens int) (string, error) {
	if err := ValidateHistory(history); err != nil {
		return "", err
	}
	return r.complete(ctx, history, maxTokens)
}

func (r *Remote) complete(ctx context.Context, msgs []domain.Message, maxTokens int) (string, error) {
	comp, err := r.c.Complete(ctx, CompletionRequest{Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			return "", err
		}
		return "", &BackendError{Backend: r.Name(), Kind: KindTransport, Err: err}
	}

	switch {
	case comp.Refusal != "" || comp.Finish == FinishRefusal:
		return "", &BackendError{Backend: r.Name(), Kind: KindRefusal, Err: refusalError(comp.Refusal)}
	case comp.Finish != FinishStop:
		return "", &BackendError{
			Backend: r.Name(),
			Kind:    KindIncomplete,
			Err:     fmt.Errorf("finish reason %q", comp.Finish),
		}
	}
	return strings.TrimSpace(comp.Text), nil
}

func refusalError(reason string) error {
	if reason == "" {
		return errors.New("model refused")
	}
	return fmt.Errorf("model refused: %s", reason)
}
