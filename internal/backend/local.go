package backend

import (
	"context"
	"errors"

	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/generation"
	"github.com/ashureev/aicare/internal/prompt"
)

// Generator runs a raw prompt to completion. *generation.Service
// satisfies it.
type Generator interface {
	Invoke(ctx context.Context, prompt string, stop []string, maxNewTokens int) (string, error)
}

// Local serves requests from a locally hosted model.
type Local struct {
	gen         Generator
	format      prompt.Formatter
	remindToEnd bool
}

// NewLocal creates a local backend. Local models tend to run past their
// turn, so remindToEnd appends the family's end reminder to system text.
func NewLocal(gen Generator, format prompt.Formatter, remindToEnd bool) *Local {
	return &Local{gen: gen, format: format, remindToEnd: remindToEnd}
}

func (l *Local) Name() string { return "local/" + l.format.Name() }

func (l *Local) Invoke(ctx context.Context, user, system string, maxTokens int) (string, error) {
	if system == "" {
		system = l.format.DefaultSystemPrompt()
	}
	if l.remindToEnd {
		system += l.format.EndReminder()
	}
	return l.run(ctx, l.format.FormatPrompt(user, system, true), maxTokens)
}

func (l *Local) InvokeMessages(ctx context.Context, history []domain.Message, maxTokens int) (string, error) {
	if err := ValidateHistory(history); err != nil {
		return "", err
	}
	return l.run(ctx, l.format.FormatMessages(history, l.remindToEnd), maxTokens)
}

func (l *Local) run(ctx context.Context, text string, maxTokens int) (string, error) {
	out, err := l.gen.Invoke(ctx, l.format.Encode(text), l.format.StopConditions(), maxTokens)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, generation.ErrRuntimeUnavailable) {
			kind = KindUnavailable
		}
		return "", &BackendError{Backend: l.Name(), Kind: kind, Err: err}
	}
	return out, nil
}
