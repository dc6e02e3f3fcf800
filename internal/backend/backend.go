// Package backend provides the text-generation backends the dialogue engine
// talks to: a local model served by the generation service and remote chat
// completion providers.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/aicare/internal/domain"
)

// ErrValidation is returned for malformed generation requests.
var ErrValidation = errors.New("invalid generation request")

// Backend turns prompts or chat histories into generated text.
type Backend interface {
	Name() string

	// Invoke answers a single user text under a system instruction.
	Invoke(ctx context.Context, user, system string, maxTokens int) (string, error)

	// InvokeMessages generates the next assistant turn for history.
	InvokeMessages(ctx context.Context, history []domain.Message, maxTokens int) (string, error)
}

// ValidateHistory rejects histories that cannot be continued.
func ValidateHistory(history []domain.Message) error {
	if len(history) == 0 {
		return fmt.Errorf("%w: empty history", ErrValidation)
	}
	if history[len(history)-1].Role == domain.RoleAssistant {
		return fmt.Errorf("%w: last message must be from user or system", ErrValidation)
	}
	return nil
}

// ErrorKind classifies backend failures.
type ErrorKind int

// Backend failure kinds.
const (
	KindTransport ErrorKind = iota
	KindRefusal
	KindIncomplete
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRefusal:
		return "refusal"
	case KindIncomplete:
		return "incomplete"
	case KindUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// BackendError reports a failed generation.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend %s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsKind reports whether err is a BackendError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Kind == kind
}
