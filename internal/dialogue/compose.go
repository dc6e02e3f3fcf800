package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/aicare/internal/backend"
	"github.com/ashureev/aicare/internal/domain"
)

// DefaultComposeTokens bounds a composed reply.
const DefaultComposeTokens = 256

const (
	personaSystem = "You are the receptionist of AIcare, a dental clinic. " +
		"You talk to patients in a chat and help them book an appointment. " +
		"Be polite and brief. Never invent clinic services, prices or dates."

	answerSystem = "Write your next reply to the patient. " +
		"Base it on this example reply: %q. " +
		"Purpose of the reply: %s " +
		"Keep every fact, name, number and date from the example. Reply with the message text only."
)

// Composer turns reply templates into conversational text.
type Composer struct {
	// Disabled sends templates verbatim.
	Disabled  bool
	MaxTokens int
	logger    *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(disabled bool, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{Disabled: disabled, MaxTokens: DefaultComposeTokens, logger: logger}
}

// Compose paraphrases spec with b in the context of history. It falls back
// to the template on any failure.
func (c *Composer) Compose(ctx context.Context, b backend.Backend, spec ReplySpec, history []domain.Message) string {
	if spec.Verbatim || c.Disabled || b == nil {
		return spec.Template
	}

	purpose := spec.Purpose
	if purpose == "" {
		purpose = defaultPurpose
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.SystemMessage(personaSystem))
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.SystemMessage(fmt.Sprintf(answerSystem, spec.Template, purpose)))

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultComposeTokens
	}

	out, err := b.InvokeMessages(ctx, msgs, maxTokens)
	if err != nil {
		c.logger.Warn("Reply composition failed, using template", "backend", b.Name(), "error", err)
		return spec.Template
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return spec.Template
	}
	return out
}
