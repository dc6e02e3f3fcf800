// Package prompt renders chat exchanges into the raw prompt text expected by
// instruction-tuned model families.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ashureev/aicare/internal/domain"
)

// EncodingOptions tells the runtime how to tokenize a rendered prompt.
type EncodingOptions struct {
	AddBOS              bool
	AddEOS              bool
	EncodeSpecialTokens bool
}

// Formatter renders prompts for one model family.
type Formatter interface {
	// Name is the family identifier used in configuration.
	Name() string

	// DefaultSystemPrompt is used when a caller supplies no system text.
	DefaultSystemPrompt() string

	// FormatPrompt renders a single user turn. When first is false the
	// system preamble is omitted and the text continues an open exchange.
	FormatPrompt(user, system string, first bool) string

	// FormatMessages renders a whole history followed by the assistant
	// invitation. With remindToEnd every system message gets EndReminder.
	FormatMessages(msgs []domain.Message, remindToEnd bool) string

	// StopConditions lists the markers that end generation.
	StopConditions() []string

	EncodingOptions() EncodingOptions
	AssistantInvitation() string
	EndReminder() string

	// Encode applies the family's textual BOS/EOS markers per EncodingOptions.
	Encode(text string) string
}

// ForFamily returns the formatter registered under name.
func ForFamily(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "llama3", "llama-3":
		return Llama3{}, nil
	case "phi3", "phi-3":
		return Phi3{}, nil
	default:
		return nil, fmt.Errorf("unknown prompt family %q", name)
	}
}

func endReminder(stop string) string {
	return fmt.Sprintf("\nDo not forget to add %q after your response.", stop)
}
