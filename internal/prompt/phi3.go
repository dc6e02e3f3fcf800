package prompt

import (
	"strings"

	"github.com/ashureev/aicare/internal/domain"
)

const (
	phi3BOS = "<s>"
	phi3EOS = "</s>"
	phi3End = "<|end|>"
)

// Phi3 formats prompts for Phi-3 instruct models.
type Phi3 struct{}

func (Phi3) Name() string { return "phi3" }

func (Phi3) DefaultSystemPrompt() string { return "You are a helpful AI assistant." }

func (Phi3) turn(role domain.Role, text string) string {
	return "<|" + string(role) + "|>\n" + text + phi3End + "\n"
}

// FormatPrompt opens a fresh exchange when first is set. Otherwise it closes
// the previous assistant turn and appends a new user turn.
func (f Phi3) FormatPrompt(user, system string, first bool) string {
	if !first {
		return phi3End + "\n" + f.turn(domain.RoleUser, user) + f.AssistantInvitation()
	}
	if system == "" {
		system = f.DefaultSystemPrompt()
	}
	return phi3BOS + f.turn(domain.RoleSystem, system) + f.turn(domain.RoleUser, user) + f.AssistantInvitation()
}

func (f Phi3) FormatMessages(msgs []domain.Message, remindToEnd bool) string {
	var b strings.Builder
	b.WriteString(phi3BOS)
	for _, msg := range msgs {
		content := msg.Content
		if msg.Role == domain.RoleSystem && remindToEnd {
			content += f.EndReminder()
		}
		b.WriteString(f.turn(msg.Role, content))
	}
	b.WriteString(f.AssistantInvitation())
	return b.String()
}

func (Phi3) StopConditions() []string {
	return []string{phi3End, "<|assistant|>", "<|endoftext|>"}
}

func (Phi3) EncodingOptions() EncodingOptions {
	return EncodingOptions{AddBOS: false, AddEOS: false, EncodeSpecialTokens: true}
}

func (Phi3) AssistantInvitation() string { return "<|assistant|>\n" }

func (Phi3) EndReminder() string { return endReminder(phi3End) }

func (f Phi3) Encode(text string) string {
	opts := f.EncodingOptions()
	if opts.AddBOS && !strings.HasPrefix(text, phi3BOS) {
		text = phi3BOS + text
	}
	if opts.AddEOS {
		text += phi3EOS
	}
	return text
}
