package prompt

import (
	"strings"

	"github.com/ashureev/aicare/internal/domain"
)

const (
	llama3BeginOfText = "<|begin_of_text|>"
	llama3EndOfText   = "<|end_of_text|>"
	llama3EOT         = "<|eot_id|>"
	llama3Header      = "<|start_header_id|>"
)

// Llama3 formats prompts for Llama-3 instruct models.
type Llama3 struct{}

func (Llama3) Name() string { return "llama3" }

func (Llama3) DefaultSystemPrompt() string {
	return "Assist users with tasks and answer questions to the best of your knowledge. " +
		"Provide helpful and informative responses. Be conversational and engaging. " +
		"If you are unsure or lack knowledge on a topic, admit it and try to find the answer or suggest where to find it. " +
		"Keep responses concise and relevant. Follow ethical guidelines and promote a safe and respectful interaction."
}

func (Llama3) turn(role domain.Role, text string) string {
	return llama3Header + string(role) + "<|end_header_id|>\n\n" + text + llama3EOT
}

func (f Llama3) FormatPrompt(user, system string, first bool) string {
	if system == "" {
		system = f.DefaultSystemPrompt()
	}

	var b strings.Builder
	if first {
		b.WriteString(f.turn(domain.RoleSystem, system))
	}
	b.WriteString(f.turn(domain.RoleUser, user))
	b.WriteString(f.AssistantInvitation())
	return b.String()
}

func (f Llama3) FormatMessages(msgs []domain.Message, remindToEnd bool) string {
	var b strings.Builder
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

func (Llama3) StopConditions() []string {
	return []string{llama3EOT, llama3Header}
}

func (Llama3) EncodingOptions() EncodingOptions {
	return EncodingOptions{AddBOS: true, AddEOS: false, EncodeSpecialTokens: true}
}

func (Llama3) AssistantInvitation() string {
	return llama3Header + "assistant<|end_header_id|>\n\n"
}

func (Llama3) EndReminder() string { return endReminder(llama3EOT) }

func (f Llama3) Encode(text string) string {
	opts := f.EncodingOptions()
	if opts.AddBOS && !strings.HasPrefix(text, llama3BeginOfText) {
		text = llama3BeginOfText + text
	}
	if opts.AddEOS {
		text += llama3EndOfText
	}
	return text
}
