package prompt

import (
	"strings"
	"testing"

	"github.com/ashureev/aicare/internal/domain"
)

func TestLlama3FormatPrompt(t *testing.T) {
	t.Parallel()

	f := Llama3{}
	got := f.FormatPrompt("My name is Anna", "Extract the name.", true)
	want := "<|start_header_id|>system<|end_header_id|>\n\nExtract the name.<|eot_id|>" +
		"<|start_header_id|>user<|end_header_id|>\n\nMy name is Anna<|eot_id|>" +
		"<|start_header_id|>assistant<|end_header_id|>\n\n"
	if got != want {
		t.Fatalf("FormatPrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestLlama3ContinueOmitsSystem(t *testing.T) {
	t.Parallel()

	got := Llama3{}.FormatPrompt("hi", "ignored", false)
	if strings.Contains(got, "system") {
		t.Fatalf("continue prompt contains system preamble: %q", got)
	}
	if !strings.HasSuffix(got, Llama3{}.AssistantInvitation()) {
		t.Fatalf("continue prompt missing invitation: %q", got)
	}
}

func TestLlama3DefaultSystemPrompt(t *testing.T) {
	t.Parallel()

	f := Llama3{}
	got := f.FormatPrompt("hi", "", true)
	if !strings.Contains(got, f.DefaultSystemPrompt()) {
		t.Fatalf("expected default system prompt in %q", got)
	}
}

func TestFormatMessagesRemindsOnlySystem(t *testing.T) {
	t.Parallel()

	msgs := []domain.Message{
		domain.SystemMessage("be brief"),
		domain.UserMessage("hello"),
		domain.AssistantMessage("hi"),
		domain.SystemMessage("answer now"),
	}

	for _, f := range []Formatter{Llama3{}, Phi3{}} {
		got := f.FormatMessages(msgs, true)
		if n := strings.Count(got, f.EndReminder()); n != 2 {
			t.Errorf("%s: reminder count = %d, want 2", f.Name(), n)
		}
		if !strings.HasSuffix(got, f.AssistantInvitation()) {
			t.Errorf("%s: missing assistant invitation", f.Name())
		}

		plain := f.FormatMessages(msgs, false)
		if strings.Contains(plain, f.EndReminder()) {
			t.Errorf("%s: reminder present with remindToEnd=false", f.Name())
		}
	}
}

func TestPhi3FormatPrompt(t *testing.T) {
	t.Parallel()

	f := Phi3{}
	first := f.FormatPrompt("hello", "sys", true)
	want := "<s><|system|>\nsys<|end|>\n<|user|>\nhello<|end|>\n<|assistant|>\n"
	if first != want {
		t.Fatalf("first prompt = %q, want %q", first, want)
	}

	next := f.FormatPrompt("again", "sys", false)
	wantNext := "<|end|>\n<|user|>\nagain<|end|>\n<|assistant|>\n"
	if next != wantNext {
		t.Fatalf("continue prompt = %q, want %q", next, wantNext)
	}
}

func TestStopConditionsAndEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f        Formatter
		stops    []string
		opts     EncodingOptions
		reminder string
	}{
		{
			f:        Llama3{},
			stops:    []string{"<|eot_id|>", "<|start_header_id|>"},
			opts:     EncodingOptions{AddBOS: true, EncodeSpecialTokens: true},
			reminder: "\nDo not forget to add \"<|eot_id|>\" after your response.",
		},
		{
			f:        Phi3{},
			stops:    []string{"<|end|>", "<|assistant|>", "<|endoftext|>"},
			opts:     EncodingOptions{EncodeSpecialTokens: true},
			reminder: "\nDo not forget to add \"<|end|>\" after your response.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.f.Name(), func(t *testing.T) {
			got := tt.f.StopConditions()
			if strings.Join(got, ",") != strings.Join(tt.stops, ",") {
				t.Errorf("StopConditions() = %v, want %v", got, tt.stops)
			}
			if tt.f.EncodingOptions() != tt.opts {
				t.Errorf("EncodingOptions() = %+v, want %+v", tt.f.EncodingOptions(), tt.opts)
			}
			if tt.f.EndReminder() != tt.reminder {
				t.Errorf("EndReminder() = %q, want %q", tt.f.EndReminder(), tt.reminder)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	if got := (Llama3{}).Encode("x"); got != "<|begin_of_text|>x" {
		t.Errorf("Llama3 Encode = %q", got)
	}
	if got := (Llama3{}).Encode("<|begin_of_text|>x"); got != "<|begin_of_text|>x" {
		t.Errorf("Llama3 Encode doubled BOS: %q", got)
	}
	if got := (Phi3{}).Encode("x"); got != "x" {
		t.Errorf("Phi3 Encode = %q", got)
	}
}

func TestForFamily(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"llama3", "LLAMA3", "phi3", " phi-3 "} {
		if _, err := ForFamily(name); err != nil {
			t.Errorf("ForFamily(%q) error: %v", name, err)
		}
	}
	if _, err := ForFamily("gpt2"); err == nil {
		t.Error("ForFamily(gpt2) should fail")
	}
}
