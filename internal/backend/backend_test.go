package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/llms"

	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/generation"
	"github.com/ashureev/aicare/internal/prompt"
)

type fakeGenerator struct {
	prompt string
	stop   []string
	max    int
	out    string
	err    error
}

func (g *fakeGenerator) Invoke(_ context.Context, p string, stop []string, maxNewTokens int) (string, error) {
	g.prompt, g.stop, g.max = p, stop, maxNewTokens
	return g.out, g.err
}

type fakeCompleter struct {
	req  CompletionRequest
	comp Completion
	err  error
}

func (c *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (Completion, error) {
	c.req = req
	return c.comp, c.err
}

func TestValidateHistory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history []domain.Message
		wantErr bool
	}{
		{"empty", nil, true},
		{"ends with assistant", []domain.Message{domain.UserMessage("hi"), domain.AssistantMessage("hello")}, true},
		{"ends with user", []domain.Message{domain.UserMessage("hi")}, false},
		{"ends with system", []domain.Message{domain.UserMessage("hi"), domain.SystemMessage("reply")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHistory(tt.history)
			if tt.wantErr != errors.Is(err, ErrValidation) {
				t.Fatalf("ValidateHistory() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocalInvokeFormatsPrompt(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{out: "Anna"}
	b := NewLocal(gen, prompt.Llama3{}, true)

	out, err := b.Invoke(context.Background(), "I am Anna", "Extract the name.", 16)
	if err != nil || out != "Anna" {
		t.Fatalf("Invoke() = %q, %v", out, err)
	}
	if !strings.HasPrefix(gen.prompt, "<|begin_of_text|><|start_header_id|>system") {
		t.Errorf("prompt not encoded with BOS: %q", gen.prompt)
	}
	if !strings.Contains(gen.prompt, "Extract the name."+prompt.Llama3{}.EndReminder()) {
		t.Errorf("end reminder missing from system turn: %q", gen.prompt)
	}
	if gen.max != 16 || len(gen.stop) != 2 {
		t.Errorf("generator got max=%d stop=%v", gen.max, gen.stop)
	}
}

func TestLocalInvokeMessagesValidates(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{out: "x"}
	b := NewLocal(gen, prompt.Phi3{}, false)

	_, err := b.InvokeMessages(context.Background(), []domain.Message{domain.AssistantMessage("hi")}, 8)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("InvokeMessages() error = %v, want ErrValidation", err)
	}
	if gen.prompt != "" {
		t.Error("generator called for invalid history")
	}

	out, err := b.InvokeMessages(context.Background(), []domain.Message{domain.UserMessage("hi")}, 8)
	if err != nil || out != "x" {
		t.Fatalf("InvokeMessages() = %q, %v", out, err)
	}
	if !strings.HasSuffix(gen.prompt, "<|assistant|>\n") {
		t.Errorf("prompt missing invitation: %q", gen.prompt)
	}
}

func TestLocalErrorKinds(t *testing.T) {
	t.Parallel()

	unavailable := NewLocal(&fakeGenerator{err: fmt.Errorf("submit: %w", generation.ErrRuntimeUnavailable)}, prompt.Llama3{}, true)
	_, err := unavailable.Invoke(context.Background(), "x", "", 2)
	if !IsKind(err, KindUnavailable) || !errors.Is(err, generation.ErrRuntimeUnavailable) {
		t.Fatalf("error = %v, want unavailable", err)
	}

	broken := NewLocal(&fakeGenerator{err: errors.New("step failed")}, prompt.Llama3{}, true)
	_, err = broken.Invoke(context.Background(), "x", "", 2)
	if !IsKind(err, KindTransport) {
		t.Fatalf("error = %v, want transport", err)
	}
}

func TestRemoteMapsCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		comp     Completion
		err      error
		wantKind ErrorKind
		wantOut  string
	}{
		{name: "stop", comp: Completion{Text: " Y \n", Finish: FinishStop}, wantKind: -1, wantOut: "Y"},
		{name: "length", comp: Completion{Text: "Y", Finish: FinishLength}, wantKind: KindIncomplete},
		{name: "other", comp: Completion{Finish: FinishOther}, wantKind: KindIncomplete},
		{name: "refusal finish", comp: Completion{Finish: FinishRefusal}, wantKind: KindRefusal},
		{name: "refusal text", comp: Completion{Finish: FinishStop, Refusal: "no"}, wantKind: KindRefusal},
		{name: "transport", err: errors.New("connection reset"), wantKind: KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{comp: tt.comp, err: tt.err}
			r := NewRemote("fake", c)

			out, err := r.Invoke(context.Background(), "yes please", "agreement?", 2)
			if tt.wantKind < 0 {
				if err != nil || out != tt.wantOut {
					t.Fatalf("Invoke() = %q, %v; want %q", out, err, tt.wantOut)
				}
				return
			}
			if !IsKind(err, tt.wantKind) {
				t.Fatalf("Invoke() error = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestRemoteInvokeBuildsMessages(t *testing.T) {
	t.Parallel()

	c := &fakeCompleter{comp: Completion{Text: "ok", Finish: FinishStop}}
	r := NewRemote("fake", c)

	if _, err := r.Invoke(context.Background(), "user text", "sys text", 5); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	want := []domain.Message{domain.SystemMessage("sys text"), domain.UserMessage("user text")}
	if len(c.req.Messages) != 2 || c.req.Messages[0] != want[0] || c.req.Messages[1] != want[1] {
		t.Fatalf("messages = %+v, want %+v", c.req.Messages, want)
	}
	if c.req.MaxTokens != 5 {
		t.Errorf("MaxTokens = %d, want 5", c.req.MaxTokens)
	}

	if _, err := r.InvokeMessages(context.Background(), nil, 5); !errors.Is(err, ErrValidation) {
		t.Fatalf("InvokeMessages(nil) error = %v, want ErrValidation", err)
	}
}

func TestGeminiContents(t *testing.T) {
	t.Parallel()

	system, contents := geminiContents([]domain.Message{
		domain.SystemMessage("persona"),
		domain.UserMessage("/start"),
		domain.AssistantMessage("Hello"),
		domain.UserMessage("Anna"),
		domain.SystemMessage("answer like this"),
	})

	if system != "persona" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d, want 3", len(contents))
	}
	roles := []string{contents[0].Role, contents[1].Role, contents[2].Role}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Errorf("roles = %v", roles)
	}
	if len(contents[2].Parts) != 2 {
		t.Errorf("trailing system message not merged into user turn: %d parts", len(contents[2].Parts))
	}
}

func TestGeminiCompletion(t *testing.T) {
	t.Parallel()

	textResp := func(reason genai.FinishReason, text string) *genai.GenerateContentResponse {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}},
				FinishReason: reason,
			}},
		}
	}

	comp, err := geminiCompletion(textResp(genai.FinishReasonStop, "Y"), nil)
	if err != nil || comp.Text != "Y" || comp.Finish != FinishStop {
		t.Fatalf("stop: %+v, %v", comp, err)
	}

	comp, _ = geminiCompletion(textResp(genai.FinishReasonMaxTokens, "Y"), nil)
	if comp.Finish != FinishLength {
		t.Errorf("max tokens finish = %s", comp.Finish)
	}

	comp, _ = geminiCompletion(textResp(genai.FinishReasonSafety, ""), nil)
	if comp.Finish != FinishRefusal {
		t.Errorf("safety finish = %s", comp.Finish)
	}

	blocked := &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}}
	comp, err = geminiCompletion(nil, blocked)
	if err != nil || comp.Finish != FinishRefusal {
		t.Errorf("blocked: %+v, %v", comp, err)
	}

	if _, err := geminiCompletion(nil, errors.New("dial tcp")); err == nil {
		t.Error("transport error swallowed")
	}
}

type fakeModel struct {
	msgs []llms.MessageContent
	resp *llms.ContentResponse
}

func (m *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.msgs = msgs
	return m.resp, nil
}

func (m *fakeModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "N", StopReason: "stop"}}}}
	o := &OpenAI{llm: model}

	comp, err := o.Complete(context.Background(), CompletionRequest{
		Messages: []domain.Message{
			domain.SystemMessage("sys"),
			domain.UserMessage("no"),
			domain.AssistantMessage("ok"),
			domain.UserMessage("really no"),
		},
		MaxTokens: 2,
	})
	if err != nil || comp.Text != "N" || comp.Finish != FinishStop {
		t.Fatalf("Complete() = %+v, %v", comp, err)
	}

	wantRoles := []llms.ChatMessageType{
		llms.ChatMessageTypeSystem, llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI, llms.ChatMessageTypeHuman,
	}
	for i, msg := range model.msgs {
		if msg.Role != wantRoles[i] {
			t.Errorf("message %d role = %s, want %s", i, msg.Role, wantRoles[i])
		}
	}
}

func TestOpenAICompletionFinish(t *testing.T) {
	t.Parallel()

	tests := map[string]FinishReason{
		"stop":           FinishStop,
		"length":         FinishLength,
		"content_filter": FinishRefusal,
		"tool_calls":     FinishOther,
	}
	for reason, want := range tests {
		resp := &llms.ContentResponse{Choices: []*llms.ContentChoice{{StopReason: reason}}}
		if got := openaiCompletion(resp).Finish; got != want {
			t.Errorf("stop reason %q -> %s, want %s", reason, got, want)
		}
	}
	if got := openaiCompletion(&llms.ContentResponse{}).Finish; got != FinishOther {
		t.Errorf("empty choices -> %s", got)
	}
}
