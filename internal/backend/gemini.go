package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ashureev/aicare/internal/domain"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini adapts the Google Gemini API to Completer.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key cannot be empty")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	system, contents := geminiContents(req.Messages)
	if len(contents) == 0 {
		return Completion{}, fmt.Errorf("%w: no user content", ErrValidation)
	}

	model := g.client.GenerativeModel(g.model)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	return geminiCompletion(resp, err)
}

// geminiContents converts a history to Gemini chat contents. Leading system
// messages become the system instruction; later ones are sent as user turns
// since the chat API only knows user and model roles. Consecutive turns of
// one role are merged.
func geminiContents(history []domain.Message) (string, []*genai.Content) {
	var system []string
	i := 0
	for ; i < len(history) && history[i].Role == domain.RoleSystem; i++ {
		system = append(system, history[i].Content)
	}

	var contents []*genai.Content
	for _, msg := range history[i:] {
		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.Text(msg.Content))
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return strings.Join(system, "\n\n"), contents
}

func geminiCompletion(resp *genai.GenerateContentResponse, err error) (Completion, error) {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return Completion{Finish: FinishRefusal, Refusal: blocked.Error()}, nil
	}
	if err != nil {
		return Completion{}, fmt.Errorf("gemini generate: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return Completion{Finish: FinishRefusal, Refusal: fmt.Sprint(resp.PromptFeedback.BlockReason)}, nil
	}
	if len(resp.Candidates) == 0 {
		return Completion{Finish: FinishOther}, nil
	}

	cand := resp.Candidates[0]
	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}

	comp := Completion{Text: b.String()}
	switch cand.FinishReason {
	case genai.FinishReasonStop:
		comp.Finish = FinishStop
	case genai.FinishReasonMaxTokens:
		comp.Finish = FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		comp.Finish = FinishRefusal
		comp.Refusal = fmt.Sprint(cand.FinishReason)
	default:
		comp.Finish = FinishOther
	}
	return comp, nil
}
