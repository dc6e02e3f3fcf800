package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ashureev/aicare/internal/domain"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI adapts an OpenAI-compatible chat API to Completer.
type OpenAI struct {
	llm llms.Model
}

// NewOpenAI creates an OpenAI completer. baseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai init: %w", err)
	}
	return &OpenAI{llm: llm}, nil
}

func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	msgs := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, llms.TextParts(openaiRole(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := o.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return Completion{}, fmt.Errorf("openai generate: %w", err)
	}
	return openaiCompletion(resp), nil
}

func openaiRole(r domain.Role) llms.ChatMessageType {
	switch r {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func openaiCompletion(resp *llms.ContentResponse) Completion {
	if resp == nil || len(resp.Choices) == 0 {
		return Completion{Finish: FinishOther}
	}
	choice := resp.Choices[0]
	comp := Completion{Text: choice.Content}

	if refusal, ok := choice.GenerationInfo["refusal"].(string); ok && refusal != "" {
		comp.Refusal = refusal
	}

	switch strings.ToLower(choice.StopReason) {
	case "stop":
		comp.Finish = FinishStop
	case "length":
		comp.Finish = FinishLength
	case "content_filter":
		comp.Finish = FinishRefusal
	default:
		comp.Finish = FinishOther
	}
	return comp
}
