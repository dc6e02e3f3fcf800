package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaRuntime serves sequences from an Ollama server in raw mode, so the
// prompt text reaches the model exactly as the formatter rendered it. Each
// streamed chunk is one step.
type OllamaRuntime struct {
	client *api.Client
	model  string
}

// NewOllamaRuntime connects to the Ollama server at host.
func NewOllamaRuntime(host, model string, httpClient *http.Client) (*OllamaRuntime, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama model cannot be empty")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaRuntime{client: api.NewClient(u, httpClient), model: model}, nil
}

// Ping checks the server is reachable.
func (r *OllamaRuntime) Ping(ctx context.Context) error {
	if err := r.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

type ollamaChunk struct {
	text string
	done bool
	err  error
}

// Open starts a streaming generation. The request outlives ctx; it is
// stopped by Close.
func (r *OllamaRuntime) Open(ctx context.Context, p SequenceParams) (Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqCtx, cancel := context.WithCancel(context.Background())
	out := make(chan ollamaChunk, 8)

	stream := true
	req := &api.GenerateRequest{
		Model:  r.model,
		Prompt: p.Prompt,
		Raw:    true,
		Stream: &stream,
		Options: map[string]any{
			"num_predict": p.MaxNewTokens,
			"stop":        p.Stop,
		},
	}

	go func() {
		defer close(out)
		err := r.client.Generate(seqCtx, req, func(resp api.GenerateResponse) error {
			select {
			case out <- ollamaChunk{text: resp.Response, done: resp.Done}:
				return nil
			case <-seqCtx.Done():
				return seqCtx.Err()
			}
		})
		if err != nil && seqCtx.Err() == nil {
			select {
			case out <- ollamaChunk{err: fmt.Errorf("ollama generate: %w", err)}:
			case <-seqCtx.Done():
			}
		}
	}()

	return &ollamaSequence{out: out, cancel: cancel}, nil
}

type ollamaSequence struct {
	out    <-chan ollamaChunk
	cancel context.CancelFunc
}

func (s *ollamaSequence) Step(ctx context.Context) (Token, error) {
	select {
	case c, ok := <-s.out:
		if !ok {
			return Token{EOS: true}, nil
		}
		if c.err != nil {
			return Token{}, c.err
		}
		return Token{Text: c.text, EOS: c.done}, nil
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

func (s *ollamaSequence) Close() error {
	s.cancel()
	return nil
}
