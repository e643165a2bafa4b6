package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llama3.1:8b"

type OllamaProvider struct {
	client     *api.Client
	model      string
	embedModel string
}

// NewOllamaProvider talks to a local Ollama daemon. baseURL falls back to
// OLLAMA_HOST, then to the default port.
func NewOllamaProvider(baseURL, model, embedModel string) (*OllamaProvider, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	if embedModel == "" {
		embedModel = model
	}

	if baseURL == "" {
		baseURL = "http://localhost:11434"
		if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
			baseURL = envURL
		}
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	return &OllamaProvider{
		client:     api.NewClient(uri, http.DefaultClient),
		model:      model,
		embedModel: embedModel,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	apiMsgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMsgs = append(apiMsgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := &api.ChatRequest{
		Model:    p.model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
	}

	var respContent string
	var usage Usage

	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		respContent += resp.Message.Content
		if resp.Done {
			usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, p.wrap("chat", p.model, err)
	}

	return &Response{
		Content: respContent,
		Usage:   usage,
	}, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &api.EmbeddingRequest{
		Model:  p.embedModel,
		Prompt: text,
	}
	resp, err := p.client.Embeddings(ctx, req)
	if err != nil {
		return nil, p.wrap("embeddings", p.embedModel, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %s", p.embedModel)
	}
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (p *OllamaProvider) wrap(op, model string, err error) error {
	var statusErr api.StatusError
	if (errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound) || notFoundMessage(err) {
		return fmt.Errorf("%w: ollama %s %q: %v", ErrModelNotFound, op, model, err)
	}
	return fmt.Errorf("ollama %s failed: %w", op, err)
}
