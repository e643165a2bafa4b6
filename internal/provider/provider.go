package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrModelNotFound is returned when the backend does not know the configured model.
	ErrModelNotFound = errors.New("model not found")
	// ErrEmbeddingsUnsupported is returned by providers that cannot embed text.
	ErrEmbeddingsUnsupported = errors.New("embeddings not supported")
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents the output from the model.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for AI model interactions.
type Provider interface {
	// Chat sends a list of messages to the model and returns a response.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}

// Settings selects and configures one backend.
type Settings struct {
	Type       string
	Model      string
	EmbedModel string
	BaseURL    string
	APIKey     string
	APIKeyEnv  string
}

// SecretSource resolves stored API keys, e.g. "openai.api_key".
type SecretSource func(key string) (string, error)

// New builds the provider described by s. API keys come from s.APIKey, then
// the environment variable s.APIKeyEnv, then secrets.
func New(s Settings, secrets SecretSource) (Provider, error) {
	apiKey := s.APIKey
	if apiKey == "" && s.APIKeyEnv != "" {
		apiKey = os.Getenv(s.APIKeyEnv)
	}
	if apiKey == "" && secrets != nil && s.Type != "ollama" && s.Type != "stub" {
		stored, err := secrets(s.Type + ".api_key")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s api key: %w", s.Type, err)
		}
		apiKey = stored
	}

	switch strings.ToLower(s.Type) {
	case "", "ollama":
		return NewOllamaProvider(s.BaseURL, s.Model, s.EmbedModel)
	case "openai":
		return NewOpenAIProvider(apiKey, s.BaseURL, s.Model, s.EmbedModel)
	case "anthropic":
		return NewAnthropicProvider(apiKey, s.BaseURL, s.Model)
	case "gemini":
		return NewGeminiProvider(apiKey, s.Model, s.EmbedModel)
	case "stub":
		return NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", s.Type)
	}
}

// IsModelNotFound reports whether err means the configured model is missing.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// notFoundMessage catches backends that only signal a missing model in text.
func notFoundMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") && strings.Contains(msg, "model")
}
