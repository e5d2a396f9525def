package llm

import (
	"context"
	"fmt"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// AnyLLMClient routes completions through github.com/mozilla-ai/any-llm-go,
// for setups that name a hosted provider in the config file instead of an
// OpenAI-compatible URL.
type AnyLLMClient struct {
	backend     anyllmlib.Provider
	model       string
	temperature float64
	maxTokens   int
}

var _ Client = (*AnyLLMClient)(nil)

// NewAnyLLMClient builds a client for the named provider. Supported names:
// "openai", "ollama", "mistral", "groq", "llamacpp". API keys fall back to
// the provider's usual environment variable when no option supplies one.
func NewAnyLLMClient(providerName string, cfg Config, opts ...anyllmlib.Option) (*AnyLLMClient, error) {
	cfg.Sanitize()
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model must not be empty")
	}
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch providerName {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	case "mistral":
		backend, err = mistral.New(opts...)
	case "groq":
		backend, err = groq.New(opts...)
	case "llamacpp":
		backend, err = llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q; supported: openai, ollama, mistral, groq, llamacpp", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create %q backend: %w", providerName, err)
	}

	return &AnyLLMClient{
		backend:     backend,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// ChatCompletion implements Client.
func (c *AnyLLMClient) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	params := anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: make([]anyllmlib.Message, 0, len(messages)),
	}
	for _, m := range messages {
		role := anyllmlib.RoleUser
		if m.Role == RoleSystem {
			role = anyllmlib.RoleSystem
		}
		params.Messages = append(params.Messages, anyllmlib.Message{Role: role, Content: m.Content})
	}
	if c.temperature > 0 {
		t := c.temperature
		params.Temperature = &t
	}
	if c.maxTokens > 0 {
		n := c.maxTokens
		params.MaxTokens = &n
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// HealthCheck implements Client with a one-token completion, since not every
// provider behind any-llm-go exposes a models endpoint.
func (c *AnyLLMClient) HealthCheck(ctx context.Context) (time.Duration, error) {
	one := 1
	params := anyllmlib.CompletionParams{
		Model:     c.model,
		Messages:  []anyllmlib.Message{{Role: anyllmlib.RoleUser, Content: "ping"}},
		MaxTokens: &one,
	}
	start := time.Now()
	if _, err := c.backend.Completion(ctx, params); err != nil {
		return 0, fmt.Errorf("llm: health check: %w", err)
	}
	return time.Since(start), nil
}
