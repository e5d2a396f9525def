package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// CompatClient talks to any OpenAI-compatible chat completions endpoint.
// The underlying SDK client is rebuilt whenever the config changes, so a
// running session picks up a new endpoint or model on its next request.
type CompatClient struct {
	mu     sync.RWMutex
	cfg    Config
	client oai.Client
}

var _ Client = (*CompatClient)(nil)

// NewCompatClient builds a client for the given endpoint config. Zero-valued
// fields are filled from DefaultConfig.
func NewCompatClient(cfg Config) (*CompatClient, error) {
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &CompatClient{}
	c.rebuild(cfg)
	return c, nil
}

// UpdateConfig swaps the endpoint settings. In-flight requests finish
// against the old client.
func (c *CompatClient) UpdateConfig(cfg Config) error {
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.rebuild(cfg)
	return nil
}

// Config returns a copy of the current settings.
func (c *CompatClient) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *CompatClient) rebuild(cfg Config) {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(cfg.APIURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	// Local servers accept any key but the SDK insists on one.
	key := cfg.APIKey
	if key == "" {
		key = "none"
	}
	reqOpts = append(reqOpts, option.WithAPIKey(key))

	client := oai.NewClient(reqOpts...)

	c.mu.Lock()
	c.cfg = cfg
	c.client = client
	c.mu.Unlock()
}

// ChatCompletion implements Client.
func (c *CompatClient) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	c.mu.RLock()
	client := c.client
	cfg := c.cfg
	c.mu.RUnlock()

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(cfg.Model),
		Messages:            toOpenAIMessages(messages),
		Temperature:         param.NewOpt(cfg.Temperature),
		MaxCompletionTokens: param.NewOpt(int64(cfg.MaxTokens)),
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck implements Client. It lists models rather than issuing a
// completion so the check stays cheap even for large models.
func (c *CompatClient) HealthCheck(ctx context.Context) (time.Duration, error) {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIURL+"/models", nil)
	if err != nil {
		return 0, fmt.Errorf("llm: health check: %w", err)
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	start := time.Now()
	resp, err := (&http.Client{Timeout: cfg.Timeout}).Do(req)
	if err != nil {
		return 0, fmt.Errorf("llm: health check: %w", err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return elapsed, fmt.Errorf("llm: health check: endpoint returned %s", resp.Status)
	}
	return elapsed, nil
}

func toOpenAIMessages(messages []Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		default:
			out = append(out, oai.UserMessage(m.Content))
		}
	}
	return out
}
