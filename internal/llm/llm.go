// Package llm defines the chat-completion client used by the background
// polishing stage and the history analyzer. Two implementations exist: a
// runtime-reconfigurable OpenAI-compatible client (Ollama, LM Studio,
// llama.cpp server and friends all speak this dialect) and a named-provider
// client backed by github.com/mozilla-ai/any-llm-go.
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single chat message sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Client is a minimal chat-completion interface. Implementations must be
// safe for concurrent use; polish requests for different utterances may
// overlap.
type Client interface {
	// ChatCompletion sends the messages and returns the assistant reply text.
	ChatCompletion(ctx context.Context, messages []Message) (string, error)

	// HealthCheck verifies the backend is reachable and reports the
	// round-trip latency.
	HealthCheck(ctx context.Context) (time.Duration, error)
}

// Polish sends text to the client under the given system prompt and returns
// the rewritten text. An empty reply is reported as-is; callers decide
// whether to fall back to the input.
func Polish(ctx context.Context, c Client, systemPrompt, text string) (string, error) {
	return c.ChatCompletion(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: text},
	})
}
