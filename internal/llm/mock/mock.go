// Package mock provides a test double for the llm.Client interface.
//
// Use Client in unit tests to feed controlled replies without a live LLM
// backend. Set response fields before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/quillor/quillor/internal/llm"
)

// Call records a single invocation of ChatCompletion.
type Call struct {
	Messages []llm.Message
}

// Client is a mock implementation of llm.Client. Zero values for response
// fields cause methods to return zero values and nil errors. Set Err to
// inject errors.
type Client struct {
	mu sync.Mutex

	// Reply is returned from ChatCompletion.
	Reply string

	// Replies, if non-empty, is consumed one element per call before
	// falling back to Reply.
	Replies []string

	// Err, if non-nil, is returned from ChatCompletion and HealthCheck.
	Err error

	// Delay, if positive, is waited before returning (honoring ctx).
	Delay time.Duration

	// Latency is returned from a successful HealthCheck.
	Latency time.Duration

	calls []Call
}

var _ llm.Client = (*Client)(nil)

// ChatCompletion implements llm.Client.
func (c *Client) ChatCompletion(ctx context.Context, messages []llm.Message) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Messages: messages})
	reply := c.Reply
	if len(c.Replies) > 0 {
		reply = c.Replies[0]
		c.Replies = c.Replies[1:]
	}
	err := c.Err
	delay := c.Delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// HealthCheck implements llm.Client.
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Latency, nil
}

// Calls returns a copy of all recorded ChatCompletion invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}
