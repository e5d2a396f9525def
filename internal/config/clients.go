package config

import (
	"fmt"

	"github.com/quillor/quillor/internal/llm"
)

// NewLLMClient builds the polishing client described by the LLM block.
// Returns (nil, nil) when the stage is disabled.
func (c LLMConfig) NewLLMClient() (llm.Client, error) {
	if !c.Enabled {
		return nil, nil
	}

	cfg := c.ClientConfig()
	switch c.Provider {
	case ProviderOpenAICompat, "":
		client, err := llm.NewCompatClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: build llm client: %w", err)
		}
		return client, nil
	case ProviderOpenAI, ProviderOllama, ProviderMistral, ProviderGroq, ProviderLlamaCpp:
		client, err := llm.NewAnyLLMClient(string(c.Provider), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: build llm client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("config: unknown llm provider %q", c.Provider)
	}
}
