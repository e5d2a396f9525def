package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the connection settings for an OpenAI-compatible endpoint.
// Clients can swap it at runtime, which is how the UI reconfigures the
// polishing model without restarting the server.
type Config struct {
	APIURL      string        `yaml:"api_url" json:"api_url"`
	APIKey      string        `yaml:"api_key" json:"api_key"`
	Model       string        `yaml:"model" json:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig targets a local Ollama instance, the most common setup.
func DefaultConfig() Config {
	return Config{
		APIURL:      "http://localhost:11434/v1",
		APIKey:      "",
		Model:       "qwen2.5:7b",
		Temperature: 0.3,
		MaxTokens:   512,
		Timeout:     10 * time.Second,
	}
}

// Sanitize fills zero-valued fields from the defaults and normalizes the URL.
func (c *Config) Sanitize() {
	def := DefaultConfig()
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = def.APIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if strings.TrimSpace(c.Model) == "" {
		c.Model = def.Model
	}
	if c.Temperature <= 0 {
		c.Temperature = def.Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
}

// Validate reports whether the config can be used to build a client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("llm: api_url must not be empty")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("llm: model must not be empty")
	}
	return nil
}
