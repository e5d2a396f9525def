// Package config provides the configuration schema, loader, and file
// watcher for the Quillor dictation server.
package config

import (
	"time"

	"github.com/quillor/quillor/internal/llm"
)

// LogLevel controls log verbosity for the Quillor server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LLMProvider selects the backend for the polishing LLM.
type LLMProvider string

const (
	// ProviderOpenAICompat talks to any OpenAI-compatible endpoint and
	// supports runtime reconfiguration from the client.
	ProviderOpenAICompat LLMProvider = "openai-compat"

	ProviderOpenAI   LLMProvider = "openai"
	ProviderOllama   LLMProvider = "ollama"
	ProviderMistral  LLMProvider = "mistral"
	ProviderGroq     LLMProvider = "groq"
	ProviderLlamaCpp LLMProvider = "llamacpp"
)

// IsValid reports whether p is a recognised LLM provider.
func (p LLMProvider) IsValid() bool {
	switch p {
	case ProviderOpenAICompat, ProviderOpenAI, ProviderOllama,
		ProviderMistral, ProviderGroq, ProviderLlamaCpp:
		return true
	}
	return false
}

// Config is the root configuration structure for Quillor.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Audio   AudioConfig   `yaml:"audio"`
	ASR     ASRConfig     `yaml:"asr"`
	LLM     LLMConfig     `yaml:"llm"`
	Prompts PromptsConfig `yaml:"prompts"`
	Plugins PluginsConfig `yaml:"plugins"`
}

// ServerConfig holds network settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the WebSocket server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr, when set, serves Prometheus metrics and the health
	// endpoint on a separate listener. Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogConfig controls log output. When File is set, logs rotate via
// lumberjack; otherwise they go to stderr.
type LogConfig struct {
	Level      LogLevel `yaml:"level"`
	File       string   `yaml:"file"`
	MaxSizeMB  int      `yaml:"max_size_mb"`
	MaxBackups int      `yaml:"max_backups"`
	MaxAgeDays int      `yaml:"max_age_days"`
}

// AudioConfig tunes voice-activity detection and debugging.
type AudioConfig struct {
	// SilenceThreshold is the RMS level below which audio counts as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDurationMS is how long silence must last before a partial
	// transcription fires.
	SilenceDurationMS int `yaml:"silence_duration_ms"`

	// DebugDumpDir, when set, writes each finished utterance as a WAV file
	// for inspection. Empty disables dumps.
	DebugDumpDir string `yaml:"debug_dump_dir"`
}

// ASRConfig configures the whisper.cpp models.
type ASRConfig struct {
	// ModelDir is the directory holding ggml model files, named
	// ggml-<id>.bin.
	ModelDir string `yaml:"model_dir"`

	// DefaultModel is the model id used when a session does not name one.
	DefaultModel string `yaml:"default_model"`

	// Language is the default recognition language ("auto" detects).
	Language string `yaml:"language"`

	// Warmup loads the default model at startup instead of on first use.
	Warmup bool `yaml:"warmup"`
}

// LLMConfig configures the background polishing model.
type LLMConfig struct {
	// Enabled turns the LLM polishing stage on.
	Enabled bool `yaml:"enabled"`

	// Provider selects the backend. openai-compat is the default and is
	// the only provider the client can reconfigure at runtime.
	Provider LLMProvider `yaml:"provider"`

	APIURL      string  `yaml:"api_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// TimeoutSeconds bounds each LLM request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ClientConfig converts the YAML block into the llm package's config.
func (c LLMConfig) ClientConfig() llm.Config {
	cfg := llm.Config{
		APIURL:      c.APIURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
	}
	cfg.Sanitize()
	return cfg
}

// PromptsConfig locates the user prompt override store.
type PromptsConfig struct {
	// StorePath is the JSON file holding user prompt overrides. Empty
	// selects the default under the user config directory.
	StorePath string `yaml:"store_path"`
}

// PluginsConfig locates the plugins directory.
type PluginsConfig struct {
	// Dir is scanned for plugin manifests at startup. Empty disables
	// plugins.
	Dir string `yaml:"dir"`
}
