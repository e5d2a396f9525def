package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns a config with every field at its built-in default. A
// server started without a config file runs from these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "localhost:9876",
		},
		Log: LogConfig{
			Level:      LogInfo,
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Audio: AudioConfig{
			SilenceThreshold:  0.01,
			SilenceDurationMS: 300,
		},
		ASR: ASRConfig{
			ModelDir:     "models",
			DefaultModel: "base",
			Language:     "auto",
		},
		LLM: LLMConfig{
			Provider:       ProviderOpenAICompat,
			APIURL:         "http://localhost:11434/v1",
			Model:          "qwen2.5:7b",
			Temperature:    0.3,
			MaxTokens:      512,
			TimeoutSeconds: 10,
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields from the
// defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults backfills zero values that YAML decoding may have cleared,
// so a partial config file still yields a runnable config.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = def.Log.MaxBackups
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = def.Log.MaxAgeDays
	}
	if cfg.Audio.SilenceThreshold <= 0 {
		cfg.Audio.SilenceThreshold = def.Audio.SilenceThreshold
	}
	if cfg.Audio.SilenceDurationMS <= 0 {
		cfg.Audio.SilenceDurationMS = def.Audio.SilenceDurationMS
	}
	if cfg.ASR.ModelDir == "" {
		cfg.ASR.ModelDir = def.ASR.ModelDir
	}
	if cfg.ASR.DefaultModel == "" {
		cfg.ASR.DefaultModel = def.ASR.DefaultModel
	}
	if cfg.ASR.Language == "" {
		cfg.ASR.Language = def.ASR.Language
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.APIURL == "" {
		cfg.LLM.APIURL = def.LLM.APIURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = def.LLM.Temperature
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		cfg.LLM.TimeoutSeconds = def.LLM.TimeoutSeconds
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if cfg.Audio.SilenceThreshold <= 0 || cfg.Audio.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %v must be in (0, 1)", cfg.Audio.SilenceThreshold))
	}
	if cfg.Audio.SilenceDurationMS < 100 {
		errs = append(errs, fmt.Errorf("audio.silence_duration_ms %d must be at least 100", cfg.Audio.SilenceDurationMS))
	}
	if cfg.ASR.DefaultModel == "" {
		errs = append(errs, errors.New("asr.default_model must not be empty"))
	}
	if !cfg.LLM.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("llm.provider %q is invalid; valid values: openai-compat, openai, ollama, mistral, groq, llamacpp", cfg.LLM.Provider))
	}
	if cfg.LLM.Enabled && cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model must not be empty when llm.enabled"))
	}

	return errors.Join(errs...)
}
