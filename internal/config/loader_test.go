package config_test

import (
	"strings"
	"testing"

	"github.com/quillor/quillor/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != "localhost:9876" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Log.Level != config.LogInfo {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Audio.SilenceThreshold != 0.01 || cfg.Audio.SilenceDurationMS != 300 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.ASR.DefaultModel != "base" || cfg.ASR.Language != "auto" {
		t.Errorf("asr defaults = %+v", cfg.ASR)
	}
	if cfg.LLM.Provider != config.ProviderOpenAICompat {
		t.Errorf("llm provider = %q", cfg.LLM.Provider)
	}
}

func TestLoadFromReader_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: "0.0.0.0:7000"
llm:
  enabled: true
  model: llama3
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:7000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.LLM.Model != "llama3" || !cfg.LLM.Enabled {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	// Untouched sections keep their defaults.
	if cfg.LLM.TimeoutSeconds != 10 {
		t.Errorf("timeout = %d, want default 10", cfg.LLM.TimeoutSeconds)
	}
	if cfg.Audio.SilenceDurationMS != 300 {
		t.Errorf("silence_duration_ms = %d, want default 300", cfg.Audio.SilenceDurationMS)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
log:
  level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error should mention log.level, got: %v", err)
	}
}

func TestValidate_BadProvider(t *testing.T) {
	t.Parallel()
	yaml := `
llm:
  provider: bedrock
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "llm.provider") {
		t.Errorf("error should mention llm.provider, got: %v", err)
	}
}

func TestValidate_BadSilenceThreshold(t *testing.T) {
	t.Parallel()
	yaml := `
audio:
  silence_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
servr:
  listen_addr: ":1234"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestLLMConfig_ClientConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cc := cfg.LLM.ClientConfig()
	if cc.APIURL != "http://localhost:11434/v1" || cc.Model != "qwen2.5:7b" {
		t.Errorf("ClientConfig = %+v", cc)
	}
	if cc.Timeout.Seconds() != 10 {
		t.Errorf("timeout = %v", cc.Timeout)
	}
}
