package server

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/quillor/quillor/internal/history"
	"github.com/quillor/quillor/internal/polish"
)

// flexBool unmarshals a JSON bool or the strings "true"/"false". Older
// clients send enable_polish as a string, newer ones as a bool; accept both.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, err := strconv.ParseBool(string(data))
	if err != nil {
		return fmt.Errorf("server: not a boolean: %q", data)
	}
	*b = flexBool(v)
	return nil
}

// llmSettings is the config_llm payload.
type llmSettings struct {
	APIURL         string  `json:"api_url"`
	APIKey         string  `json:"api_key"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// envelope is the union of all inbound control messages; Type selects which
// fields are meaningful.
type envelope struct {
	Type string `json:"type"`

	// start; enable_polish absent means off
	EnablePolish  flexBool        `json:"enable_polish"`
	UseLLMPolish  flexBool        `json:"use_llm_polish"`
	UseTimestamps flexBool        `json:"use_timestamps"`
	ModelID       string          `json:"model_id"`
	Language      string          `json:"language"`
	Scene         *polish.Scene   `json:"scene"`
	ActiveApp     *polish.AppInfo `json:"active_app"`

	// config_llm
	Config *llmSettings `json:"config"`

	// analyze_history
	AppName       string          `json:"app_name"`
	Entries       []history.Entry `json:"entries"`
	ExistingTerms []string        `json:"existing_terms"`

	// save_custom_prompt; a null prompt resets to the default
	SceneType string  `json:"scene_type"`
	Prompt    *string `json:"prompt"`
}

// ─── outbound messages ──────────────────────────────────────────────────────

type partialMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type finalMsg struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	OriginalText string `json:"original_text"`
	PolishMethod string `json:"polish_method"`
}

type polishUpdateMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ackMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type llmTestResultMsg struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type promptsMsg struct {
	Type    string            `json:"type"`
	Prompts map[string]string `json:"prompts"`
}

type savePromptAckMsg struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	SceneType string `json:"scene_type"`
	Error     string `json:"error,omitempty"`
}

type analysisResultMsg struct {
	Type   string           `json:"type"`
	Result history.Analysis `json:"result"`
}
