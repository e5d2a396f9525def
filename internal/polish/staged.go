package polish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/quillor/quillor/internal/llm"
)

// Method names the stage that produced a polished text.
type Method string

const (
	MethodNone  Method = "none"
	MethodRules Method = "rules"
	MethodLLM   Method = "llm"
)

// PromptResolver supplies the LLM system prompt for a scene type,
// preferring any user-saved override.
type PromptResolver interface {
	Resolve(sceneType string) string
}

// Staged runs polishing in two stages. Quick is synchronous and
// deterministic; Background asks the configured LLM for a rewrite and may
// fail without consequence.
type Staged struct {
	rules   *RulePolisher
	prompts PromptResolver
	logger  *slog.Logger

	// client may be swapped at runtime by a config_llm message while
	// background tasks are in flight.
	clientMu sync.RWMutex
	client   llm.Client
}

// StagedOption configures a Staged polisher.
type StagedOption func(*Staged)

// WithLLMClient enables the background stage.
func WithLLMClient(c llm.Client) StagedOption {
	return func(s *Staged) { s.client = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) StagedOption {
	return func(s *Staged) { s.logger = l }
}

// NewStaged builds a Staged polisher. prompts must not be nil.
func NewStaged(prompts PromptResolver, opts ...StagedOption) *Staged {
	s := &Staged{
		rules:   NewRulePolisher(),
		prompts: prompts,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HasLLM reports whether the background stage can run.
func (s *Staged) HasLLM() bool {
	return s.llmClient() != nil
}

// SetLLMClient swaps the background client. Pass nil to disable the stage.
func (s *Staged) SetLLMClient(c llm.Client) {
	s.clientMu.Lock()
	s.client = c
	s.clientMu.Unlock()
}

func (s *Staged) llmClient() llm.Client {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

// Quick applies the glossary and rule stage. It never fails; empty input
// comes back unchanged with MethodNone.
func (s *Staged) Quick(text string, scene *Scene) (string, Method) {
	if strings.TrimSpace(text) == "" {
		return text, MethodNone
	}
	if scene != nil {
		text = ApplyGlossary(text, scene.Glossary)
	}
	return s.rules.Polish(text), MethodRules
}

// Background sends text through the LLM under the scene's prompt. The
// glossary is applied before the model sees the text. An empty model reply
// is an error so callers never overwrite a good rule-polished result with
// nothing.
func (s *Staged) Background(ctx context.Context, text string, scene *Scene) (string, error) {
	client := s.llmClient()
	if client == nil {
		return "", fmt.Errorf("polish: no llm client configured")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("polish: empty input")
	}

	prompt := s.promptFor(scene)
	if scene != nil {
		text = ApplyGlossary(text, scene.Glossary)
	}

	polished, err := llm.Polish(ctx, client, prompt, text)
	if err != nil {
		return "", fmt.Errorf("polish: llm stage: %w", err)
	}
	polished = strings.TrimSpace(polished)
	if polished == "" {
		return "", fmt.Errorf("polish: llm returned empty text")
	}

	s.logger.Debug("llm polish done",
		"scene", scene.ResolveType(),
		"in_len", len(text),
		"out_len", len(polished))
	return polished, nil
}

func (s *Staged) promptFor(scene *Scene) string {
	if scene != nil && strings.TrimSpace(scene.CustomPrompt) != "" {
		return scene.CustomPrompt
	}
	return s.prompts.Resolve(scene.ResolveType())
}
