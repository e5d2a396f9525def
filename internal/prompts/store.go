package prompts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps user prompt overrides, persisted as a JSON object of scene
// type to prompt. User prompts win over the built-in defaults.
type Store struct {
	mu     sync.RWMutex
	path   string
	custom map[string]string
	logger *slog.Logger
}

// DefaultStorePath places the store under the user config directory.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("prompts: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "quillor", "user_prompts.json"), nil
}

// NewStore loads the store at path. A missing file is an empty store; a
// corrupt file is logged and treated as empty rather than blocking startup.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, custom: map[string]string{}, logger: logger}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s
	}
	if err != nil {
		logger.Warn("prompt store unreadable, starting empty", "path", path, "error", err)
		return s
	}
	if err := json.Unmarshal(data, &s.custom); err != nil {
		logger.Warn("prompt store corrupt, starting empty", "path", path, "error", err)
		s.custom = map[string]string{}
	}
	return s
}

// Resolve implements polish.PromptResolver. User override first, then the
// built-in prompt for the scene type, then the general prompt.
func (s *Store) Resolve(sceneType string) string {
	s.mu.RLock()
	p, ok := s.custom[sceneType]
	s.mu.RUnlock()
	if ok {
		return p
	}
	return Default(sceneType)
}

// Set saves a user override and persists the store.
func (s *Store) Set(sceneType, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.custom[sceneType] = prompt
	return s.save()
}

// Reset removes a user override and persists the store. Resetting a scene
// without an override is a no-op.
func (s *Store) Reset(sceneType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.custom[sceneType]; !ok {
		return nil
	}
	delete(s.custom, sceneType)
	return s.save()
}

// Has reports whether the scene type has a user override.
func (s *Store) Has(sceneType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.custom[sceneType]
	return ok
}

// Custom returns a copy of all user overrides.
func (s *Store) Custom() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.custom)
}

// save writes the store via a temp file so a crash never leaves a
// half-written JSON behind. Caller holds the write lock.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("prompts: create store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.custom, "", "  ")
	if err != nil {
		return fmt.Errorf("prompts: encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("prompts: write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("prompts: replace store: %w", err)
	}
	return nil
}
