// Package plugin runs transcript post-processors. Plugins are compiled in
// and registered by name; a manifest.json in the plugins directory
// activates one and carries its settings, so users enable, disable, and
// configure plugins without rebuilding the server.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Plugin is a transcript post-processor. OnTranscription receives the text
// after polishing and returns the (possibly rewritten) text.
type Plugin interface {
	OnLoad(ctx context.Context) error
	OnTranscription(ctx context.Context, text string) (string, error)
	OnUnload(ctx context.Context) error
}

// Manifest describes an activated plugin instance.
type Manifest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Author      string          `json:"author"`
	Description string          `json:"description"`
	Entrypoint  string          `json:"entrypoint"`
	Permissions []string        `json:"permissions"`
	Platform    string          `json:"platform"`
	Settings    json.RawMessage `json:"settings"`
}

// Validate checks the required manifest fields.
func (m Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("plugin: manifest missing id")
	}
	if m.Name == "" {
		return fmt.Errorf("plugin: manifest %q missing name", m.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("plugin: manifest %q missing version", m.ID)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("plugin: manifest %q missing entrypoint", m.ID)
	}
	return nil
}

// State is a plugin lifecycle state.
type State string

const (
	StateLoaded   State = "loaded"
	StateEnabled  State = "enabled"
	StateDisabled State = "disabled"
	StateFailed   State = "failed"
)

// Info is the runtime record for one activated plugin.
type Info struct {
	Manifest Manifest
	State    State
	Err      error

	plugin Plugin
}

// Enabled reports whether the plugin participates in text processing.
func (i *Info) Enabled() bool {
	return i.State == StateEnabled
}

// readManifest loads and validates dir/manifest.json.
func readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return Manifest{}, fmt.Errorf("plugin: read manifest in %s: %w", dir, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("plugin: parse manifest in %s: %w", dir, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
