package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Factory builds a plugin from its manifest.
type Factory func(m Manifest) (Plugin, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a plugin implementation available under the given
// entrypoint name. Registering a duplicate name panics; it indicates a
// programming error at init time.
func Register(entrypoint string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[entrypoint]; dup {
		panic(fmt.Sprintf("plugin: Register called twice for %q", entrypoint))
	}
	factories[entrypoint] = f
}

func lookupFactory(entrypoint string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[entrypoint]
	return f, ok
}

// Chain discovers activated plugins in a directory and runs transcripts
// through the enabled ones in order.
type Chain struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	plugins []*Info
}

// NewChain builds a Chain over the given plugins directory. The directory
// may not exist yet; Discover treats that as zero plugins.
func NewChain(dir string, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{dir: dir, logger: logger}
}

// Discover scans the plugins directory for subdirectories holding a
// manifest.json and returns their paths, sorted for a stable chain order.
func (c *Chain) Discover() []string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("plugins directory unreadable", "dir", c.dir, "error", err)
		}
		return nil
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.dir, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// LoadAll discovers and loads every plugin. A plugin that fails to load is
// recorded in failed state and skipped at processing time; one broken
// plugin never takes the chain down.
func (c *Chain) LoadAll(ctx context.Context) {
	var loaded []*Info
	for _, dir := range c.Discover() {
		info := c.load(ctx, dir)
		loaded = append(loaded, info)
		if info.Err != nil {
			c.logger.Warn("plugin load failed", "dir", dir, "error", info.Err)
		} else {
			c.logger.Info("plugin loaded",
				"id", info.Manifest.ID,
				"name", info.Manifest.Name,
				"version", info.Manifest.Version)
		}
	}

	c.mu.Lock()
	c.plugins = loaded
	c.mu.Unlock()
}

func (c *Chain) load(ctx context.Context, dir string) *Info {
	m, err := readManifest(dir)
	if err != nil {
		return &Info{State: StateFailed, Err: err}
	}
	info := &Info{Manifest: m}

	if m.Platform == "swift" {
		info.State = StateDisabled
		return info
	}

	factory, ok := lookupFactory(m.Entrypoint)
	if !ok {
		info.State = StateFailed
		info.Err = fmt.Errorf("plugin: no implementation registered for entrypoint %q", m.Entrypoint)
		return info
	}

	p, err := factory(m)
	if err != nil {
		info.State = StateFailed
		info.Err = fmt.Errorf("plugin: build %q: %w", m.ID, err)
		return info
	}
	if err := p.OnLoad(ctx); err != nil {
		info.State = StateFailed
		info.Err = fmt.Errorf("plugin: load %q: %w", m.ID, err)
		return info
	}

	info.plugin = p
	info.State = StateEnabled
	return info
}

// Process runs text through every enabled plugin in order. A plugin error
// is logged and that plugin's output discarded; the text continues through
// the rest of the chain unchanged.
func (c *Chain) Process(ctx context.Context, text string) string {
	c.mu.RLock()
	plugins := c.plugins
	c.mu.RUnlock()

	out := text
	for _, info := range plugins {
		if !info.Enabled() {
			continue
		}
		processed, err := info.plugin.OnTranscription(ctx, out)
		if err != nil {
			c.logger.Error("plugin processing failed",
				"id", info.Manifest.ID, "error", err)
			continue
		}
		out = processed
	}
	return out
}

// SetEnabled flips a plugin between enabled and disabled. Failed plugins
// cannot be enabled.
func (c *Chain) SetEnabled(pluginID string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range c.plugins {
		if info.Manifest.ID != pluginID {
			continue
		}
		if info.State == StateFailed {
			return fmt.Errorf("plugin: %q failed to load: %w", pluginID, info.Err)
		}
		if enabled {
			info.State = StateEnabled
		} else {
			info.State = StateDisabled
		}
		return nil
	}
	return fmt.Errorf("plugin: unknown plugin %q", pluginID)
}

// List returns a snapshot of all plugin records.
func (c *Chain) List() []Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Info, 0, len(c.plugins))
	for _, info := range c.plugins {
		out = append(out, *info)
	}
	return out
}

// Unload calls OnUnload on every loaded plugin and clears the chain.
func (c *Chain) Unload(ctx context.Context) {
	c.mu.Lock()
	plugins := c.plugins
	c.plugins = nil
	c.mu.Unlock()

	for _, info := range plugins {
		if info.plugin == nil {
			continue
		}
		if err := info.plugin.OnUnload(ctx); err != nil {
			c.logger.Warn("plugin unload failed", "id", info.Manifest.ID, "error", err)
		}
	}
}
