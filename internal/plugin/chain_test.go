package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// upperPlugin and failPlugin are scripted test plugins.
type upperPlugin struct{}

func (upperPlugin) OnLoad(context.Context) error   { return nil }
func (upperPlugin) OnUnload(context.Context) error { return nil }
func (upperPlugin) OnTranscription(_ context.Context, text string) (string, error) {
	return "[" + text + "]", nil
}

type failPlugin struct{}

func (failPlugin) OnLoad(context.Context) error   { return nil }
func (failPlugin) OnUnload(context.Context) error { return nil }
func (failPlugin) OnTranscription(context.Context, string) (string, error) {
	return "", errors.New("boom")
}

func init() {
	Register("test_wrap", func(Manifest) (Plugin, error) { return upperPlugin{}, nil })
	Register("test_fail", func(Manifest) (Plugin, error) { return failPlugin{}, nil })
}

func writeManifest(t *testing.T, root, dir, entrypoint string) {
	t.Helper()
	pdir := filepath.Join(root, dir)
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := fmt.Sprintf(`{
		"id": %q,
		"name": "Test %s",
		"version": "1.0.0",
		"author": "tests",
		"description": "test plugin",
		"entrypoint": %q,
		"platform": "native"
	}`, dir, dir, entrypoint)
	if err := os.WriteFile(filepath.Join(pdir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestChain_LoadAndProcess(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "aaa-wrap", "test_wrap")

	c := NewChain(root, nil)
	c.LoadAll(context.Background())

	if got := c.Process(context.Background(), "hello"); got != "[hello]" {
		t.Errorf("Process = %q, want %q", got, "[hello]")
	}
}

func TestChain_FailingPluginPassesTextThrough(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "aaa-fail", "test_fail")
	writeManifest(t, root, "bbb-wrap", "test_wrap")

	c := NewChain(root, nil)
	c.LoadAll(context.Background())

	// The failing plugin is skipped; the second still runs.
	if got := c.Process(context.Background(), "hello"); got != "[hello]" {
		t.Errorf("Process = %q, want %q", got, "[hello]")
	}
}

func TestChain_UnknownEntrypointFails(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "ghost", "no_such_entrypoint")

	c := NewChain(root, nil)
	c.LoadAll(context.Background())

	plugins := c.List()
	if len(plugins) != 1 {
		t.Fatalf("plugins = %d, want 1", len(plugins))
	}
	if plugins[0].State != StateFailed || plugins[0].Err == nil {
		t.Errorf("state = %q, err = %v", plugins[0].State, plugins[0].Err)
	}
	if got := c.Process(context.Background(), "text"); got != "text" {
		t.Errorf("Process = %q, want passthrough", got)
	}
}

func TestChain_SetEnabled(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root, "aaa-wrap", "test_wrap")

	c := NewChain(root, nil)
	c.LoadAll(context.Background())

	if err := c.SetEnabled("aaa-wrap", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got := c.Process(context.Background(), "hello"); got != "hello" {
		t.Errorf("disabled plugin still ran: %q", got)
	}

	if err := c.SetEnabled("aaa-wrap", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got := c.Process(context.Background(), "hello"); got != "[hello]" {
		t.Errorf("re-enabled plugin did not run: %q", got)
	}

	if err := c.SetEnabled("missing", true); err == nil {
		t.Error("expected error for unknown plugin")
	}
}

func TestChain_MissingDirectory(t *testing.T) {
	t.Parallel()
	c := NewChain(filepath.Join(t.TempDir(), "nope"), nil)
	c.LoadAll(context.Background())

	if got := c.Process(context.Background(), "text"); got != "text" {
		t.Errorf("Process = %q", got)
	}
	if len(c.List()) != 0 {
		t.Errorf("List = %v, want empty", c.List())
	}
}

func TestChain_InvalidManifest(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	pdir := filepath.Join(root, "broken")
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pdir, "manifest.json"), []byte(`{"name":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewChain(root, nil)
	c.LoadAll(context.Background())

	plugins := c.List()
	if len(plugins) != 1 || plugins[0].State != StateFailed {
		t.Errorf("plugins = %+v, want one failed record", plugins)
	}
}
