package polish

import "testing"

func TestApplyGlossary(t *testing.T) {
	t.Parallel()

	glossary := []GlossaryEntry{
		{Term: "quill", Replacement: "Quillor"},
		{Term: "API", Replacement: "API", CaseSensitive: true},
		{Term: "", Replacement: "skipped"},
	}

	got := ApplyGlossary("the quill server exposes an api", glossary)
	if got != "the Quillor server exposes an api" {
		t.Errorf("ApplyGlossary = %q", got)
	}

	// Case-sensitive entries only hit exact matches.
	cs := []GlossaryEntry{{Term: "go", Replacement: "Go", CaseSensitive: true}}
	if got := ApplyGlossary("Go and go", cs); got != "Go and Go" {
		t.Errorf("ApplyGlossary = %q, want %q", got, "Go and Go")
	}

	if got := ApplyGlossary("unchanged", nil); got != "unchanged" {
		t.Errorf("ApplyGlossary with nil glossary = %q", got)
	}
}

func TestScene_ResolveType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		scene *Scene
		want  string
	}{
		{"nil scene", nil, SceneGeneral},
		{"explicit type", &Scene{Type: SceneCoding}, SceneCoding},
		{"auto with coding app", &Scene{Type: "auto", ActiveApp: AppInfo{Name: "Visual Studio Code"}}, SceneCoding},
		{"auto with bundle id", &Scene{Type: "auto", ActiveApp: AppInfo{BundleID: "com.tinyspeck.slackmacgap"}}, SceneSocial},
		{"auto with unknown app", &Scene{Type: "auto", ActiveApp: AppInfo{Name: "Calculator"}}, SceneGeneral},
		{"empty scene", &Scene{}, SceneGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.scene.ResolveType(); got != tt.want {
				t.Errorf("ResolveType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScene_ResolveStyle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		scene *Scene
		want  string
	}{
		{"explicit style wins", &Scene{Type: SceneCoding, PolishStyle: StyleCasual}, StyleCasual},
		{"coding defaults technical", &Scene{Type: SceneCoding}, StyleTechnical},
		{"social defaults casual", &Scene{Type: SceneSocial}, StyleCasual},
		{"writing defaults formal", &Scene{Type: SceneWriting}, StyleFormal},
		{"general defaults neutral", &Scene{Type: SceneGeneral}, StyleNeutral},
		{"unknown type defaults neutral", &Scene{Type: "medical"}, StyleNeutral},
		{"nil scene", nil, StyleNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.scene.ResolveStyle(); got != tt.want {
				t.Errorf("ResolveStyle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSceneType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		app  AppInfo
		want string
	}{
		{AppInfo{Name: "iTerm2"}, SceneCoding},
		{AppInfo{Name: "GoLand"}, SceneCoding},
		{AppInfo{Name: "Discord"}, SceneSocial},
		{AppInfo{Name: "Obsidian"}, SceneWriting},
		{AppInfo{Name: "Finder"}, ""},
		{AppInfo{}, ""},
	}
	for _, tt := range tests {
		if got := DetectSceneType(tt.app); got != tt.want {
			t.Errorf("DetectSceneType(%+v) = %q, want %q", tt.app, got, tt.want)
		}
	}
}
