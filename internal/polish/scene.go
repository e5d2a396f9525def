package polish

import (
	"regexp"
	"strings"
)

// GlossaryEntry is a caller-supplied term replacement applied before any
// other polishing.
type GlossaryEntry struct {
	Term          string `json:"term"`
	Replacement   string `json:"replacement"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// AppInfo identifies the frontmost application on the client.
type AppInfo struct {
	Name     string `json:"name"`
	BundleID string `json:"bundle_id"`
}

// Scene is the caller-supplied polishing context. All fields are optional;
// a nil or zero Scene behaves like the general scene.
type Scene struct {
	Type         string          `json:"type"`
	PolishStyle  string          `json:"polish_style"`
	CustomPrompt string          `json:"custom_prompt"`
	Glossary     []GlossaryEntry `json:"glossary"`
	ActiveApp    AppInfo         `json:"active_app"`
}

// Scene types and polish styles.
const (
	SceneGeneral = "general"
	SceneSocial  = "social"
	SceneCoding  = "coding"
	SceneWriting = "writing"

	StyleNeutral   = "neutral"
	StyleCasual    = "casual"
	StyleTechnical = "technical"
	StyleFormal    = "formal"
)

// sceneDefaultStyles maps a scene type to its default polish style.
var sceneDefaultStyles = map[string]string{
	SceneSocial:  StyleCasual,
	SceneCoding:  StyleTechnical,
	SceneWriting: StyleFormal,
	SceneGeneral: StyleNeutral,
}

// ResolveType returns the effective scene type, falling back to app
// detection and then to general.
func (s *Scene) ResolveType() string {
	if s == nil {
		return SceneGeneral
	}
	if s.Type != "" && s.Type != "auto" {
		return s.Type
	}
	if t := DetectSceneType(s.ActiveApp); t != "" {
		return t
	}
	return SceneGeneral
}

// ResolveStyle returns the effective polish style for the scene.
func (s *Scene) ResolveStyle() string {
	if s != nil && s.PolishStyle != "" {
		return s.PolishStyle
	}
	if style, ok := sceneDefaultStyles[s.ResolveType()]; ok {
		return style
	}
	return StyleNeutral
}

// appRule maps an application to a scene type by case-insensitive substring
// match on the app name or bundle identifier. Rules are ordered; the first
// hit wins.
type appRule struct {
	substr    string
	sceneType string
}

var appRules = []appRule{
	{"terminal", SceneCoding},
	{"iterm", SceneCoding},
	{"code", SceneCoding},
	{"xcode", SceneCoding},
	{"jetbrains", SceneCoding},
	{"intellij", SceneCoding},
	{"goland", SceneCoding},
	{"vim", SceneCoding},
	{"slack", SceneSocial},
	{"discord", SceneSocial},
	{"telegram", SceneSocial},
	{"wechat", SceneSocial},
	{"messages", SceneSocial},
	{"whatsapp", SceneSocial},
	{"pages", SceneWriting},
	{"word", SceneWriting},
	{"notion", SceneWriting},
	{"obsidian", SceneWriting},
	{"typora", SceneWriting},
	{"ulysses", SceneWriting},
}

// DetectSceneType infers a scene type from the active application. Returns
// "" when nothing matches.
func DetectSceneType(app AppInfo) string {
	name := strings.ToLower(app.Name)
	bundle := strings.ToLower(app.BundleID)
	if name == "" && bundle == "" {
		return ""
	}
	for _, r := range appRules {
		if strings.Contains(name, r.substr) || strings.Contains(bundle, r.substr) {
			return r.sceneType
		}
	}
	return ""
}

// ApplyGlossary replaces glossary terms in text. Entries with an empty term
// or replacement are skipped.
func ApplyGlossary(text string, glossary []GlossaryEntry) string {
	if text == "" || len(glossary) == 0 {
		return text
	}
	out := text
	for _, e := range glossary {
		if e.Term == "" || e.Replacement == "" {
			continue
		}
		if e.CaseSensitive {
			out = strings.ReplaceAll(out, e.Term, e.Replacement)
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(e.Term))
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, e.Replacement)
	}
	return out
}
