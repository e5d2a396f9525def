package plugin

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

func init() {
	Register("chinese_punctuation", newChinesePunctuation)
	Register("smart_punctuation", newSmartPunctuation)
}

// ─── chinese_punctuation ───

// chinesePunctuation converts halfwidth punctuation to fullwidth inside
// Chinese text and guarantees a terminal mark.
type chinesePunctuation struct {
	convertHalfwidth bool
}

var halfToFull = map[rune]rune{
	',': '，',
	'.': '。',
	'!': '！',
	'?': '？',
	';': '；',
	':': '：',
}

func newChinesePunctuation(m Manifest) (Plugin, error) {
	cfg := struct {
		ConvertHalfwidth *bool `json:"convert_halfwidth"`
	}{}
	if len(m.Settings) > 0 {
		if err := json.Unmarshal(m.Settings, &cfg); err != nil {
			return nil, err
		}
	}
	p := &chinesePunctuation{convertHalfwidth: true}
	if cfg.ConvertHalfwidth != nil {
		p.convertHalfwidth = *cfg.ConvertHalfwidth
	}
	return p, nil
}

func (p *chinesePunctuation) OnLoad(context.Context) error   { return nil }
func (p *chinesePunctuation) OnUnload(context.Context) error { return nil }

func (p *chinesePunctuation) OnTranscription(_ context.Context, text string) (string, error) {
	if !containsHan(text) {
		return text, nil
	}

	out := text
	if p.convertHalfwidth {
		runes := []rune(out)
		for i, r := range runes {
			full, ok := halfToFull[r]
			if !ok {
				continue
			}
			// Only convert when adjacent to a Han character, so mixed text
			// like "用 fmt.Println 打印" keeps its code punctuation intact.
			if hanAdjacent(runes, i) {
				runes[i] = full
			}
		}
		out = string(runes)
	}

	if out != "" {
		last, _ := lastRune(out)
		if _, terminal := terminalMarks[last]; !terminal {
			out += "。"
		}
	}
	return out, nil
}

var terminalMarks = map[rune]struct{}{
	'。': {}, '！': {}, '？': {}, '.': {}, '!': {}, '?': {},
	'，': {}, ',': {}, '；': {}, ';': {}, '：': {}, ':': {},
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func hanAdjacent(runes []rune, i int) bool {
	if i > 0 && unicode.Is(unicode.Han, runes[i-1]) {
		return true
	}
	if i+1 < len(runes) && unicode.Is(unicode.Han, runes[i+1]) {
		return true
	}
	return false
}

func lastRune(s string) (rune, bool) {
	var last rune
	found := false
	for _, r := range s {
		last = r
		found = true
	}
	return last, found
}

// ─── smart_punctuation ───

// smartPunctuation adds sentence-final punctuation to English text,
// guessing question marks from interrogative openers.
type smartPunctuation struct {
	addPeriods      bool
	capitalizeFirst bool
}

var questionOpener = regexp.MustCompile(`(?i)^(what|when|where|who|why|how|which|whose|whom|is|are|was|were|will|would|could|should|can|do|does|did)\b`)

func newSmartPunctuation(m Manifest) (Plugin, error) {
	cfg := struct {
		AddPeriods      *bool `json:"add_periods"`
		CapitalizeFirst *bool `json:"capitalize_first"`
	}{}
	if len(m.Settings) > 0 {
		if err := json.Unmarshal(m.Settings, &cfg); err != nil {
			return nil, err
		}
	}
	p := &smartPunctuation{addPeriods: true, capitalizeFirst: true}
	if cfg.AddPeriods != nil {
		p.addPeriods = *cfg.AddPeriods
	}
	if cfg.CapitalizeFirst != nil {
		p.capitalizeFirst = *cfg.CapitalizeFirst
	}
	return p, nil
}

func (p *smartPunctuation) OnLoad(context.Context) error   { return nil }
func (p *smartPunctuation) OnUnload(context.Context) error { return nil }

func (p *smartPunctuation) OnTranscription(_ context.Context, text string) (string, error) {
	out := strings.TrimSpace(text)
	if out == "" || containsHan(out) {
		return text, nil
	}

	if p.capitalizeFirst {
		runes := []rune(out)
		runes[0] = unicode.ToUpper(runes[0])
		out = string(runes)
	}

	if p.addPeriods {
		last, _ := lastRune(out)
		if !strings.ContainsRune(".!?", last) {
			if questionOpener.MatchString(out) {
				out += "?"
			} else {
				out += "."
			}
		}
	}
	return out, nil
}
