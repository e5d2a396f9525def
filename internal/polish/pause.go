package polish

import (
	"strings"
	"time"
	"unicode"

	"github.com/quillor/quillor/internal/asr"
)

// Pause thresholds for timestamp-driven punctuation. A long silence between
// two words is a stronger boundary than any grammar heuristic.
const (
	sentenceGap = 1500 * time.Millisecond
	commaGap    = 800 * time.Millisecond
	minorGap    = 300 * time.Millisecond
)

// PunctuateWords rebuilds text from word-level timestamps, inserting
// punctuation at pauses. CJK words join without spaces and take fullwidth
// marks; everything else joins with spaces and takes ASCII marks. A
// terminal sentence mark is appended when missing, chosen by the script of
// the last word.
func PunctuateWords(words []asr.Word) string {
	var b strings.Builder
	var prev asr.Word
	wrote := false
	for _, w := range words {
		word := strings.TrimSpace(w.Word)
		if word == "" {
			// Skipped entirely: the gap is measured against the last word
			// actually written, not against blank filler tokens.
			continue
		}
		if wrote {
			b.WriteString(separator(prev, w))
		}
		b.WriteString(word)
		prev = w
		wrote = true
	}

	out := b.String()
	if out == "" {
		return out
	}
	if !trailingMark.MatchString(out) {
		if isCJKWord(lastWord(words)) {
			out += "。"
		} else {
			out += "."
		}
	}
	return out
}

// separator picks the joining text between two adjacent words from the
// silence gap and the scripts involved.
func separator(prev, next asr.Word) string {
	gap := next.Start - prev.End
	cjk := isCJKWord(prev.Word) || isCJKWord(next.Word)

	switch {
	case gap > sentenceGap:
		if cjk {
			return "。"
		}
		return ". "
	case gap > commaGap:
		if cjk {
			return "，"
		}
		return ", "
	case gap > minorGap:
		if cjk {
			return "、"
		}
		return " "
	default:
		if isCJKWord(prev.Word) && isCJKWord(next.Word) {
			return ""
		}
		return " "
	}
}

func lastWord(words []asr.Word) string {
	for i := len(words) - 1; i >= 0; i-- {
		if w := strings.TrimSpace(words[i].Word); w != "" {
			return w
		}
	}
	return ""
}

// isCJKWord reports whether the word's first letter belongs to a CJK or
// Korean script.
func isCJKWord(word string) bool {
	for _, r := range strings.TrimSpace(word) {
		return unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hangul, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r)
	}
	return false
}
