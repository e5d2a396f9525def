// Package polish turns raw transcripts into readable text. The quick stage
// is deterministic (filler removal, self-correction, glossary, punctuation);
// the background stage asks an LLM for a rewrite and is strictly best-effort.
package polish

import (
	"regexp"
	"strings"
)

// fillerRule removes a filler match, optionally keeping captured delimiters.
type fillerRule struct {
	re   *regexp.Regexp
	repl string
}

// Mandarin hesitation particles. Only true particles are listed; words like
// 这个 and 那个 carry meaning in most contexts and must survive.
var chineseFillers = []fillerRule{
	{regexp.MustCompile(`嗯+`), " "},
	{regexp.MustCompile(`呃+`), " "},
	{regexp.MustCompile(`啊{2,}`), " "},
	{regexp.MustCompile(`哦+`), " "},
	// 额 is a common morpheme (额度, 金额, 额外) so it is only dropped when
	// bounded by punctuation, whitespace, or the string edge.
	{regexp.MustCompile(`(^|[，,。.！!？?\s])额+([，,。.！!？?\s]|$)`), "$1$2"},
	{regexp.MustCompile(`(^|[，。！？\s])就是说([，。！？\s]|$)`), "$1$2"},
	{regexp.MustCompile(`怎么说呢[，,\s]*`), " "},
	{regexp.MustCompile(`反正[，,\s]*([，。])`), "$1"},
}

var englishFillers = []fillerRule{
	{regexp.MustCompile(`(?i)\bum+\b`), " "},
	{regexp.MustCompile(`(?i)\buh+\b`), " "},
	{regexp.MustCompile(`(?i)\byou know\b`), " "},
	// These are only fillers when trailed by a comma, which is kept.
	{regexp.MustCompile(`(?i)\b(?:like|basically|literally|right|so)\b(\s*,)`), "$1"},
}

var koreanFillers = []fillerRule{
	{regexp.MustCompile(`[어음그저뭐]+`), " "},
}

// Self-correction phrases. When one is found, the phrase and anything
// between it and the preceding clause boundary are dropped; with no
// boundary the whole prefix goes ("不对，周五见面" keeps "周五见面").
var (
	chineseCorrections = []*regexp.Regexp{
		regexp.MustCompile(`不对[，,\s]*`),
		regexp.MustCompile(`我说错了[，,\s]*`),
		regexp.MustCompile(`改一下[，,\s]*`),
		regexp.MustCompile(`应该是[，,\s]*`),
		regexp.MustCompile(`纠正一下[，,\s]*`),
		regexp.MustCompile(`错了[，,\s]*`),
		regexp.MustCompile(`不是[，,\s]*`),
	}
	chineseClauseBreak = regexp.MustCompile(`[，,。.！!？?\s]`)

	englishCorrections = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bno wait[,\s]*`),
		regexp.MustCompile(`(?i)\bI mean[,\s]*`),
		regexp.MustCompile(`(?i)\bcorrection[,\s]*`),
		regexp.MustCompile(`(?i)\bactually[,\s]*`),
		regexp.MustCompile(`(?i)\bsorry[,\s]*`),
		regexp.MustCompile(`(?i)\blet me rephrase[,\s]*`),
	}
	englishClauseBreak = regexp.MustCompile(`[,.\s]`)
)

// List structure detection and reflow.
var (
	listDetect = []*regexp.Regexp{
		regexp.MustCompile(`第[一二三四五六七八九十]+[步点条个]`),
		regexp.MustCompile(`首先|其次|然后|最后|接着|之后`),
		regexp.MustCompile(`(?i)\b(?:first|second|third|then|next|finally)\b`),
	}
	listOrdinal  = regexp.MustCompile(`(第[一二三四五六七八九十]+[步点条个])`)
	listSequence = regexp.MustCompile(`([。.！!？?\s])(首先|其次|然后|最后|接着|之后)`)
	multiNewline = regexp.MustCompile(`\n+`)
)

// Cleanup passes.
var (
	multiSpace      = regexp.MustCompile(`\s+`)
	leadingOrphans  = regexp.MustCompile(`^[\s，,。.！!？?、;；:：]+`)
	doubleComma     = regexp.MustCompile(`[，,]\s*[，,]`)
	doublePeriod    = regexp.MustCompile(`[。.]\s*[。.]`)
	trailingMark    = regexp.MustCompile(`[.!?。！？,，;；:：]$`)
	cjkOrHangulRune = regexp.MustCompile(`[\x{4e00}-\x{9fff}\x{ac00}-\x{d7af}]`)
)

// RulePolisher is the deterministic polishing stage. It is stateless and
// safe for concurrent use.
type RulePolisher struct{}

// NewRulePolisher returns a RulePolisher.
func NewRulePolisher() *RulePolisher {
	return &RulePolisher{}
}

// Polish removes fillers and self-corrections, reflows detected lists, and
// terminates the text with a script-appropriate sentence mark. Empty and
// whitespace-only input passes through unchanged.
func (p *RulePolisher) Polish(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	out := applyCorrections(text, chineseCorrections, chineseClauseBreak)
	out = applyCorrections(out, englishCorrections, englishClauseBreak)

	for _, groups := range [][]fillerRule{chineseFillers, englishFillers, koreanFillers} {
		for _, r := range groups {
			out = r.re.ReplaceAllString(out, r.repl)
		}
	}

	out = multiSpace.ReplaceAllString(out, " ")
	out = leadingOrphans.ReplaceAllString(out, "")
	out = doubleComma.ReplaceAllString(out, "，")
	out = doublePeriod.ReplaceAllString(out, "。")
	out = strings.TrimSpace(out)

	out = formatList(out)

	if out != "" && !trailingMark.MatchString(out) {
		if cjkOrHangulRune.MatchString(out) {
			out += "。"
		} else {
			out += "."
		}
	}
	return out
}

// applyCorrections drops the clause that a correction phrase retracts. Each
// pattern fires at most once, mirroring one spoken correction per phrase.
func applyCorrections(text string, patterns []*regexp.Regexp, clauseBreak *regexp.Regexp) string {
	out := text
	for _, pat := range patterns {
		loc := pat.FindStringIndex(out)
		if loc == nil {
			continue
		}
		before := out[:loc[0]]
		breaks := clauseBreak.FindAllStringIndex(before, -1)
		if len(breaks) > 0 {
			last := breaks[len(breaks)-1][1]
			out = before[:last] + out[loc[1]:]
		} else {
			out = out[loc[1]:]
		}
	}
	return strings.TrimSpace(out)
}

// formatList inserts line breaks before ordinal and sequence markers when
// the text looks like a spoken list.
func formatList(text string) string {
	found := false
	for _, pat := range listDetect {
		if pat.MatchString(text) {
			found = true
			break
		}
	}
	if !found {
		return text
	}

	out := listOrdinal.ReplaceAllString(text, "\n$1")
	out = listSequence.ReplaceAllString(out, "$1\n$2")
	out = multiNewline.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}
