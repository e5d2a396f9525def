// Package history mines past transcripts for recurring vocabulary. The
// local pass is a plain word-frequency count; the LLM pass additionally
// proposes glossary corrections for terms the recognizer keeps getting
// wrong.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/quillor/quillor/internal/llm"
)

// Entry is one past recording.
type Entry struct {
	Text string `json:"text"`
}

// Keyword is a recurring term with its observed frequency.
type Keyword struct {
	Term       string  `json:"term"`
	Frequency  int     `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// SuggestedTerm is an LLM-proposed glossary entry for a likely
// mistranscription.
type SuggestedTerm struct {
	Original   string `json:"original"`
	Correction string `json:"correction"`
	Reason     string `json:"reason"`
}

// Analysis is the result returned to the client.
type Analysis struct {
	AppName        string          `json:"app_name"`
	AnalyzedCount  int             `json:"analyzed_count"`
	Keywords       []Keyword       `json:"keywords"`
	SuggestedTerms []SuggestedTerm `json:"suggested_terms"`
}

const (
	maxKeywords       = 30
	maxSuggestions    = 20
	maxLocalCandidate = 50
	maxPromptEntries  = 100
	maxPromptChars    = 10000

	// Suggestions this similar to an existing glossary term are dropped.
	dedupSimilarity = 0.92
)

var (
	cjkWord   = regexp.MustCompile(`[\x{4e00}-\x{9fff}\x{3400}-\x{4dbf}\x{ac00}-\x{d7af}]+`)
	latinWord = regexp.MustCompile(`[a-zA-Z]+`)
)

// Analyzer extracts keywords from recording history. The LLM client is
// optional; without one only the local frequency pass runs.
type Analyzer struct {
	client llm.Client
	logger *slog.Logger
}

// NewAnalyzer builds an Analyzer. client may be nil.
func NewAnalyzer(client llm.Client, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, logger: logger}
}

// Analyze runs the local frequency pass and, when a client is configured,
// the LLM pass. LLM failures degrade to local-only results.
func (a *Analyzer) Analyze(ctx context.Context, entries []Entry, appName string, existingTerms []string) Analysis {
	result := Analysis{
		AppName:        appName,
		AnalyzedCount:  len(entries),
		Keywords:       []Keyword{},
		SuggestedTerms: []SuggestedTerm{},
	}
	if len(entries) == 0 {
		return result
	}

	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Text != "" {
			texts = append(texts, e.Text)
		}
	}

	local := localWordFrequency(texts)

	var llmKeywords []Keyword
	if a.client != nil {
		resp, err := a.analyzeWithLLM(ctx, texts, appName, existingTerms)
		if err != nil {
			a.logger.Warn("llm history analysis failed, using local only", "app", appName, "error", err)
		} else {
			llmKeywords = resp.Keywords
			result.SuggestedTerms = dedupeSuggestions(resp.SuggestedTerms, existingTerms)
		}
	}

	result.Keywords = mergeKeywords(local, llmKeywords)
	if len(result.Keywords) > maxKeywords {
		result.Keywords = result.Keywords[:maxKeywords]
	}
	if len(result.SuggestedTerms) > maxSuggestions {
		result.SuggestedTerms = result.SuggestedTerms[:maxSuggestions]
	}
	return result
}

// extractWords splits text into CJK runs and lowercased Latin words.
func extractWords(text string) []string {
	words := cjkWord.FindAllString(text, -1)
	for _, w := range latinWord.FindAllString(text, -1) {
		if len(w) > 1 {
			words = append(words, strings.ToLower(w))
		}
	}
	return words
}

func localWordFrequency(texts []string) []Keyword {
	counts := map[string]int{}
	for _, t := range texts {
		for _, w := range extractWords(t) {
			counts[w]++
		}
	}

	keywords := make([]Keyword, 0, len(counts))
	for term, freq := range counts {
		if freq < 2 || utf8.RuneCountInString(term) < 2 {
			continue
		}
		conf := float64(freq) / 10
		if conf > 1 {
			conf = 1
		}
		keywords = append(keywords, Keyword{Term: term, Frequency: freq, Confidence: conf})
	}

	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Frequency != keywords[j].Frequency {
			return keywords[i].Frequency > keywords[j].Frequency
		}
		return keywords[i].Term < keywords[j].Term
	})
	if len(keywords) > maxLocalCandidate {
		keywords = keywords[:maxLocalCandidate]
	}
	return keywords
}

// mergeKeywords unions the local and LLM keyword lists, keeping the higher
// confidence when both know a term.
func mergeKeywords(local, llmKeywords []Keyword) []Keyword {
	merged := map[string]Keyword{}
	for _, k := range local {
		merged[k.Term] = k
	}
	for _, k := range llmKeywords {
		if k.Term == "" {
			continue
		}
		if have, ok := merged[k.Term]; ok {
			if k.Confidence > have.Confidence {
				have.Confidence = k.Confidence
				merged[k.Term] = have
			}
			continue
		}
		merged[k.Term] = k
	}

	out := make([]Keyword, 0, len(merged))
	for _, k := range merged {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// dedupeSuggestions drops corrections that match or nearly match a known
// glossary term, so the client never gets asked about a term it already has.
func dedupeSuggestions(suggestions []SuggestedTerm, existing []string) []SuggestedTerm {
	out := make([]SuggestedTerm, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Correction == "" {
			continue
		}
		dup := false
		for _, term := range existing {
			if strings.EqualFold(s.Correction, term) ||
				matchr.JaroWinkler(strings.ToLower(s.Correction), strings.ToLower(term), false) >= dedupSimilarity {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

// llmAnalysis is the JSON shape the model is asked to produce.
type llmAnalysis struct {
	Keywords       []Keyword       `json:"keywords"`
	SuggestedTerms []SuggestedTerm `json:"suggested_terms"`
}

func (a *Analyzer) analyzeWithLLM(ctx context.Context, texts []string, appName string, existingTerms []string) (llmAnalysis, error) {
	if len(texts) > maxPromptEntries {
		texts = texts[:maxPromptEntries]
	}
	combined := truncateUTF8(strings.Join(texts, "\n"), maxPromptChars)

	existing := "无"
	if len(existingTerms) > 0 {
		existing = strings.Join(existingTerms, ", ")
	}

	systemPrompt := fmt.Sprintf(`你是一个专业术语分析助手。分析以下来自"%s"应用的语音转录文本，提取：
1. 高频关键词：出现频率高的专业词汇或常用表达
2. 建议术语：可能是专业术语但被ASR错误转录的词，提供正确写法

已有术语（避免重复）：%s

输出JSON格式：
{
  "keywords": [
    {"term": "词汇", "frequency": 5, "confidence": 0.9}
  ],
  "suggested_terms": [
    {"original": "可能的错误写法", "correction": "正确写法", "reason": "简短理由"}
  ]
}

只输出JSON，不要其他内容。`, appName, existing)

	reply, err := a.client.ChatCompletion(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: combined},
	})
	if err != nil {
		return llmAnalysis{}, err
	}

	var parsed llmAnalysis
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &parsed); err != nil {
		return llmAnalysis{}, fmt.Errorf("history: parse analysis reply: %w", err)
	}
	return parsed, nil
}

// truncateUTF8 caps s at max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// stripCodeFence unwraps a markdown-fenced reply, a habit many chat models
// cannot shake even when told to output bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
