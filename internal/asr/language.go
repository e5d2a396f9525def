package asr

import "strings"

// languageAliases maps client-side language codes that whisper does not know
// onto the nearest code it does. Chinese dialect codes collapse to "zh";
// "auto" and "" request auto-detection.
var languageAliases = map[string]string{
	"auto":        "auto",
	"fil":         "tl",
	"zh-sichuan":  "zh",
	"zh-dongbei":  "zh",
	"zh-shanghai": "zh",
	"zh-minnan":   "zh",
	"zh-hakka":    "zh",
	"zh-wenzhou":  "zh",
	"zh-changsha": "zh",
	"zh-nanchang": "zh",
}

// MapLanguage normalises a client language code for the model. Unmapped
// codes pass through lowercased; region subtags are dropped ("en-US" → "en").
func MapLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "auto"
	}
	if mapped, ok := languageAliases[code]; ok {
		return mapped
	}
	if base, _, found := strings.Cut(code, "-"); found {
		return base
	}
	return code
}
