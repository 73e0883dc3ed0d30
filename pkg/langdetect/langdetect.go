// Package langdetect identifies the language of document text so the
// pipeline can pick the matching lexicon.
package langdetect

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Detector wraps a lingua language detector restricted to the languages the
// lexicon registry knows about.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a Detector for the given ISO 639-1 codes. Unknown codes are
// ignored; with fewer than two usable languages detection always returns
// the fallback.
func New(codes []string) *Detector {
	var langs []lingua.Language
	for _, code := range codes {
		if lang, ok := languageFor(code); ok {
			langs = append(langs, lang)
		}
	}
	if len(langs) < 2 {
		langs = []lingua.Language{lingua.English, lingua.Dutch}
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()
	return &Detector{detector: detector}
}

// Detect returns the ISO 639-1 code for text, or "en" when the text is too
// short or ambiguous for a confident call.
func (d *Detector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return "en"
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "en"
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func languageFor(code string) (lingua.Language, bool) {
	switch strings.ToLower(code) {
	case "en":
		return lingua.English, true
	case "nl":
		return lingua.Dutch, true
	case "de":
		return lingua.German, true
	case "fr":
		return lingua.French, true
	case "es":
		return lingua.Spanish, true
	default:
		return lingua.Unknown, false
	}
}
