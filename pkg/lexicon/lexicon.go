// Package lexicon provides per-language keyword sets driving fingerprint
// normalization and quality scoring. English and Dutch ship built in; more
// languages load from YAML.
package lexicon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lexicon holds the word lists for one language.
type Lexicon struct {
	// Positive marks challenge-signal phrases (barriers, gaps, risks).
	Positive []string `yaml:"positive"`
	// Negative marks solution-language phrases (deploy, rollout, pilot).
	Negative []string `yaml:"negative"`
	// Stopwords are removed during fingerprint normalization.
	Stopwords []string `yaml:"stopwords"`
}

// Registry maps ISO 639-1 language codes to lexicons.
type Registry struct {
	langs map[string]Lexicon
}

// NewRegistry returns a Registry seeded with the built-in languages.
func NewRegistry() *Registry {
	return &Registry{langs: map[string]Lexicon{
		"en": builtinEnglish,
		"nl": builtinDutch,
	}}
}

// Register adds or replaces the lexicon for a language code.
func (r *Registry) Register(lang string, lex Lexicon) {
	r.langs[lang] = lex
}

// Get returns the lexicon for lang, falling back to English for unknown
// codes so scoring never silently degrades to empty keyword sets.
func (r *Registry) Get(lang string) Lexicon {
	if lex, ok := r.langs[lang]; ok {
		return lex
	}
	return r.langs["en"]
}

// Languages lists the registered language codes.
func (r *Registry) Languages() []string {
	codes := make([]string, 0, len(r.langs))
	for code := range r.langs {
		codes = append(codes, code)
	}
	return codes
}

// Stopwords returns the union of stopwords across all registered languages,
// matching how the fingerprint treats mixed-language statements.
func (r *Registry) Stopwords() map[string]bool {
	all := make(map[string]bool)
	for _, lex := range r.langs {
		for _, w := range lex.Stopwords {
			all[w] = true
		}
	}
	return all
}

// LoadFile merges lexicons from a YAML file keyed by language code.
func (r *Registry) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read lexicon file: %w", err)
	}
	var extra map[string]Lexicon
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return fmt.Errorf("parse lexicon file %s: %w", path, err)
	}
	for lang, lex := range extra {
		r.langs[lang] = lex
	}
	return nil
}
