// Package fingerprint computes normalized statement fingerprints and merges
// candidates that collide into a single deduplicated challenge.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/dtnitsch/challenge-miner/pkg/lexicon"
)

var (
	punctPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	digitPattern = regexp.MustCompile(`\p{N}+`)
)

// numberToken replaces digit runs, including runs inside words, so
// "3 districts" and "5 districts" collapse to the same fingerprint and
// "covid19" normalizes the same as "covid21".
const numberToken = "<num>"

// Fingerprinter normalizes statements and hashes the token sequence.
type Fingerprinter struct {
	stopwords map[string]bool
}

// New builds a Fingerprinter using the union of stopwords across all
// languages in the registry. Mixed-language statements then normalize the
// same way regardless of which language the document was detected as.
func New(reg *lexicon.Registry) *Fingerprinter {
	return &Fingerprinter{stopwords: reg.Stopwords()}
}

// Normalize lowercases, strips punctuation, collapses whitespace, drops
// stopwords, and replaces digit runs with a placeholder token.
func (f *Fingerprinter) Normalize(statement string) string {
	s := strings.ToLower(statement)
	s = punctPattern.ReplaceAllString(s, " ")
	s = digitPattern.ReplaceAllString(s, numberToken)

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if f.stopwords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Fingerprint returns the SHA-256 hex digest of the normalized statement.
// Statements identical after normalization always collide; distinct
// normalized statements collide with negligible probability.
func (f *Fingerprinter) Fingerprint(statement string) string {
	normalized := f.Normalize(statement)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
