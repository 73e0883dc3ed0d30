// Package scorer computes multi-factor quality scores for deduplicated
// challenges and the filter policy that drops low-quality records.
package scorer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/lexicon"
)

// Sub-score weights. Solution leakage subtracts from the weighted sum.
const (
	densityWeight     = 0.35
	specificityWeight = 0.25
	evidenceWeight    = 0.20
	recencyWeight     = 0.10
	leakageWeight     = 0.20
)

// recencyFloor keeps documents older than the horizon at a nonzero score.
const recencyFloor = 10

// Scorer scores challenges against a lexicon registry. Scoring is pure:
// identical inputs always produce identical sub-scores, so records can be
// re-scored safely after a lexicon update.
type Scorer struct {
	lexicons *lexicon.Registry
	maxAge   time.Duration
}

// New returns a Scorer with the given recency horizon.
func New(reg *lexicon.Registry, maxAge time.Duration) *Scorer {
	return &Scorer{lexicons: reg, maxAge: maxAge}
}

// Score computes all five sub-scores for a challenge. Recency derives from
// the source document's fetch time relative to now; now is explicit so
// re-scoring is reproducible.
func (s *Scorer) Score(c models.Challenge, lang string, fetchedAt, now time.Time) models.ChallengeScore {
	lex := s.lexicons.Get(lang)
	searchText := strings.ToLower(c.Statement + " " + strings.Join(c.EvidenceQuotes, " "))

	density := keywordScore(searchText, lex.Positive)
	leakage := keywordScore(strings.ToLower(c.Statement), lex.Negative)
	specificity := specificityScore(c)
	evidence := evidenceScore(c)
	recency := s.recencyScore(fetchedAt, now)

	return models.ChallengeScore{
		ChallengeID:      c.ChallengeID,
		ChallengeDensity: density,
		SolutionLeakage:  leakage,
		Specificity:      specificity,
		EvidenceStrength: evidence,
		RecencyScore:     recency,
		OverallScore:     Overall(density, specificity, evidence, leakage, recency),
		ScoringNotes: fmt.Sprintf("density=%d leakage=%d specificity=%d evidence=%d recency=%d lang=%s",
			density, leakage, specificity, evidence, recency, lang),
		ScoredAt: now,
	}
}

// Overall combines the sub-scores with the fixed weights, rounds, and
// clamps to [0,100]. Deterministic by construction.
func Overall(density, specificity, evidence, leakage, recency int) int {
	weighted := densityWeight*float64(density) +
		specificityWeight*float64(specificity) +
		evidenceWeight*float64(evidence) -
		leakageWeight*float64(leakage) +
		recencyWeight*float64(recency)

	overall := int(math.Round(weighted))
	if overall < 0 {
		return 0
	}
	if overall > 100 {
		return 100
	}
	return overall
}

// keywordScore is the proportion of lexicon entries found in text relative
// to its word count, scaled so a 10% hit rate saturates at 100.
func keywordScore(text string, keywords []string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	score := float64(hits) / float64(words) * 1000
	if score > 100 {
		return 100
	}
	return int(score)
}

// specificityScore rewards concrete detail: scale numbers and geography
// weigh most, named target groups and sectors add the rest.
func specificityScore(c models.Challenge) int {
	score := 0
	if len(c.ScaleNumbers) > 0 {
		score += 30
	}
	if c.Geography != "" {
		score += 30
	}
	if len(c.TargetGroups) > 0 {
		score += 20
	}
	if len(c.Sectors) > 0 {
		score += 20
	}
	return score
}

func evidenceScore(c models.Challenge) int {
	score := 0
	if len(c.EvidenceQuotes) > 0 {
		score += 40
	}
	if len(c.RootCauses) > 0 {
		score += 30
	}
	if len(c.Constraints) > 0 {
		score += 30
	}
	return score
}

// recencyScore decays linearly from 100 at fetch time to the floor at the
// configured horizon; older documents stay at the floor.
func (s *Scorer) recencyScore(fetchedAt, now time.Time) int {
	if fetchedAt.IsZero() || !fetchedAt.Before(now) {
		return 100
	}
	age := now.Sub(fetchedAt)
	if age >= s.maxAge {
		return recencyFloor
	}
	span := float64(100 - recencyFloor)
	return 100 - int(span*float64(age)/float64(s.maxAge))
}

// FilterPolicy drops records below the configured quality thresholds.
type FilterPolicy struct {
	MinOverallScore    int
	MinConfidence      float64
	MaxSolutionLeakage int
}

// Keep reports whether a scored challenge survives the policy.
func (p FilterPolicy) Keep(c models.Challenge, score models.ChallengeScore) bool {
	if score.OverallScore < p.MinOverallScore {
		return false
	}
	if c.Confidence < p.MinConfidence {
		return false
	}
	if score.SolutionLeakage > p.MaxSolutionLeakage {
		return false
	}
	return true
}
