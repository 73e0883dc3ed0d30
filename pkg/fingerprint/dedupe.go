package fingerprint

import (
	"sort"

	"github.com/dtnitsch/challenge-miner/models"
)

// Merge groups candidates by fingerprint and collapses each group into one
// challenge. The earliest-seen candidate (by extraction timestamp, with
// document id and statement as tie-breakers) supplies statement, title, and
// primary document; list fields union in first-seen order; confidence is
// the group maximum.
//
// Merging is pure and idempotent: the same candidate set yields the same
// challenges regardless of input order.
func Merge(candidates []models.CandidateChallenge) []models.Challenge {
	groups := make(map[string][]models.CandidateChallenge)
	var order []string
	for _, c := range candidates {
		if c.Statement == "" || c.Fingerprint == "" {
			continue
		}
		if _, seen := groups[c.Fingerprint]; !seen {
			order = append(order, c.Fingerprint)
		}
		groups[c.Fingerprint] = append(groups[c.Fingerprint], c)
	}

	// Output order follows the earliest candidate of each group, not
	// arrival order, so worker scheduling cannot reorder results.
	sort.Slice(order, func(i, j int) bool {
		return earlier(earliest(groups[order[i]]), earliest(groups[order[j]]))
	})

	merged := make([]models.Challenge, 0, len(order))
	for _, fp := range order {
		merged = append(merged, mergeGroup(groups[fp]))
	}
	return merged
}

// MergeInto folds a group of new candidates into an already persisted
// challenge with the same fingerprint, preserving the stored statement and
// title as canonical (the persisted record was seen first).
func MergeInto(existing models.Challenge, candidates []models.CandidateChallenge) models.Challenge {
	out := existing
	for _, c := range sorted(candidates) {
		out.SDGGoals = unionInts(out.SDGGoals, c.SDGGoals)
		out.TargetGroups = unionStrings(out.TargetGroups, c.TargetGroups)
		out.Sectors = unionStrings(out.Sectors, c.Sectors)
		out.RootCauses = unionStrings(out.RootCauses, c.RootCauses)
		out.Constraints = unionStrings(out.Constraints, c.Constraints)
		out.EvidenceQuotes = unionStrings(out.EvidenceQuotes, c.EvidenceQuotes)
		out.ScaleNumbers = unionMap(out.ScaleNumbers, c.ScaleNumbers)
		if c.Confidence > out.Confidence {
			out.Confidence = c.Confidence
		}
		if out.Geography == "" {
			out.Geography = c.Geography
		}
		out.MergedFrom++
	}
	return out
}

// CapQuotes trims the evidence list after merging; the original pipeline
// keeps the first max quotes.
func CapQuotes(c models.Challenge, max int) models.Challenge {
	if max > 0 && len(c.EvidenceQuotes) > max {
		c.EvidenceQuotes = c.EvidenceQuotes[:max]
	}
	return c
}

func mergeGroup(group []models.CandidateChallenge) models.Challenge {
	ordered := sorted(group)
	first := ordered[0]

	out := models.Challenge{
		DocID:           first.DocID,
		OrgID:           first.OrgID,
		Title:           first.Title,
		Statement:       first.Statement,
		Geography:       first.Geography,
		ExtractionModel: first.ExtractionModel,
		ExtractedAt:     first.ExtractedAt,
		Fingerprint:     first.Fingerprint,
		MergedFrom:      len(ordered),
	}
	for _, c := range ordered {
		out.SDGGoals = unionInts(out.SDGGoals, c.SDGGoals)
		out.TargetGroups = unionStrings(out.TargetGroups, c.TargetGroups)
		out.Sectors = unionStrings(out.Sectors, c.Sectors)
		out.RootCauses = unionStrings(out.RootCauses, c.RootCauses)
		out.Constraints = unionStrings(out.Constraints, c.Constraints)
		out.EvidenceQuotes = unionStrings(out.EvidenceQuotes, c.EvidenceQuotes)
		out.ScaleNumbers = unionMap(out.ScaleNumbers, c.ScaleNumbers)
		if c.Confidence > out.Confidence {
			out.Confidence = c.Confidence
		}
		if out.Geography == "" {
			out.Geography = c.Geography
		}
	}
	return out
}

func sorted(group []models.CandidateChallenge) []models.CandidateChallenge {
	ordered := make([]models.CandidateChallenge, len(group))
	copy(ordered, group)
	sort.SliceStable(ordered, func(i, j int) bool {
		return earlier(ordered[i], ordered[j])
	})
	return ordered
}

// earlier orders candidates by extraction timestamp, then document id, then
// statement bytes. The full ordering keeps merges deterministic under any
// worker scheduling.
func earlier(a, b models.CandidateChallenge) bool {
	if !a.ExtractedAt.Equal(b.ExtractedAt) {
		return a.ExtractedAt.Before(b.ExtractedAt)
	}
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return a.Statement < b.Statement
}

func earliest(group []models.CandidateChallenge) models.CandidateChallenge {
	first := group[0]
	for _, c := range group[1:] {
		if earlier(c, first) {
			first = c
		}
	}
	return first
}

func unionStrings(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range extra {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		base = append(base, v)
	}
	return base
}

func unionInts(base, extra []int) []int {
	seen := make(map[int]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range extra {
		if seen[v] {
			continue
		}
		seen[v] = true
		base = append(base, v)
	}
	return base
}

func unionMap(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]string, len(extra))
	}
	for k, v := range extra {
		if _, ok := base[k]; !ok {
			base[k] = v
		}
	}
	return base
}
