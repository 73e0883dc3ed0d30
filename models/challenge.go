// Package models defines data structures shared across the pipeline.
package models

import "time"

// RawDocument is one fetched source unit, persisted in raw_document.
type RawDocument struct {
	DocID           int64             `json:"doc_id"`
	FeedID          int64             `json:"feed_id"`
	URL             string            `json:"url"`
	CanonicalURL    string            `json:"canonical_url,omitempty"`
	FetchedAt       time.Time         `json:"fetched_at"`
	HTTPStatus      int               `json:"http_status"`
	ContentType     string            `json:"content_type,omitempty"`
	Lang            string            `json:"lang,omitempty"`
	Title           string            `json:"title,omitempty"`
	HashSHA256      string            `json:"hash_sha256,omitempty"`
	TextContent     string            `json:"text_content,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CrawlDepth      int               `json:"crawl_depth"`
	ParentURL       string            `json:"parent_url,omitempty"`
	IsPrimarySource bool              `json:"is_primary_source"`
	Error           string            `json:"error,omitempty"`

	// Joined from source_feed/org when loading work items.
	OrgID   int64  `json:"org_id,omitempty"`
	OrgName string `json:"org_name,omitempty"`
}

// CandidateChallenge is the output of one extraction call on one chunk.
// It is not persisted as-is: candidates merge into Challenge records by
// fingerprint before they reach the database.
type CandidateChallenge struct {
	DocID           int64             `json:"doc_id"`
	OrgID           int64             `json:"org_id"`
	Title           string            `json:"challenge_title,omitempty"`
	Statement       string            `json:"challenge_statement"`
	SDGGoals        []int             `json:"sdg_goals,omitempty"`
	Geography       string            `json:"geography,omitempty"`
	TargetGroups    []string          `json:"target_groups,omitempty"`
	Sectors         []string          `json:"sectors,omitempty"`
	ScaleNumbers    map[string]string `json:"scale_numbers,omitempty"`
	RootCauses      []string          `json:"root_causes,omitempty"`
	Constraints     []string          `json:"constraints,omitempty"`
	EvidenceQuotes  []string          `json:"evidence_quotes,omitempty"`
	Confidence      float64           `json:"confidence"`
	ExtractionModel string            `json:"extraction_model"`
	ExtractedAt     time.Time         `json:"extracted_at"`
	Fingerprint     string            `json:"statement_fingerprint"`
}

// Challenge is the persisted, deduplicated unit: one record per distinct
// fingerprint, carrying the union of evidence across all merged candidates.
type Challenge struct {
	ChallengeID     int64             `json:"challenge_id"`
	DocID           int64             `json:"doc_id"`
	OrgID           int64             `json:"org_id"`
	Title           string            `json:"challenge_title,omitempty"`
	Statement       string            `json:"challenge_statement"`
	SDGGoals        []int             `json:"sdg_goals,omitempty"`
	Geography       string            `json:"geography,omitempty"`
	TargetGroups    []string          `json:"target_groups,omitempty"`
	Sectors         []string          `json:"sectors,omitempty"`
	ScaleNumbers    map[string]string `json:"scale_numbers,omitempty"`
	RootCauses      []string          `json:"root_causes,omitempty"`
	Constraints     []string          `json:"constraints,omitempty"`
	EvidenceQuotes  []string          `json:"evidence_quotes,omitempty"`
	Confidence      float64           `json:"confidence"`
	ExtractionModel string            `json:"extraction_model"`
	ExtractedAt     time.Time         `json:"extracted_at"`
	Fingerprint     string            `json:"statement_fingerprint"`
	MergedFrom      int               `json:"merged_from"`
}

// ChallengeScore holds the five sub-scores and the weighted overall score
// for one challenge. One-to-one with Challenge, lifecycle-bound to it.
type ChallengeScore struct {
	ChallengeID      int64     `json:"challenge_id"`
	ChallengeDensity int       `json:"challenge_density"`
	SolutionLeakage  int       `json:"solution_leakage"`
	Specificity      int       `json:"specificity"`
	EvidenceStrength int       `json:"evidence_strength"`
	RecencyScore     int       `json:"recency_score"`
	OverallScore     int       `json:"overall_score"`
	ScoringNotes     string    `json:"scoring_notes,omitempty"`
	ScoredAt         time.Time `json:"scored_at"`
}

// Org is a source organization.
type Org struct {
	OrgID   int64  `json:"org_id"`
	Name    string `json:"org_name"`
	Type    string `json:"org_type,omitempty"`
	Country string `json:"org_country,omitempty"`
	Website string `json:"org_website,omitempty"`
}

// SourceFeed is a crawlable entry point belonging to an org.
type SourceFeed struct {
	FeedID      int64  `json:"feed_id"`
	OrgID       int64  `json:"org_id"`
	Name        string `json:"feed_name"`
	Type        string `json:"feed_type,omitempty"`
	BaseURL     string `json:"base_url"`
	CrawlPolicy string `json:"crawl_policy,omitempty"`
	Active      bool   `json:"active"`
}
