// Package oracle is the boundary to the structured-extraction LLM. It owns
// the response contract shape and converts untrusted oracle output into
// validated records; everything past this package is strongly typed.
package oracle

import "context"

// Request carries one chunk plus the contextual metadata the oracle needs.
type Request struct {
	ChunkText string
	OrgName   string
	SourceURL string
	Lang      string
}

// Record is one schema-validated statement returned by the oracle.
type Record struct {
	ChallengeTitle     string         `json:"challenge_title"`
	ChallengeStatement string         `json:"challenge_statement"`
	SDGGoals           []int          `json:"sdg_goals"`
	Geography          string         `json:"geography"`
	TargetGroups       []string       `json:"target_groups"`
	Sectors            []string       `json:"sectors"`
	ScaleNumbers       map[string]any `json:"scale_numbers"`
	RootCauses         []string       `json:"root_causes"`
	Constraints        []string       `json:"constraints"`
	EvidenceQuotes     []string       `json:"evidence_quotes"`
	Confidence         float64        `json:"confidence"`
}

// Oracle extracts zero or more solution-free problem statements from a
// chunk. Implementations must return models.ErrSchemaViolation-wrapped
// errors for contract breaks and models.ErrOracleUnavailable-wrapped errors
// for transport failures; callers retry only the latter.
type Oracle interface {
	Extract(ctx context.Context, req Request) ([]Record, error)
	Model() string
}
