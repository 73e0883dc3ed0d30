package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dtnitsch/challenge-miner/models"
)

// Summary reports what one pipeline run did. Stage counts come from the
// ledger and therefore cover all runs, not just this one.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	DocsFetched int `json:"docs_fetched"`
	FetchErrors int `json:"fetch_errors"`

	DocsProcessed int `json:"docs_processed"`
	DocsCompleted int `json:"docs_completed"`
	DocsFailed    int `json:"docs_failed"`
	DocsSkipped   int `json:"docs_skipped"`

	ChallengesStored   int `json:"challenges_stored"`
	ChallengesScored   int `json:"challenges_scored"`
	ChallengesKept     int `json:"challenges_kept"`
	ChallengesFiltered int `json:"challenges_filtered"`

	Stages []models.StageCounts `json:"stages,omitempty"`
}

// String renders the summary for the CLI.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", s.RunID)
	fmt.Fprintf(&b, "  fetched:    %d documents (%d errors)\n", s.DocsFetched, s.FetchErrors)
	fmt.Fprintf(&b, "  processed:  %d documents (%d completed, %d failed, %d skipped)\n",
		s.DocsProcessed, s.DocsCompleted, s.DocsFailed, s.DocsSkipped)
	fmt.Fprintf(&b, "  challenges: %d stored, %d scored, %d kept, %d filtered\n",
		s.ChallengesStored, s.ChallengesScored, s.ChallengesKept, s.ChallengesFiltered)
	for _, st := range s.Stages {
		fmt.Fprintf(&b, "  stage %-8s completed=%d failed=%d skipped=%d\n",
			st.Stage, st.Completed, st.Failed, st.Skipped)
	}
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "  duration:   %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	return b.String()
}
