// Package extractor turns document chunks into candidate challenges by way
// of the extraction oracle.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/chunker"
	"github.com/dtnitsch/challenge-miner/pkg/fingerprint"
	"github.com/dtnitsch/challenge-miner/pkg/oracle"
)

// minChunkBytes skips chunks too short to contain a statement.
const minChunkBytes = 50

// Extractor issues one oracle call per chunk and normalizes the responses
// into candidate challenges, stamping fingerprint, model, and timestamp.
// It has no side effects beyond the returned slice.
type Extractor struct {
	oracle        oracle.Oracle
	fingerprinter *fingerprint.Fingerprinter
	logger        *slog.Logger
	now           func() time.Time
}

// New builds an Extractor. The clock is injectable for tests.
func New(o oracle.Oracle, f *fingerprint.Fingerprinter, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{oracle: o, fingerprinter: f, logger: logger, now: time.Now}
}

// WithClock overrides the timestamp source.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// ExtractChunk runs one chunk through the oracle. Oracle errors propagate
// unchanged so the orchestrator can distinguish retryable failures.
func (e *Extractor) ExtractChunk(ctx context.Context, doc models.RawDocument, ch chunker.Chunk) ([]models.CandidateChallenge, error) {
	if len(strings.TrimSpace(ch.Text)) < minChunkBytes {
		return nil, nil
	}

	records, err := e.oracle.Extract(ctx, oracle.Request{
		ChunkText: ch.Text,
		OrgName:   doc.OrgName,
		SourceURL: doc.URL,
		Lang:      doc.Lang,
	})
	if err != nil {
		return nil, err
	}

	extractedAt := e.now().UTC()
	candidates := make([]models.CandidateChallenge, 0, len(records))
	for _, r := range records {
		statement := strings.TrimSpace(r.ChallengeStatement)
		if statement == "" {
			continue
		}
		candidates = append(candidates, models.CandidateChallenge{
			DocID:           doc.DocID,
			OrgID:           doc.OrgID,
			Title:           strings.TrimSpace(r.ChallengeTitle),
			Statement:       statement,
			SDGGoals:        r.SDGGoals,
			Geography:       strings.TrimSpace(r.Geography),
			TargetGroups:    r.TargetGroups,
			Sectors:         r.Sectors,
			ScaleNumbers:    stringifyScale(r.ScaleNumbers),
			RootCauses:      r.RootCauses,
			Constraints:     r.Constraints,
			EvidenceQuotes:  r.EvidenceQuotes,
			Confidence:      r.Confidence,
			ExtractionModel: e.oracle.Model(),
			ExtractedAt:     extractedAt,
			Fingerprint:     e.fingerprinter.Fingerprint(statement),
		})
	}

	e.logger.Debug("extracted candidates", "doc_id", doc.DocID, "chunk", ch.Index, "count", len(candidates))
	return candidates, nil
}

// stringifyScale normalizes the oracle's loosely typed scale_numbers object
// into string values.
func stringifyScale(scale map[string]any) map[string]string {
	if len(scale) == 0 {
		return nil
	}
	out := make(map[string]string, len(scale))
	for k, v := range scale {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
