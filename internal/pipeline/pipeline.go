// Package pipeline orchestrates the document flow: fetch feeds, extract
// candidate challenges through the oracle, merge by fingerprint, score.
// Every per-document stage transition lands in the processing_state ledger,
// so an interrupted run resumes without repeating completed work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dtnitsch/challenge-miner/internal/fetch"
	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/chunker"
	"github.com/dtnitsch/challenge-miner/pkg/db"
	"github.com/dtnitsch/challenge-miner/pkg/extractor"
	"github.com/dtnitsch/challenge-miner/pkg/fetcher"
	"github.com/dtnitsch/challenge-miner/pkg/fingerprint"
	"github.com/dtnitsch/challenge-miner/pkg/langdetect"
	"github.com/dtnitsch/challenge-miner/pkg/lexicon"
	"github.com/dtnitsch/challenge-miner/pkg/oracle"
	"github.com/dtnitsch/challenge-miner/pkg/scorer"
)

// defaultBatchSize bounds how many pending documents one run picks up.
const defaultBatchSize = 10

// Options tunes one pipeline run.
type Options struct {
	SkipFetch bool // process already-stored documents only
	BatchSize int  // max documents per run, 0 means default
}

type Pipeline struct {
	cfg       *models.Config
	db        *db.DB
	fetcher   *fetcher.Fetcher
	chunker   *chunker.Chunker
	extractor *extractor.Extractor
	scorer    *scorer.Scorer
	filter    scorer.FilterPolicy
	detector  *langdetect.Detector
	logger    *slog.Logger
}

// New wires all stages from configuration. A missing oracle API key is a
// configuration-level failure and aborts here; per-document failures later
// never abort a run.
func New(cfg *models.Config, database *db.DB, logger *slog.Logger) (*Pipeline, error) {
	if cfg.Oracle.APIKey == "" {
		return nil, fmt.Errorf("oracle API key not configured")
	}

	registry := lexicon.NewRegistry()
	if cfg.Lexicon != "" {
		if err := registry.LoadFile(cfg.Lexicon); err != nil {
			return nil, fmt.Errorf("failed to load lexicon file: %w", err)
		}
	}

	f, err := fetcher.New(cfg.Fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	fp := fingerprint.New(registry)
	return &Pipeline{
		cfg:       cfg,
		db:        database,
		fetcher:   f,
		chunker:   chunker.New(cfg.Chunker),
		extractor: extractor.New(oracle.NewHTTPOracle(cfg.Oracle, logger), fp, logger),
		scorer:    scorer.New(registry, cfg.Scoring.MaxDocumentAge.Std()),
		filter: scorer.FilterPolicy{
			MinOverallScore:    cfg.Scoring.MinOverallScore,
			MinConfidence:      cfg.Scoring.MinConfidence,
			MaxSolutionLeakage: cfg.Scoring.MaxSolutionLeakage,
		},
		detector: langdetect.New(registry.Languages()),
		logger:   logger,
	}, nil
}

// Run executes one pipeline pass: optionally fetch new documents from the
// active feeds, then push every pending document through extract and score.
// Cancelling ctx stops the run gracefully; documents already finished keep
// their ledger rows and the next run picks up the remainder.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	runID := ulid.Make().String()
	logger := p.logger.With("run_id", runID)
	summary := &Summary{RunID: runID, StartedAt: time.Now().UTC()}

	logger.Info("pipeline run starting", "skip_fetch", opts.SkipFetch, "workers", p.cfg.Workers)

	if !opts.SkipFetch {
		if err := p.fetchPhase(ctx, logger, summary); err != nil {
			return summary, err
		}
	}

	if err := p.processDocuments(ctx, logger, summary, opts.batchSize()); err != nil {
		return summary, err
	}

	counts, err := p.db.StageSummary()
	if err != nil {
		return summary, fmt.Errorf("failed to read stage summary: %w", err)
	}
	summary.Stages = counts
	summary.FinishedAt = time.Now().UTC()

	logger.Info("pipeline run finished",
		"docs_fetched", summary.DocsFetched,
		"docs_processed", summary.DocsProcessed,
		"docs_failed", summary.DocsFailed,
		"challenges_stored", summary.ChallengesStored,
		"challenges_kept", summary.ChallengesKept,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary, ctx.Err()
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return defaultBatchSize
}

// fetchPhase pulls new documents from the active feeds before processing.
func (p *Pipeline) fetchPhase(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	stats, err := fetch.Run(ctx, p.fetcher, p.detector, p.db, logger)
	if err != nil {
		return fmt.Errorf("fetch phase failed: %w", err)
	}
	summary.DocsFetched = stats.Stored
	summary.FetchErrors = stats.Errors
	return nil
}

// Refetch re-downloads documents whose fetch previously failed, refreshing
// their rows so a subsequent processing pass can pick them up.
func (p *Pipeline) Refetch(ctx context.Context, ids []int64) (fetch.Stats, error) {
	return fetch.Refetch(ctx, p.fetcher, p.detector, p.db, p.logger, ids)
}

// extractWithRetry calls the oracle for one chunk, retrying transport-level
// failures with exponential backoff. Schema violations are the oracle
// breaking its contract and are never retried.
func (p *Pipeline) extractWithRetry(ctx context.Context, doc models.RawDocument, ch chunker.Chunk) ([]models.CandidateChallenge, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.Oracle.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			p.logger.Warn("retrying oracle call", "doc_id", doc.DocID, "chunk", ch.Index, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		candidates, err := p.extractor.ExtractChunk(ctx, doc, ch)
		if err == nil {
			return candidates, nil
		}
		if !errors.Is(err, models.ErrOracleUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// persistChallenges merges one document's candidates by fingerprint and
// writes them, merging into existing rows where the fingerprint is already
// known. Returns the touched challenge ids. A persistence conflict is
// retried once with a fresh read.
func (p *Pipeline) persistChallenges(candidates []models.CandidateChallenge) ([]int64, error) {
	merged := fingerprint.Merge(candidates)
	groups := make(map[string][]models.CandidateChallenge)
	for _, c := range candidates {
		groups[c.Fingerprint] = append(groups[c.Fingerprint], c)
	}

	maxQuotes := p.cfg.Scoring.MaxEvidenceQuotes
	ids := make([]int64, 0, len(merged))
	for _, ch := range merged {
		ch = fingerprint.CapQuotes(ch, maxQuotes)
		group := groups[ch.Fingerprint]
		mergeFn := func(existing models.Challenge) models.Challenge {
			return fingerprint.CapQuotes(fingerprint.MergeInto(existing, group), maxQuotes)
		}

		id, err := p.db.MergeChallengeByFingerprint(ch, mergeFn)
		if errors.Is(err, models.ErrPersistenceConflict) {
			p.logger.Warn("persistence conflict, retrying merge", "fingerprint", ch.Fingerprint)
			id, err = p.db.MergeChallengeByFingerprint(ch, mergeFn)
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// scoreChallenges computes and stores scores for the given challenge ids.
// Scoring is idempotent: merged-in evidence from later documents simply
// produces a fresh score row.
func (p *Pipeline) scoreChallenges(doc models.RawDocument, ids []int64, summary *Summary) error {
	now := time.Now().UTC()
	for _, id := range ids {
		ch, err := p.db.ChallengeByID(id)
		if err != nil {
			return err
		}

		lang := doc.Lang
		fetchedAt := doc.FetchedAt
		if ch.DocID != doc.DocID {
			// Merged into a challenge canonical to another document; score
			// against that document's language and fetch time.
			if canonical, err := p.db.DocumentByID(ch.DocID); err == nil {
				lang = canonical.Lang
				fetchedAt = canonical.FetchedAt
			}
		}

		score := p.scorer.Score(ch, lang, fetchedAt, now)
		score.ChallengeID = id
		if err := p.db.UpsertScore(score); err != nil {
			return err
		}

		summary.ChallengesScored++
		if p.filter.Keep(ch, score) {
			summary.ChallengesKept++
		} else {
			summary.ChallengesFiltered++
			p.logger.Info("challenge filtered",
				"challenge_id", id,
				"overall", score.OverallScore,
				"confidence", ch.Confidence,
				"leakage", score.SolutionLeakage)
		}
	}
	return nil
}
