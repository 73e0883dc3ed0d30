package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dtnitsch/challenge-miner/models"
)

// docResult is one worker's outcome for one document.
type docResult struct {
	DocID        int64
	Status       models.Status
	ChallengeIDs []int64
	Scored       int
	Kept         int
	Filtered     int
	Err          error
}

// processDocuments pushes every pending document through extract and score
// on a bounded worker pool. Each worker owns a document's full stage
// sequence; workers share nothing but the database.
func (p *Pipeline) processDocuments(ctx context.Context, logger *slog.Logger, summary *Summary, batchSize int) error {
	docs, err := p.db.DocumentsForStage(models.StageExtract, batchSize)
	if err != nil {
		return err
	}
	// Documents whose extraction finished in an interrupted run still need
	// their score stage.
	scoreOnly, err := p.db.DocumentsForStage(models.StageScore, batchSize)
	if err != nil {
		return err
	}
	pendingExtract := make(map[int64]bool, len(docs))
	for _, d := range docs {
		pendingExtract[d.DocID] = true
	}
	for _, d := range scoreOnly {
		if !pendingExtract[d.DocID] {
			docs = append(docs, d)
		}
	}

	if len(docs) == 0 {
		logger.Info("no pending documents")
		return nil
	}
	logger.Info("processing documents", "count", len(docs), "workers", p.cfg.Workers)

	var wg sync.WaitGroup
	jobs := make(chan models.RawDocument, len(docs))
	results := make(chan docResult, len(docs))

	for w := 1; w <= p.cfg.Workers; w++ {
		wg.Add(1)
		go p.worker(ctx, w, logger, &wg, jobs, results)
	}

	for _, doc := range docs {
		jobs <- doc
	}
	close(jobs)

	wg.Wait()
	close(results)

	for result := range results {
		summary.DocsProcessed++
		switch result.Status {
		case models.StatusCompleted:
			summary.DocsCompleted++
		case models.StatusFailed:
			summary.DocsFailed++
		case models.StatusSkipped:
			summary.DocsSkipped++
		}
		summary.ChallengesStored += len(result.ChallengeIDs)
		summary.ChallengesScored += result.Scored
		summary.ChallengesKept += result.Kept
		summary.ChallengesFiltered += result.Filtered
	}
	return nil
}

// worker drains the job channel. A cancelled context stops it between
// documents; the document being worked on is left in_progress and is
// reclaimed by the next run.
func (p *Pipeline) worker(ctx context.Context, id int, logger *slog.Logger, wg *sync.WaitGroup, jobs <-chan models.RawDocument, results chan<- docResult) {
	defer wg.Done()
	for doc := range jobs {
		if ctx.Err() != nil {
			return
		}
		logger.Info("worker started document", "worker_id", id, "doc_id", doc.DocID, "url", doc.URL)
		result := p.processDocument(ctx, doc)
		if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
			logger.Error("document processing failed", "worker_id", id, "doc_id", doc.DocID, "status", result.Status, "error", result.Err)
		} else {
			logger.Info("worker finished document", "worker_id", id, "doc_id", doc.DocID, "status", result.Status, "challenges", len(result.ChallengeIDs))
		}
		results <- result
	}
}

// processDocument runs one document's stage sequence: chunk, extract, merge,
// score. Stage transitions are written to the ledger before and after the
// work, so the sequence is safe to interrupt at any point.
func (p *Pipeline) processDocument(ctx context.Context, doc models.RawDocument) docResult {
	result := docResult{DocID: doc.DocID}

	extractState, haveExtract, err := p.db.StateFor(doc.DocID, models.StageExtract)
	if err != nil {
		result.Status = models.StatusFailed
		result.Err = err
		return result
	}

	var challengeIDs []int64
	if !haveExtract || extractState.Status == models.StatusInProgress {
		challengeIDs, result.Status, result.Err = p.extractDocument(ctx, doc)
		if result.Status != models.StatusCompleted {
			return result
		}
	} else if extractState.Status != models.StatusCompleted {
		// Extraction failed or was skipped; scoring has nothing to work on.
		reason := "extraction " + string(extractState.Status)
		if err := p.db.UpsertState(doc.DocID, models.StageScore, models.StatusSkipped, reason); err != nil {
			result.Status = models.StatusFailed
			result.Err = err
			return result
		}
		result.Status = models.StatusSkipped
		return result
	} else {
		// Extraction completed in an earlier run; rescore this document's
		// canonical challenges.
		existing, err := p.db.ChallengesForDoc(doc.DocID)
		if err != nil {
			result.Status = models.StatusFailed
			result.Err = err
			return result
		}
		for _, ch := range existing {
			challengeIDs = append(challengeIDs, ch.ChallengeID)
		}
		result.Status = models.StatusCompleted
	}
	result.ChallengeIDs = challengeIDs

	scoreSummary := &Summary{}
	if err := p.scoreChallenges(doc, challengeIDs, scoreSummary); err != nil {
		if stateErr := p.db.UpsertState(doc.DocID, models.StageScore, models.StatusFailed, err.Error()); stateErr != nil {
			p.logger.Error("failed to record score state", "doc_id", doc.DocID, "error", stateErr)
		}
		result.Status = models.StatusFailed
		result.Err = err
		return result
	}
	result.Scored = scoreSummary.ChallengesScored
	result.Kept = scoreSummary.ChallengesKept
	result.Filtered = scoreSummary.ChallengesFiltered
	if err := p.db.UpsertState(doc.DocID, models.StageScore, models.StatusCompleted, ""); err != nil {
		result.Status = models.StatusFailed
		result.Err = err
	}
	return result
}

// extractDocument runs the extract stage: chunk the text, call the oracle
// per chunk, merge candidates by fingerprint, persist. No candidate is
// persisted unless its whole document extracted cleanly.
func (p *Pipeline) extractDocument(ctx context.Context, doc models.RawDocument) ([]int64, models.Status, error) {
	if err := p.db.UpsertState(doc.DocID, models.StageExtract, models.StatusInProgress, ""); err != nil {
		return nil, models.StatusFailed, err
	}

	scanner, err := p.chunker.Split(doc.TextContent)
	if errors.Is(err, models.ErrEmptyInput) {
		if err := p.db.UpsertState(doc.DocID, models.StageExtract, models.StatusSkipped, "document empty or below minimum length"); err != nil {
			return nil, models.StatusFailed, err
		}
		return nil, models.StatusSkipped, nil
	}
	if err != nil {
		p.failStage(doc.DocID, models.StageExtract, err)
		return nil, models.StatusFailed, err
	}

	var candidates []models.CandidateChallenge
	for scanner.Scan() {
		if ctx.Err() != nil {
			// Leave the in_progress row; the next run reclaims the document.
			return nil, models.StatusInProgress, ctx.Err()
		}
		chunkCandidates, err := p.extractWithRetry(ctx, doc, scanner.Chunk())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, models.StatusInProgress, err
			}
			p.failStage(doc.DocID, models.StageExtract, err)
			return nil, models.StatusFailed, err
		}
		candidates = append(candidates, chunkCandidates...)
	}

	ids, err := p.persistChallenges(candidates)
	if err != nil {
		p.failStage(doc.DocID, models.StageExtract, err)
		return nil, models.StatusFailed, err
	}

	if err := p.db.UpsertState(doc.DocID, models.StageExtract, models.StatusCompleted, ""); err != nil {
		return ids, models.StatusFailed, err
	}
	return ids, models.StatusCompleted, nil
}

func (p *Pipeline) failStage(docID int64, stage models.Stage, cause error) {
	if err := p.db.UpsertState(docID, stage, models.StatusFailed, cause.Error()); err != nil {
		p.logger.Error("failed to record stage failure", "doc_id", docID, "stage", stage, "error", err)
	}
}
