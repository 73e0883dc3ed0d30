package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/chunker"
	"github.com/dtnitsch/challenge-miner/pkg/db"
	"github.com/dtnitsch/challenge-miner/pkg/extractor"
	"github.com/dtnitsch/challenge-miner/pkg/fingerprint"
	"github.com/dtnitsch/challenge-miner/pkg/langdetect"
	"github.com/dtnitsch/challenge-miner/pkg/lexicon"
	"github.com/dtnitsch/challenge-miner/pkg/oracle"
	"github.com/dtnitsch/challenge-miner/pkg/scorer"
)

// countingOracle returns canned records and counts Extract calls, so tests
// can prove completed documents never hit the oracle again.
type countingOracle struct {
	mu      sync.Mutex
	calls   int
	records []oracle.Record
	err     error
}

func (o *countingOracle) Extract(_ context.Context, _ oracle.Request) ([]oracle.Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.records, nil
}

func (o *countingOracle) Model() string { return "fake-model" }

func (o *countingOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func testConfig() *models.Config {
	return &models.Config{
		Chunker: models.ChunkerConfig{Size: 1000, Overlap: 0.15, Lookback: 150},
		Oracle:  models.OracleConfig{MaxRetries: 2},
		Scoring: models.ScoringConfig{
			MinOverallScore:    40,
			MinConfidence:      0.50,
			MaxSolutionLeakage: 70,
			MaxDocumentAge:     models.Duration(365 * 24 * time.Hour),
			MaxEvidenceQuotes:  2,
		},
		Workers: 2,
	}
}

func newTestPipeline(t *testing.T, o oracle.Oracle) (*Pipeline, *db.DB) {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := lexicon.NewRegistry()
	fp := fingerprint.New(registry)

	return &Pipeline{
		cfg:       cfg,
		db:        database,
		chunker:   chunker.New(cfg.Chunker),
		extractor: extractor.New(o, fp, logger),
		scorer:    scorer.New(registry, cfg.Scoring.MaxDocumentAge.Std()),
		filter: scorer.FilterPolicy{
			MinOverallScore:    cfg.Scoring.MinOverallScore,
			MinConfidence:      cfg.Scoring.MinConfidence,
			MaxSolutionLeakage: cfg.Scoring.MaxSolutionLeakage,
		},
		detector: langdetect.New(registry.Languages()),
		logger:   logger,
	}, database
}

func seedDoc(t *testing.T, database *db.DB, url, text string) int64 {
	t.Helper()

	orgID, err := database.InsertOrg(models.Org{Name: "Test Org"})
	if err != nil {
		t.Fatalf("InsertOrg() failed: %v", err)
	}
	feedID, err := database.InsertFeed(models.SourceFeed{OrgID: orgID, Name: "news", BaseURL: "https://example.org", Active: true})
	if err != nil {
		t.Fatalf("InsertFeed() failed: %v", err)
	}
	docID, err := database.InsertRawDocument(models.RawDocument{
		FeedID:      feedID,
		URL:         url,
		FetchedAt:   time.Now().UTC().Add(-24 * time.Hour),
		HTTPStatus:  200,
		Lang:        "en",
		TextContent: text,
	})
	if err != nil {
		t.Fatalf("InsertRawDocument() failed: %v", err)
	}
	return docID
}

const waterDocText = "The region suffers a severe shortage of clean water and the problem keeps growing worse every dry season."

var waterRecord = oracle.Record{
	ChallengeTitle:     "Water access",
	ChallengeStatement: "An estimated 40,000 people in the region lack access to clean drinking water.",
	SDGGoals:           []int{6},
	Geography:          "Northern region",
	TargetGroups:       []string{"rural communities"},
	Sectors:            []string{"water"},
	EvidenceQuotes:     []string{"40,000 people walk over 5 km for water"},
	Confidence:         0.9,
}

func TestRun_ExtractsAndScores(t *testing.T) {
	o := &countingOracle{records: []oracle.Record{waterRecord}}
	p, database := newTestPipeline(t, o)
	docID := seedDoc(t, database, "https://example.org/a",
		waterDocText)

	summary, err := p.Run(context.Background(), Options{SkipFetch: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if summary.DocsCompleted != 1 {
		t.Errorf("DocsCompleted = %d, want 1", summary.DocsCompleted)
	}
	if summary.ChallengesStored != 1 || summary.ChallengesScored != 1 {
		t.Errorf("challenges stored/scored = %d/%d, want 1/1", summary.ChallengesStored, summary.ChallengesScored)
	}

	st, found, err := database.StateFor(docID, models.StageExtract)
	if err != nil || !found {
		t.Fatalf("extract state missing: found %v, err %v", found, err)
	}
	if st.Status != models.StatusCompleted {
		t.Errorf("extract status = %q", st.Status)
	}
	if st, _, _ := database.StateFor(docID, models.StageScore); st.Status != models.StatusCompleted {
		t.Errorf("score status = %q", st.Status)
	}

	challenges, err := database.ListChallenges()
	if err != nil {
		t.Fatalf("ListChallenges() failed: %v", err)
	}
	if len(challenges) != 1 {
		t.Fatalf("got %d challenges, want 1", len(challenges))
	}
	ch := challenges[0]
	if ch.ExtractionModel != "fake-model" {
		t.Errorf("ExtractionModel = %q", ch.ExtractionModel)
	}
	score, found, err := database.ScoreFor(ch.ChallengeID)
	if err != nil || !found {
		t.Fatalf("score missing: found %v, err %v", found, err)
	}
	if score.OverallScore <= 0 {
		t.Errorf("OverallScore = %d, want > 0", score.OverallScore)
	}
}

func TestRun_CompletedDocumentNeverReExtracted(t *testing.T) {
	o := &countingOracle{records: []oracle.Record{waterRecord}}
	p, database := newTestPipeline(t, o)
	seedDoc(t, database, "https://example.org/a",
		waterDocText)

	if _, err := p.Run(context.Background(), Options{SkipFetch: true}); err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	callsAfterFirst := o.callCount()
	if callsAfterFirst == 0 {
		t.Fatal("oracle was never called")
	}

	if _, err := p.Run(context.Background(), Options{SkipFetch: true}); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if o.callCount() != callsAfterFirst {
		t.Errorf("oracle called %d times after second run, want %d", o.callCount(), callsAfterFirst)
	}
}

func TestRun_OracleOutageFailsDocumentThenRetryRecovers(t *testing.T) {
	o := &countingOracle{err: &models.OracleUnavailableError{Cause: fmt.Errorf("connection refused")}}
	p, database := newTestPipeline(t, o)
	docID := seedDoc(t, database, "https://example.org/a",
		waterDocText)

	summary, err := p.Run(context.Background(), Options{SkipFetch: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.DocsFailed != 1 {
		t.Errorf("DocsFailed = %d, want 1", summary.DocsFailed)
	}

	st, _, _ := database.StateFor(docID, models.StageExtract)
	if st.Status != models.StatusFailed {
		t.Fatalf("extract status = %q, want failed", st.Status)
	}
	if st.ErrorMessage == "" {
		t.Error("failed state has no error message")
	}
	// Transient retries happened within the run, bounded by MaxRetries.
	if o.callCount() != p.cfg.Oracle.MaxRetries {
		t.Errorf("oracle calls = %d, want %d", o.callCount(), p.cfg.Oracle.MaxRetries)
	}

	// A failed document is not auto-retried by a plain re-run.
	if _, err := p.Run(context.Background(), Options{SkipFetch: true}); err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if o.callCount() != p.cfg.Oracle.MaxRetries {
		t.Errorf("failed document was auto-retried")
	}

	// Clearing the failed state makes it eligible again.
	if _, err := database.ClearFailedStates(models.StageExtract); err != nil {
		t.Fatalf("ClearFailedStates() failed: %v", err)
	}
	o.mu.Lock()
	o.err = nil
	o.records = []oracle.Record{waterRecord}
	o.mu.Unlock()

	summary, err = p.Run(context.Background(), Options{SkipFetch: true})
	if err != nil {
		t.Fatalf("retry Run() failed: %v", err)
	}
	if summary.DocsCompleted != 1 {
		t.Errorf("DocsCompleted after retry = %d, want 1", summary.DocsCompleted)
	}
}

func TestRun_BlankDocumentSkipped(t *testing.T) {
	o := &countingOracle{}
	p, database := newTestPipeline(t, o)
	docID := seedDoc(t, database, "https://example.org/blank", "   \n\t  ")

	summary, err := p.Run(context.Background(), Options{SkipFetch: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.DocsSkipped != 1 {
		t.Errorf("DocsSkipped = %d, want 1", summary.DocsSkipped)
	}
	st, _, _ := database.StateFor(docID, models.StageExtract)
	if st.Status != models.StatusSkipped {
		t.Errorf("extract status = %q, want skipped", st.Status)
	}
	if o.callCount() != 0 {
		t.Errorf("oracle called for blank document")
	}
}

func TestRun_ShortDocumentSkipped(t *testing.T) {
	o := &countingOracle{records: []oracle.Record{waterRecord}}
	p, database := newTestPipeline(t, o)
	docID := seedDoc(t, database, "https://example.org/stub",
		"Rural clinics lack reliable refrigeration for vaccines.")

	summary, err := p.Run(context.Background(), Options{SkipFetch: true})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if summary.DocsSkipped != 1 {
		t.Errorf("DocsSkipped = %d, want 1", summary.DocsSkipped)
	}
	st, _, _ := database.StateFor(docID, models.StageExtract)
	if st.Status != models.StatusSkipped {
		t.Errorf("extract status = %q, want skipped", st.Status)
	}
	if o.callCount() != 0 {
		t.Errorf("oracle called %d times for a sub-minimum document", o.callCount())
	}
}

func TestRun_DuplicateStatementsAcrossDocumentsMerge(t *testing.T) {
	o := &countingOracle{records: []oracle.Record{waterRecord}}
	p, database := newTestPipeline(t, o)

	docA := seedDoc(t, database, "https://example.org/a",
		waterDocText)
	if _, err := database.InsertRawDocument(models.RawDocument{
		FeedID:      1,
		URL:         "https://example.org/b",
		FetchedAt:   time.Now().UTC(),
		Lang:        "en",
		TextContent: "Clean water remains out of reach for tens of thousands of people across the northern region every year.",
	}); err != nil {
		t.Fatalf("InsertRawDocument() failed: %v", err)
	}
	_ = docA

	if _, err := p.Run(context.Background(), Options{SkipFetch: true}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	challenges, err := database.ListChallenges()
	if err != nil {
		t.Fatalf("ListChallenges() failed: %v", err)
	}
	if len(challenges) != 1 {
		t.Fatalf("got %d challenges, want 1 merged record", len(challenges))
	}
	if challenges[0].MergedFrom != 2 {
		t.Errorf("MergedFrom = %d, want 2", challenges[0].MergedFrom)
	}
	if !strings.HasPrefix(challenges[0].Statement, "An estimated 40,000 people") {
		t.Errorf("canonical statement = %q", challenges[0].Statement)
	}
}

func TestRun_CancelledContextStopsCleanly(t *testing.T) {
	o := &countingOracle{records: []oracle.Record{waterRecord}}
	p, database := newTestPipeline(t, o)
	seedDoc(t, database, "https://example.org/a",
		waterDocText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, Options{SkipFetch: true}); err == nil {
		t.Fatal("expected context error from cancelled run")
	}
	// Nothing was persisted for the untouched document.
	challenges, err := database.ListChallenges()
	if err != nil {
		t.Fatalf("ListChallenges() failed: %v", err)
	}
	if len(challenges) != 0 {
		t.Errorf("challenges persisted despite cancellation: %d", len(challenges))
	}
}
