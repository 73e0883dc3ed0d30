package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/db"
	"github.com/dtnitsch/challenge-miner/pkg/fetcher"
	"github.com/dtnitsch/challenge-miner/pkg/langdetect"
	"github.com/dtnitsch/challenge-miner/pkg/lexicon"
)

const feedHTML = `<html><body><a href="/article">Latest report</a></body></html>`

const fetchArticleHTML = `<html>
<head><title>Water report</title></head>
<body><article>
<p>Rural communities in the northern region lack access to clean water.
An estimated 40,000 people walk more than five kilometers each day to the
nearest functioning well, and the shortage worsens every dry season.</p>
</article></body>
</html>`

func newFetchHarness(t *testing.T) (*fetcher.Fetcher, *langdetect.Detector, *db.DB, *slog.Logger) {
	t.Helper()

	f, err := fetcher.New(models.FetcherConfig{
		Timeout:    models.Duration(5 * time.Second),
		MaxPerFeed: 5,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("fetcher.New() failed: %v", err)
	}

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	detector := langdetect.New(lexicon.NewRegistry().Languages())
	return f, detector, database, slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedFeed(t *testing.T, database *db.DB, baseURL string) int64 {
	t.Helper()

	orgID, err := database.InsertOrg(models.Org{Name: "Test Org"})
	if err != nil {
		t.Fatalf("InsertOrg() failed: %v", err)
	}
	feedID, err := database.InsertFeed(models.SourceFeed{OrgID: orgID, Name: "news", BaseURL: baseURL, Active: true})
	if err != nil {
		t.Fatalf("InsertFeed() failed: %v", err)
	}
	return feedID
}

func TestRun_StoresDiscoveredDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/article" {
			io.WriteString(w, fetchArticleHTML)
			return
		}
		io.WriteString(w, feedHTML)
	}))
	defer server.Close()

	f, detector, database, logger := newFetchHarness(t)
	seedFeed(t, database, server.URL)

	stats, err := Run(context.Background(), f, detector, database, logger)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.Stored != 1 || stats.Errors != 0 {
		t.Fatalf("stats = %+v, want 1 stored, 0 errors", stats)
	}

	docs, err := database.DocumentsForStage(models.StageExtract, 10)
	if err != nil {
		t.Fatalf("DocumentsForStage() failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d pending documents, want 1", len(docs))
	}
	if !strings.Contains(docs[0].TextContent, "clean water") {
		t.Errorf("stored text = %q", docs[0].TextContent)
	}
	if st, _, _ := database.StateFor(docs[0].DocID, models.StageFetch); st.Status != models.StatusCompleted {
		t.Errorf("fetch status = %q, want completed", st.Status)
	}
}

// A failed download must leave a document row carrying the error and a
// failed fetch ledger entry, and an explicit refetch of those ids must
// refresh the row in place once the source recovers.
func TestRun_FailedFetchPersistedAndRefetchRecovers(t *testing.T) {
	broken := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/article" {
			if broken {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, fetchArticleHTML)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, feedHTML)
	}))
	defer server.Close()

	f, detector, database, logger := newFetchHarness(t)
	seedFeed(t, database, server.URL)

	stats, err := Run(context.Background(), f, detector, database, logger)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.Errors != 1 || stats.Stored != 0 {
		t.Fatalf("stats = %+v, want 1 error, 0 stored", stats)
	}

	failures, err := database.Failures()
	if err != nil {
		t.Fatalf("Failures() failed: %v", err)
	}
	if len(failures) != 1 || failures[0].Stage != models.StageFetch {
		t.Fatalf("failures = %+v, want one fetch failure", failures)
	}

	doc, err := database.DocumentByID(failures[0].DocID)
	if err != nil {
		t.Fatalf("DocumentByID() failed: %v", err)
	}
	if doc.Error == "" {
		t.Error("failed document has no error text")
	}
	if doc.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want 503", doc.HTTPStatus)
	}
	if doc.TextContent != "" {
		t.Errorf("failed document has text: %q", doc.TextContent)
	}

	// Failed rows never surface as processing work.
	if docs, _ := database.DocumentsForStage(models.StageExtract, 10); len(docs) != 0 {
		t.Errorf("failed document offered for extraction")
	}

	ids, err := database.ClearFailedStates(models.StageFetch)
	if err != nil {
		t.Fatalf("ClearFailedStates() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != doc.DocID {
		t.Fatalf("cleared ids = %v, want [%d]", ids, doc.DocID)
	}

	broken = false
	stats, err = Refetch(context.Background(), f, detector, database, logger, ids)
	if err != nil {
		t.Fatalf("Refetch() failed: %v", err)
	}
	if stats.Stored != 1 || stats.Errors != 0 {
		t.Fatalf("refetch stats = %+v, want 1 stored, 0 errors", stats)
	}

	refreshed, err := database.DocumentByID(doc.DocID)
	if err != nil {
		t.Fatalf("DocumentByID() failed: %v", err)
	}
	if refreshed.Error != "" {
		t.Errorf("error not cleared after refetch: %q", refreshed.Error)
	}
	if !strings.Contains(refreshed.TextContent, "clean water") {
		t.Errorf("refetched text = %q", refreshed.TextContent)
	}
	if st, _, _ := database.StateFor(doc.DocID, models.StageFetch); st.Status != models.StatusCompleted {
		t.Errorf("fetch status after refetch = %q, want completed", st.Status)
	}
}
