// Package fetch walks the active source feeds, discovers pages one level
// below each base URL, and stores new documents. It is used both by the
// standalone fetch command and by the pipeline's fetch phase.
package fetch

import (
	"context"
	"log/slog"

	"github.com/dtnitsch/challenge-miner/models"
	"github.com/dtnitsch/challenge-miner/pkg/db"
	"github.com/dtnitsch/challenge-miner/pkg/fetcher"
	"github.com/dtnitsch/challenge-miner/pkg/langdetect"
)

// Stats counts what one fetch pass did.
type Stats struct {
	Feeds      int
	Discovered int
	Stored     int
	Duplicates int
	Errors     int
}

// Run fetches all active feeds. Per-URL failures are counted, logged, and
// skipped; only feed-listing failures abort. A cancelled context stops
// between URLs without error.
func Run(ctx context.Context, f *fetcher.Fetcher, detector *langdetect.Detector, database *db.DB, logger *slog.Logger) (Stats, error) {
	var stats Stats

	feeds, err := database.ActiveFeeds()
	if err != nil {
		return stats, err
	}
	stats.Feeds = len(feeds)
	logger.Info("fetch starting", "feeds", len(feeds))

	for _, feed := range feeds {
		if ctx.Err() != nil {
			return stats, nil
		}

		links, err := f.DiscoverLinks(ctx, feed.BaseURL)
		if err != nil {
			logger.Error("feed discovery failed", "feed_id", feed.FeedID, "base_url", feed.BaseURL, "error", err)
			stats.Errors++
			continue
		}
		stats.Discovered += len(links)
		logger.Info("discovered links", "feed_id", feed.FeedID, "count", len(links))

		for _, link := range links {
			if ctx.Err() != nil {
				return stats, nil
			}
			fetchOne(ctx, f, detector, database, logger, feed, link, &stats)
		}
	}
	return stats, nil
}

// Refetch re-downloads documents whose fetch previously failed, identified
// by id, refreshing their rows in place. Content that now duplicates another
// document is counted as a duplicate and leaves the row as it was.
func Refetch(ctx context.Context, f *fetcher.Fetcher, detector *langdetect.Detector, database *db.DB, logger *slog.Logger, ids []int64) (Stats, error) {
	var stats Stats
	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, nil
		}
		doc, err := database.DocumentByID(id)
		if err != nil {
			logger.Error("failed to load document for refetch", "doc_id", id, "error", err)
			stats.Errors++
			continue
		}
		stats.Discovered++
		feed := models.SourceFeed{FeedID: doc.FeedID, BaseURL: doc.ParentURL}
		fetchOne(ctx, f, detector, database, logger, feed, doc.URL, &stats)
	}
	return stats, nil
}

func fetchOne(ctx context.Context, f *fetcher.Fetcher, detector *langdetect.Detector, database *db.DB, logger *slog.Logger, feed models.SourceFeed, link string, stats *Stats) {
	result, err := f.Fetch(ctx, link)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("fetch failed", "url", link, "status", result.HTTPStatus, "error", err)
		recordFailedFetch(database, logger, feed, link, result, err)
		stats.Errors++
		return
	}

	if !result.FromCache {
		known, err := database.HasDocumentWithHash(result.HashSHA256)
		if err != nil {
			logger.Error("hash lookup failed", "url", link, "error", err)
			stats.Errors++
			return
		}
		if known {
			logger.Debug("duplicate content, skipping", "url", link)
			stats.Duplicates++
			return
		}
	}

	doc := models.RawDocument{
		FeedID:       feed.FeedID,
		URL:          result.URL,
		CanonicalURL: result.CanonicalURL,
		FetchedAt:    result.FetchedAt,
		HTTPStatus:   result.HTTPStatus,
		ContentType:  result.ContentType,
		Lang:         detector.Detect(result.TextContent),
		Title:        result.Title,
		HashSHA256:   result.HashSHA256,
		TextContent:  result.TextContent,
		CrawlDepth:   1,
		ParentURL:    feed.BaseURL,
	}
	docID, err := database.UpsertFetchedDocument(doc)
	if err != nil {
		logger.Error("failed to store document", "url", link, "error", err)
		stats.Errors++
		return
	}
	if err := database.UpsertState(docID, models.StageFetch, models.StatusCompleted, ""); err != nil {
		logger.Error("failed to record fetch state", "doc_id", docID, "error", err)
		stats.Errors++
		return
	}
	stats.Stored++
	logger.Info("stored document", "doc_id", docID, "url", result.URL, "lang", doc.Lang, "cached", result.FromCache)
}

// recordFailedFetch persists the failure as a raw document row with its
// error text and a failed fetch ledger entry, so status reports it and an
// explicit retry can refetch the URL.
func recordFailedFetch(database *db.DB, logger *slog.Logger, feed models.SourceFeed, link string, result fetcher.Result, fetchErr error) {
	docID, err := database.InsertRawDocument(models.RawDocument{
		FeedID:     feed.FeedID,
		URL:        link,
		FetchedAt:  result.FetchedAt,
		HTTPStatus: result.HTTPStatus,
		CrawlDepth: 1,
		ParentURL:  feed.BaseURL,
		Error:      fetchErr.Error(),
	})
	if err != nil {
		logger.Error("failed to store fetch failure", "url", link, "error", err)
		return
	}
	if err := database.UpsertState(docID, models.StageFetch, models.StatusFailed, fetchErr.Error()); err != nil {
		logger.Error("failed to record fetch state", "doc_id", docID, "error", err)
	}
}
