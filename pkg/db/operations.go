package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtnitsch/challenge-miner/models"
)

// InsertOrg inserts an organization, returning the existing org_id when the
// name is already present.
func (db *DB) InsertOrg(org models.Org) (int64, error) {
	var existingID int64
	err := db.QueryRow("SELECT org_id FROM org WHERE org_name = ?", org.Name).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing org: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO org (org_name, org_type, org_country, org_website)
		VALUES (?, ?, ?, ?)
	`, org.Name, nullable(org.Type), nullable(org.Country), nullable(org.Website))
	if err != nil {
		return 0, fmt.Errorf("failed to insert org: %w", err)
	}
	return result.LastInsertId()
}

// InsertFeed inserts a source feed for an organization.
func (db *DB) InsertFeed(feed models.SourceFeed) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO source_feed (org_id, feed_name, feed_type, base_url, crawl_policy, active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, feed.OrgID, feed.Name, nullable(feed.Type), feed.BaseURL, nullable(feed.CrawlPolicy), feed.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to insert feed: %w", err)
	}
	return result.LastInsertId()
}

// ActiveFeeds returns all feeds marked active.
func (db *DB) ActiveFeeds() ([]models.SourceFeed, error) {
	rows, err := db.Query(`
		SELECT feed_id, org_id, feed_name, COALESCE(feed_type, ''), base_url, COALESCE(crawl_policy, ''), active
		FROM source_feed WHERE active = 1 ORDER BY feed_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []models.SourceFeed
	for rows.Next() {
		var f models.SourceFeed
		if err := rows.Scan(&f.FeedID, &f.OrgID, &f.Name, &f.Type, &f.BaseURL, &f.CrawlPolicy, &f.Active); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// InsertRawDocument stores a fetched document, returning the existing
// doc_id when the URL was fetched before. Documents are immutable after
// creation; only rows carrying a fetch error may later be refreshed through
// UpsertFetchedDocument.
func (db *DB) InsertRawDocument(doc models.RawDocument) (int64, error) {
	var existingID int64
	err := db.QueryRow("SELECT doc_id FROM raw_document WHERE url = ?", doc.URL).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing document: %w", err)
	}
	return db.insertDocumentRow(doc)
}

// UpsertFetchedDocument stores a successfully fetched document. A URL whose
// existing row recorded a fetch failure is refreshed in place with the new
// content and its error cleared; a row with content is returned untouched.
func (db *DB) UpsertFetchedDocument(doc models.RawDocument) (int64, error) {
	var existingID int64
	var existingErr string
	err := db.QueryRow("SELECT doc_id, COALESCE(error, '') FROM raw_document WHERE url = ?", doc.URL).
		Scan(&existingID, &existingErr)
	if err == nil {
		if existingErr == "" {
			return existingID, nil
		}
		_, err = db.Exec(`
			UPDATE raw_document SET
				canonical_url = ?, fetched_at = ?, http_status = ?, content_type = ?,
				lang = ?, title = ?, hash_sha256 = ?, text_content = ?, error = NULL
			WHERE doc_id = ?
		`, nullable(doc.CanonicalURL), timeToDB(doc.FetchedAt), doc.HTTPStatus,
			nullable(doc.ContentType), nullable(doc.Lang), nullable(doc.Title),
			nullable(doc.HashSHA256), nullable(doc.TextContent), existingID)
		if err != nil {
			return 0, fmt.Errorf("failed to refresh document: %w", err)
		}
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check existing document: %w", err)
	}
	return db.insertDocumentRow(doc)
}

func (db *DB) insertDocumentRow(doc models.RawDocument) (int64, error) {
	result, err := db.Exec(`
		INSERT INTO raw_document
		(feed_id, url, canonical_url, fetched_at, http_status, content_type, lang, title,
		 hash_sha256, text_content, metadata, crawl_depth, parent_url, is_primary_source, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.FeedID, doc.URL, nullable(doc.CanonicalURL), timeToDB(doc.FetchedAt), doc.HTTPStatus,
		nullable(doc.ContentType), nullable(doc.Lang), nullable(doc.Title), nullable(doc.HashSHA256),
		nullable(doc.TextContent), nullable(toJSON(doc.Metadata)), doc.CrawlDepth,
		nullable(doc.ParentURL), doc.IsPrimarySource, nullable(doc.Error))
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return result.LastInsertId()
}

// HasDocumentWithHash reports whether any document carries the content
// hash, enabling duplicate-fetch detection independent of URL.
func (db *DB) HasDocumentWithHash(hash string) (bool, error) {
	var docID int64
	err := db.QueryRow("SELECT doc_id FROM raw_document WHERE hash_sha256 = ? LIMIT 1", hash).Scan(&docID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document hash: %w", err)
	}
	return true, nil
}

const documentColumns = `
	rd.doc_id, rd.feed_id, rd.url, COALESCE(rd.canonical_url, ''), COALESCE(rd.fetched_at, ''),
	COALESCE(rd.http_status, 0), COALESCE(rd.content_type, ''), COALESCE(rd.lang, ''),
	COALESCE(rd.title, ''), COALESCE(rd.hash_sha256, ''), COALESCE(rd.text_content, ''),
	COALESCE(rd.metadata, ''), rd.crawl_depth, COALESCE(rd.parent_url, ''),
	rd.is_primary_source, COALESCE(rd.error, ''), sf.org_id, o.org_name`

func scanDocument(row interface{ Scan(...any) error }) (models.RawDocument, error) {
	var d models.RawDocument
	var fetchedAt, metadata string
	err := row.Scan(&d.DocID, &d.FeedID, &d.URL, &d.CanonicalURL, &fetchedAt,
		&d.HTTPStatus, &d.ContentType, &d.Lang, &d.Title, &d.HashSHA256, &d.TextContent,
		&metadata, &d.CrawlDepth, &d.ParentURL, &d.IsPrimarySource, &d.Error, &d.OrgID, &d.OrgName)
	if err != nil {
		return d, err
	}
	d.FetchedAt = timeFromDB(sql.NullString{String: fetchedAt, Valid: fetchedAt != ""})
	if metadata != "" {
		d.Metadata = mapFromJSON(sql.NullString{String: metadata, Valid: true})
	}
	return d, nil
}

// DocumentsForStage returns documents with text that are still pending for
// the stage: no ledger row, or an in_progress row left behind by an
// interrupted run. Completed, skipped, and failed documents are never picked
// up again; failed rows need an explicit retry.
func (db *DB) DocumentsForStage(stage models.Stage, limit int) ([]models.RawDocument, error) {
	rows, err := db.Query(`
		SELECT `+documentColumns+`
		FROM raw_document rd
		JOIN source_feed sf ON rd.feed_id = sf.feed_id
		JOIN org o ON sf.org_id = o.org_id
		LEFT JOIN processing_state ps ON rd.doc_id = ps.doc_id AND ps.stage = ?
		WHERE (ps.state_id IS NULL OR ps.status = ?)
			AND rd.text_content IS NOT NULL AND rd.text_content != ''
		ORDER BY rd.doc_id
		LIMIT ?
	`, string(stage), string(models.StatusInProgress), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.RawDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DocumentByID loads one document with its org context.
func (db *DB) DocumentByID(docID int64) (models.RawDocument, error) {
	row := db.QueryRow(`
		SELECT `+documentColumns+`
		FROM raw_document rd
		JOIN source_feed sf ON rd.feed_id = sf.feed_id
		JOIN org o ON sf.org_id = o.org_id
		WHERE rd.doc_id = ?
	`, docID)
	return scanDocument(row)
}

// UpsertState records a stage transition for a document. Unique per
// (doc_id, stage); the latest status wins.
func (db *DB) UpsertState(docID int64, stage models.Stage, status models.Status, errMsg string) error {
	_, err := db.Exec(`
		INSERT INTO processing_state (doc_id, stage, status, error_message, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (doc_id, stage) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			processed_at = excluded.processed_at
	`, docID, string(stage), string(status), nullable(errMsg), timeToDB(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert processing state: %w", err)
	}
	return nil
}

// StateFor returns the ledger row for a (document, stage) pair, reporting
// false when the pair is still pending.
func (db *DB) StateFor(docID int64, stage models.Stage) (models.ProcessingState, bool, error) {
	var st models.ProcessingState
	var processedAt string
	err := db.QueryRow(`
		SELECT state_id, doc_id, stage, status, COALESCE(error_message, ''), COALESCE(processed_at, '')
		FROM processing_state WHERE doc_id = ? AND stage = ?
	`, docID, string(stage)).Scan(&st.StateID, &st.DocID, &st.Stage, &st.Status, &st.ErrorMessage, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("failed to load processing state: %w", err)
	}
	st.ProcessedAt = timeFromDB(sql.NullString{String: processedAt, Valid: processedAt != ""})
	return st, true, nil
}

// ClearFailedStates removes failed ledger rows for a stage so an explicit
// retry run can pick those documents up again. Returns the affected doc ids.
func (db *DB) ClearFailedStates(stage models.Stage) ([]int64, error) {
	rows, err := db.Query(`
		SELECT doc_id FROM processing_state WHERE stage = ? AND status = ?
	`, string(stage), string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query failed states: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}
	_, err = db.Exec(`
		DELETE FROM processing_state WHERE stage = ? AND status = ?
	`, string(stage), string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to clear failed states: %w", err)
	}
	return ids, nil
}

// StageSummary aggregates the ledger into per-stage outcome counts.
func (db *DB) StageSummary() ([]models.StageCounts, error) {
	rows, err := db.Query(`
		SELECT stage,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END)
		FROM processing_state GROUP BY stage ORDER BY stage
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage summary: %w", err)
	}
	defer rows.Close()

	var counts []models.StageCounts
	for rows.Next() {
		var c models.StageCounts
		if err := rows.Scan(&c.Stage, &c.Completed, &c.Failed, &c.Skipped); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Failures lists failed ledger rows with their error messages.
func (db *DB) Failures() ([]models.ProcessingState, error) {
	rows, err := db.Query(`
		SELECT state_id, doc_id, stage, status, COALESCE(error_message, ''), COALESCE(processed_at, '')
		FROM processing_state WHERE status = 'failed' ORDER BY doc_id, stage
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []models.ProcessingState
	for rows.Next() {
		var st models.ProcessingState
		var processedAt string
		if err := rows.Scan(&st.StateID, &st.DocID, &st.Stage, &st.Status, &st.ErrorMessage, &processedAt); err != nil {
			return nil, err
		}
		st.ProcessedAt = timeFromDB(sql.NullString{String: processedAt, Valid: processedAt != ""})
		failures = append(failures, st)
	}
	return failures, rows.Err()
}

// isBusy reports whether err is SQLite lock contention, which maps to the
// retryable persistence-conflict class.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
