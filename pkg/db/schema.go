package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Source organizations
CREATE TABLE IF NOT EXISTS org (
    org_id INTEGER PRIMARY KEY AUTOINCREMENT,
    org_name TEXT NOT NULL UNIQUE,
    org_type TEXT,
    org_country TEXT,
    org_website TEXT
);

-- Crawlable entry points per organization
CREATE TABLE IF NOT EXISTS source_feed (
    feed_id INTEGER PRIMARY KEY AUTOINCREMENT,
    org_id INTEGER NOT NULL,
    feed_name TEXT NOT NULL,
    feed_type TEXT,
    base_url TEXT NOT NULL,
    crawl_policy TEXT,
    active BOOLEAN NOT NULL DEFAULT 1,
    FOREIGN KEY (org_id) REFERENCES org(org_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_feed_org ON source_feed(org_id);
CREATE INDEX IF NOT EXISTS idx_feed_active ON source_feed(active);

-- Fetched documents; url is unique, hash_sha256 catches duplicate fetches
-- under different URLs
CREATE TABLE IF NOT EXISTS raw_document (
    doc_id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_id INTEGER NOT NULL,
    url TEXT NOT NULL UNIQUE,
    canonical_url TEXT,
    fetched_at TIMESTAMP,
    http_status INTEGER,
    content_type TEXT,
    lang TEXT,
    title TEXT,
    hash_sha256 TEXT,
    text_content TEXT,
    metadata TEXT,
    crawl_depth INTEGER DEFAULT 0,
    parent_url TEXT,
    is_primary_source BOOLEAN DEFAULT 1,
    error TEXT,
    FOREIGN KEY (feed_id) REFERENCES source_feed(feed_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_document_feed ON raw_document(feed_id);
CREATE INDEX IF NOT EXISTS idx_document_hash ON raw_document(hash_sha256);

-- Deduplicated challenges; one row per distinct statement fingerprint
CREATE TABLE IF NOT EXISTS challenge (
    challenge_id INTEGER PRIMARY KEY AUTOINCREMENT,
    doc_id INTEGER NOT NULL,
    org_id INTEGER NOT NULL,
    challenge_title TEXT,
    challenge_statement TEXT NOT NULL,
    sdg_goals TEXT,
    geography TEXT,
    target_groups TEXT,
    sectors TEXT,
    scale_numbers TEXT,
    root_causes TEXT,
    constraints_list TEXT,
    evidence_quotes TEXT,
    confidence REAL NOT NULL DEFAULT 0,
    extraction_model TEXT,
    extracted_at TIMESTAMP,
    statement_fingerprint TEXT NOT NULL UNIQUE,
    merged_from INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (doc_id) REFERENCES raw_document(doc_id) ON DELETE CASCADE,
    FOREIGN KEY (org_id) REFERENCES org(org_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_challenge_doc ON challenge(doc_id);
CREATE INDEX IF NOT EXISTS idx_challenge_fingerprint ON challenge(statement_fingerprint);

-- Quality scores; lifecycle-bound to their challenge
CREATE TABLE IF NOT EXISTS challenge_score (
    challenge_id INTEGER PRIMARY KEY,
    challenge_density INTEGER NOT NULL,
    solution_leakage INTEGER NOT NULL,
    specificity INTEGER NOT NULL,
    evidence_strength INTEGER NOT NULL,
    recency_score INTEGER NOT NULL,
    overall_score INTEGER NOT NULL,
    scoring_notes TEXT,
    scored_at TIMESTAMP,
    FOREIGN KEY (challenge_id) REFERENCES challenge(challenge_id) ON DELETE CASCADE
);

-- Resumability ledger; pending is implicit (no row)
CREATE TABLE IF NOT EXISTS processing_state (
    state_id INTEGER PRIMARY KEY AUTOINCREMENT,
    doc_id INTEGER NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    error_message TEXT,
    processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (doc_id) REFERENCES raw_document(doc_id) ON DELETE CASCADE,
    UNIQUE(doc_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_state_stage ON processing_state(stage, status);
`
