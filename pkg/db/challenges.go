package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dtnitsch/challenge-miner/models"
)

const challengeColumns = `
	challenge_id, doc_id, org_id, COALESCE(challenge_title, ''), challenge_statement,
	COALESCE(sdg_goals, ''), COALESCE(geography, ''), COALESCE(target_groups, ''),
	COALESCE(sectors, ''), COALESCE(scale_numbers, ''), COALESCE(root_causes, ''),
	COALESCE(constraints_list, ''), COALESCE(evidence_quotes, ''), confidence,
	COALESCE(extraction_model, ''), COALESCE(extracted_at, ''), statement_fingerprint, merged_from`

func scanChallenge(row interface{ Scan(...any) error }) (models.Challenge, error) {
	var c models.Challenge
	var goals, groups, sectors, scale, causes, constraints, quotes, extractedAt string
	err := row.Scan(&c.ChallengeID, &c.DocID, &c.OrgID, &c.Title, &c.Statement,
		&goals, &c.Geography, &groups, &sectors, &scale, &causes, &constraints, &quotes,
		&c.Confidence, &c.ExtractionModel, &extractedAt, &c.Fingerprint, &c.MergedFrom)
	if err != nil {
		return c, err
	}
	c.SDGGoals = intsFromJSON(sql.NullString{String: goals, Valid: goals != ""})
	c.TargetGroups = stringsFromJSON(sql.NullString{String: groups, Valid: groups != ""})
	c.Sectors = stringsFromJSON(sql.NullString{String: sectors, Valid: sectors != ""})
	c.ScaleNumbers = mapFromJSON(sql.NullString{String: scale, Valid: scale != ""})
	c.RootCauses = stringsFromJSON(sql.NullString{String: causes, Valid: causes != ""})
	c.Constraints = stringsFromJSON(sql.NullString{String: constraints, Valid: constraints != ""})
	c.EvidenceQuotes = stringsFromJSON(sql.NullString{String: quotes, Valid: quotes != ""})
	c.ExtractedAt = timeFromDB(sql.NullString{String: extractedAt, Valid: extractedAt != ""})
	return c, nil
}

// ChallengeByFingerprint loads the persisted challenge for a fingerprint,
// reporting false when none exists.
func (db *DB) ChallengeByFingerprint(fingerprint string) (models.Challenge, bool, error) {
	row := db.QueryRow(`SELECT `+challengeColumns+` FROM challenge WHERE statement_fingerprint = ?`, fingerprint)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return c, false, fmt.Errorf("failed to load challenge by fingerprint: %w", err)
	}
	return c, true, nil
}

// ChallengeByID loads one challenge.
func (db *DB) ChallengeByID(id int64) (models.Challenge, error) {
	row := db.QueryRow(`SELECT `+challengeColumns+` FROM challenge WHERE challenge_id = ?`, id)
	c, err := scanChallenge(row)
	if err != nil {
		return c, fmt.Errorf("failed to load challenge %d: %w", id, err)
	}
	return c, nil
}

// ListChallenges returns all challenges ordered by id.
func (db *DB) ListChallenges() ([]models.Challenge, error) {
	rows, err := db.Query(`SELECT ` + challengeColumns + ` FROM challenge ORDER BY challenge_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	var challenges []models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

// ChallengesForDoc returns challenges whose canonical document is docID.
// Candidates merged into another document's challenge do not appear here;
// the canonical document covers them.
func (db *DB) ChallengesForDoc(docID int64) ([]models.Challenge, error) {
	rows, err := db.Query(`SELECT `+challengeColumns+` FROM challenge WHERE doc_id = ? ORDER BY challenge_id`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges for document: %w", err)
	}
	defer rows.Close()

	var challenges []models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

// DeleteChallenge removes a challenge; its score cascades.
func (db *DB) DeleteChallenge(id int64) error {
	_, err := db.Exec("DELETE FROM challenge WHERE challenge_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// MergeChallengeByFingerprint inserts c, or — when a challenge with the
// same fingerprint already exists — replaces it with merge(existing). The
// read-merge-write runs inside one transaction, so two workers discovering
// the same fingerprint concurrently cannot create duplicate rows. Lock
// contention surfaces as models.ErrPersistenceConflict; the caller retries
// once with a fresh read.
func (db *DB) MergeChallengeByFingerprint(c models.Challenge, merge func(existing models.Challenge) models.Challenge) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		if isBusy(err) {
			return 0, fmt.Errorf("%w: %v", models.ErrPersistenceConflict, err)
		}
		return 0, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+challengeColumns+` FROM challenge WHERE statement_fingerprint = ?`, c.Fingerprint)
	existing, err := scanChallenge(row)

	var challengeID int64
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.Exec(`
			INSERT INTO challenge
			(doc_id, org_id, challenge_title, challenge_statement, sdg_goals, geography,
			 target_groups, sectors, scale_numbers, root_causes, constraints_list,
			 evidence_quotes, confidence, extraction_model, extracted_at,
			 statement_fingerprint, merged_from)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.DocID, c.OrgID, nullable(c.Title), c.Statement, nullable(toJSON(c.SDGGoals)),
			nullable(c.Geography), nullable(toJSON(c.TargetGroups)), nullable(toJSON(c.Sectors)),
			nullable(toJSON(c.ScaleNumbers)), nullable(toJSON(c.RootCauses)),
			nullable(toJSON(c.Constraints)), nullable(toJSON(c.EvidenceQuotes)), c.Confidence,
			nullable(c.ExtractionModel), timeToDB(c.ExtractedAt), c.Fingerprint, c.MergedFrom)
		if err != nil {
			if isBusy(err) {
				return 0, fmt.Errorf("%w: %v", models.ErrPersistenceConflict, err)
			}
			return 0, fmt.Errorf("failed to insert challenge: %w", err)
		}
		challengeID, err = result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get challenge id: %w", err)
		}

	case err == nil:
		merged := merge(existing)
		_, err := tx.Exec(`
			UPDATE challenge SET
				sdg_goals = ?, geography = ?, target_groups = ?, sectors = ?,
				scale_numbers = ?, root_causes = ?, constraints_list = ?,
				evidence_quotes = ?, confidence = ?, merged_from = ?
			WHERE challenge_id = ?
		`, nullable(toJSON(merged.SDGGoals)), nullable(merged.Geography),
			nullable(toJSON(merged.TargetGroups)), nullable(toJSON(merged.Sectors)),
			nullable(toJSON(merged.ScaleNumbers)), nullable(toJSON(merged.RootCauses)),
			nullable(toJSON(merged.Constraints)), nullable(toJSON(merged.EvidenceQuotes)),
			merged.Confidence, merged.MergedFrom, existing.ChallengeID)
		if err != nil {
			if isBusy(err) {
				return 0, fmt.Errorf("%w: %v", models.ErrPersistenceConflict, err)
			}
			return 0, fmt.Errorf("failed to update merged challenge: %w", err)
		}
		challengeID = existing.ChallengeID

	default:
		return 0, fmt.Errorf("failed to read challenge for merge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return 0, fmt.Errorf("%w: %v", models.ErrPersistenceConflict, err)
		}
		return 0, fmt.Errorf("failed to commit merge: %w", err)
	}
	return challengeID, nil
}

// UpsertScore stores or replaces the score for a challenge.
func (db *DB) UpsertScore(s models.ChallengeScore) error {
	_, err := db.Exec(`
		INSERT INTO challenge_score
		(challenge_id, challenge_density, solution_leakage, specificity,
		 evidence_strength, recency_score, overall_score, scoring_notes, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (challenge_id) DO UPDATE SET
			challenge_density = excluded.challenge_density,
			solution_leakage = excluded.solution_leakage,
			specificity = excluded.specificity,
			evidence_strength = excluded.evidence_strength,
			recency_score = excluded.recency_score,
			overall_score = excluded.overall_score,
			scoring_notes = excluded.scoring_notes,
			scored_at = excluded.scored_at
	`, s.ChallengeID, s.ChallengeDensity, s.SolutionLeakage, s.Specificity,
		s.EvidenceStrength, s.RecencyScore, s.OverallScore, nullable(s.ScoringNotes), timeToDB(s.ScoredAt))
	if err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}
	return nil
}

// ScoreFor loads the score row for a challenge, reporting false when the
// challenge is unscored.
func (db *DB) ScoreFor(challengeID int64) (models.ChallengeScore, bool, error) {
	var s models.ChallengeScore
	var scoredAt string
	err := db.QueryRow(`
		SELECT challenge_id, challenge_density, solution_leakage, specificity,
		       evidence_strength, recency_score, overall_score, COALESCE(scoring_notes, ''), COALESCE(scored_at, '')
		FROM challenge_score WHERE challenge_id = ?
	`, challengeID).Scan(&s.ChallengeID, &s.ChallengeDensity, &s.SolutionLeakage, &s.Specificity,
		&s.EvidenceStrength, &s.RecencyScore, &s.OverallScore, &s.ScoringNotes, &scoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("failed to load score: %w", err)
	}
	s.ScoredAt = timeFromDB(sql.NullString{String: scoredAt, Valid: scoredAt != ""})
	return s, true, nil
}
