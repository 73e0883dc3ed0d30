package models

import "time"

// Stage identifies one step of the per-document pipeline.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageScore   Stage = "score"
)

// Status is the state of a (document, stage) pair. Pending is implicit:
// no processing_state row exists for the pair.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ProcessingState is one row of the resumability ledger, unique per
// (document, stage). A completed pair must never be reprocessed.
type ProcessingState struct {
	StateID      int64     `json:"state_id"`
	DocID        int64     `json:"doc_id"`
	Stage        Stage     `json:"stage"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// StageCounts aggregates ledger rows for the run summary.
type StageCounts struct {
	Stage     Stage `json:"stage"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
}
