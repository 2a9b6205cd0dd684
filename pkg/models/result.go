package models

import "time"

// ResultMetadata is the metadata block of a Result artifact.
type ResultMetadata struct {
	RunID               string    `json:"run_id"`
	TimestampUTC        time.Time `json:"timestamp_utc"`
	DurationSeconds     float64   `json:"duration_seconds"`
	TokenUsage          RunTokens `json:"token_usage"`
	ImplementationNotes []string  `json:"implementation_notes"`
}

// Result is the immutable output artifact of a successful run. It is
// only assembled when all three stages completed (fallback outputs
// included); an errored run produces no Result.
type Result struct {
	RunID        string         `json:"run_id"`
	TimestampUTC time.Time      `json:"timestamp_utc"`
	Issue        *Issue         `json:"issue"`
	PM           *PMOutput      `json:"pm"`
	Dev          *DevOutput     `json:"dev"`
	QA           *QAOutput      `json:"qa"`
	Metadata     ResultMetadata `json:"metadata"`
}

// RunRow is one row of the pipeline_runs index table. A row is written
// exactly once per terminated run and never overwritten.
type RunRow struct {
	RunID       string     `json:"run_id"`
	IssueID     string     `json:"issue_id"`
	Verdict     *string    `json:"verdict"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Error       *string    `json:"error"`
}
