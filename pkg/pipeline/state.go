// Package pipeline drives an issue through the fixed PM → Dev → QA
// stage sequence: each stage formats a prompt from the accumulated
// state, calls the chat endpoint, records token usage, and parses the
// structured output (or synthesizes the documented fallback). Errors
// short-circuit the remaining stages; Finalize always runs so every
// run leaves an index row.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/triadworks/triad/pkg/models"
)

// RunState is the transient record carrying one issue through the
// stages. Stage slots fill strictly in order; once Err is set, later
// stages pass the state through untouched.
type RunState struct {
	RunID      string
	StartedAt  time.Time
	SourcePath string

	Issue *models.Issue
	PM    *models.PMOutput
	Dev   *models.DevOutput
	QA    *models.QAOutput

	Tokens []models.StageTokens

	Err error

	// Set by Finalize on success.
	Result     *models.Result
	OutputFile string
}

func newRunState(issue *models.Issue, sourcePath string) *RunState {
	return &RunState{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		SourcePath: sourcePath,
		Issue:      issue,
	}
}

// Verdict returns the QA verdict as an index-row value, nil when the
// run never produced one.
func (s *RunState) Verdict() *string {
	if s.QA == nil {
		return nil
	}
	v := string(s.QA.Verdict)
	return &v
}
