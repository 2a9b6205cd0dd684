package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triad/pkg/models"
)

func sampleResult() *models.Result {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &models.Result{
		RunID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		TimestampUTC: ts,
		Issue: &models.Issue{
			IssueID: "acme/widget#101", Repo: "acme/widget", IssueNumber: 101,
			Title: "Add dark mode", URL: "u", Source: models.SourceMock,
		},
		PM:  &models.PMOutput{Summary: "s", AcceptanceCriteria: []string{"a"}, Plan: []string{"p"}, Assumptions: []string{}},
		Dev: &models.DevOutput{Files: []models.FileArtifact{}, Notes: []string{}},
		QA:  &models.QAOutput{Verdict: models.VerdictPass, Findings: []string{}, SuggestedChanges: []string{}},
		Metadata: models.ResultMetadata{
			RunID: "0f8fad5b-d9cb-469f-a165-70867728950e", TimestampUTC: ts,
			DurationSeconds: 1.5, ImplementationNotes: []string{"note"},
		},
	}
}

func TestFilename(t *testing.T) {
	name := Filename(sampleResult())
	assert.Equal(t, "result_2026-03-14_09-26-53_0f8fad5b.json", name)
	assert.Regexp(t, regexp.MustCompile(`^result_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}_[0-9a-f-]{8}\.json$`), name)
}

func TestWriteResult(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	filename, err := w.WriteResult(sampleResult())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)

	// Two-space indentation, trailing newline.
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"run_id\""))
	assert.True(t, strings.HasSuffix(string(data), "}\n"))

	var round models.Result
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, "0f8fad5b-d9cb-469f-a165-70867728950e", round.RunID)
	assert.Equal(t, models.VerdictPass, round.QA.Verdict)
}

func TestWriteResultLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	_, err := w.WriteResult(sampleResult())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".tmp-"))
}

func TestWriteResultFailsOnMissingDirectory(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "absent"))
	_, err := w.WriteResult(sampleResult())
	assert.Error(t, err)
}

func TestAtomicWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.json")
	require.NoError(t, AtomicWrite(path, []byte("first")))
	require.NoError(t, AtomicWrite(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
