package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triad/pkg/database"
	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/models"
)

func newTestService(t *testing.T) *RunService {
	t.Helper()
	client, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRunService(client)
}

func sampleRow(runID string, verdict *string, errText *string) models.RunRow {
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return models.RunRow{
		RunID:       runID,
		IssueID:     "acme/widget#101",
		Verdict:     verdict,
		StartedAt:   started,
		CompletedAt: started.Add(12 * time.Second),
		Error:       errText,
	}
}

func sampleStoredResult(runID string) *models.Result {
	return &models.Result{
		RunID:        runID,
		TimestampUTC: time.Date(2026, 3, 14, 9, 0, 12, 0, time.UTC),
		Issue: &models.Issue{
			IssueID: "acme/widget#101", Repo: "acme/widget", IssueNumber: 101,
			Title: "Add dark mode", URL: "u", Source: models.SourceMock,
		},
		PM:  &models.PMOutput{Summary: "s", AcceptanceCriteria: []string{"a"}, Plan: []string{"p"}},
		Dev: &models.DevOutput{},
		QA:  &models.QAOutput{Verdict: models.VerdictPass},
	}
}

func TestIndexAndGetRun(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	verdict := "pass"
	require.NoError(t, svc.IndexRun(ctx, sampleRow("run-1", &verdict, nil), sampleStoredResult("run-1")))

	row, err := svc.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget#101", row.IssueID)
	require.NotNil(t, row.Verdict)
	assert.Equal(t, "pass", *row.Verdict)
	assert.Nil(t, row.Error)

	result, err := svc.GetResult(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPass, result.QA.Verdict)
}

func TestIndexRunRejectsDuplicates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.IndexRun(ctx, sampleRow("run-1", nil, nil), nil))
	err := svc.IndexRun(ctx, sampleRow("run-1", nil, nil), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRun))

	n, err := svc.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestErroredRunHasNoResult(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	errText := "stage_failed (transport, stage Dev): connection reset"
	require.NoError(t, svc.IndexRun(ctx, sampleRow("run-err", nil, &errText), nil))

	row, err := svc.GetRun(ctx, "run-err")
	require.NoError(t, err)
	assert.Nil(t, row.Verdict)
	require.NotNil(t, row.Error)
	assert.Contains(t, *row.Error, "Dev")

	_, err = svc.GetResult(ctx, "run-err")
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestGetRunNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetRun(context.Background(), "absent")
	require.Error(t, err)
	assert.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestListRunsOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		row := sampleRow(id, nil, nil)
		row.CompletedAt = row.CompletedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, svc.IndexRun(ctx, row, nil))
	}

	rows, err := svc.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-c", rows[0].RunID)
	assert.Equal(t, "run-b", rows[1].RunID)
}
