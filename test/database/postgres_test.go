package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/services"
)

func pgRow(runID string) models.RunRow {
	started := time.Now().UTC().Truncate(time.Second)
	verdict := "pass"
	return models.RunRow{
		RunID:       runID,
		IssueID:     "acme/widget#101",
		Verdict:     &verdict,
		StartedAt:   started,
		CompletedAt: started.Add(9 * time.Second),
	}
}

func TestPostgresIndexAndQuery(t *testing.T) {
	client := OpenClient(t)
	svc := services.NewRunService(client)
	ctx := context.Background()

	require.NoError(t, svc.IndexRun(ctx, pgRow("pg-run-1"), nil))

	row, err := svc.GetRun(ctx, "pg-run-1")
	require.NoError(t, err)
	assert.Equal(t, "acme/widget#101", row.IssueID)
	require.NotNil(t, row.Verdict)
	assert.Equal(t, "pass", *row.Verdict)

	err = svc.IndexRun(ctx, pgRow("pg-run-1"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrDuplicateRun))
}

// Concurrent inserts use single-row transactions; none may corrupt
// the index or be lost.
func TestPostgresConcurrentInserts(t *testing.T) {
	client := OpenClient(t)
	svc := services.NewRunService(client)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row := pgRow(fmt.Sprintf("pg-conc-%c", 'a'+i))
			errs[i] = svc.IndexRun(ctx, row, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "insert %d", i)
	}
	count, err := svc.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}
