// Package database provides the shared PostgreSQL test fixture. Unit
// tests use SQLite; these helpers back the integration tests that
// exercise the PostgreSQL dialect of the run index.
package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	triaddb "github.com/triadworks/triad/pkg/database"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// ConnString returns a PostgreSQL connection string for tests.
// In CI (CI_DATABASE_URL set): the external service container.
// Locally: a shared testcontainer, started once per package.
func ConnString(t *testing.T) string {
	t.Helper()
	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		return ciURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("triad_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr)
	return sharedConnStr
}

// OpenClient opens a migrated run-index client against the test
// PostgreSQL instance and truncates its tables so each test starts
// clean. Skips when testcontainers is unavailable (short mode).
func OpenClient(t *testing.T) *triaddb.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	client, err := triaddb.Open(ctx, "", ConnString(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.DB().ExecContext(ctx, `TRUNCATE pipeline_results, pipeline_runs`)
	require.NoError(t, err)
	return client
}
