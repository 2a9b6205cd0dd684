// Package services holds the business operations over the run index:
// recording terminated runs and answering run queries for the HTTP
// API and the CLI.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/triadworks/triad/pkg/database"
	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/models"
)

// ErrDuplicateRun is returned when a run id is indexed twice. One row
// per terminated run, never overwritten.
var ErrDuplicateRun = errors.New("run already indexed")

// RunService records and queries pipeline runs.
type RunService struct {
	client *database.Client
	logger *slog.Logger
}

// NewRunService creates a run service over an open database client.
func NewRunService(client *database.Client) *RunService {
	return &RunService{
		client: client,
		logger: slog.Default().With("component", "run_service"),
	}
}

// IndexRun inserts the row, and the serialized result when present,
// in a single transaction. Duplicate run ids are rejected with
// ErrDuplicateRun.
func (s *RunService) IndexRun(ctx context.Context, row models.RunRow, result *models.Result) error {
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run index transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT EXISTS(SELECT 1 FROM pipeline_runs WHERE run_id = ?)`),
		row.RunID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check run %s: %w", row.RunID, err)
	}
	if exists {
		return fmt.Errorf("run %s: %w", row.RunID, ErrDuplicateRun)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO pipeline_runs (run_id, issue_id, verdict, started_at, completed_at, error)
		          VALUES (?, ?, ?, ?, ?, ?)`),
		row.RunID, row.IssueID, row.Verdict, row.StartedAt, row.CompletedAt, row.Error)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", row.RunID, err)
	}

	if result != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("serialize result %s: %w", row.RunID, err)
		}
		_, err = tx.ExecContext(ctx,
			s.rebind(`INSERT INTO pipeline_results (run_id, result_json) VALUES (?, ?)`),
			row.RunID, string(payload))
		if err != nil {
			return fmt.Errorf("insert result %s: %w", row.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", row.RunID, err)
	}
	s.logger.Info("Run indexed", "run_id", row.RunID, "issue_id", row.IssueID, "has_result", result != nil)
	return nil
}

// GetRun returns the index row for a run id.
func (s *RunService) GetRun(ctx context.Context, runID string) (*models.RunRow, error) {
	var row models.RunRow
	err := s.client.DB().QueryRowContext(ctx,
		s.rebind(`SELECT run_id, issue_id, verdict, started_at, completed_at, error
		          FROM pipeline_runs WHERE run_id = ?`),
		runID).Scan(&row.RunID, &row.IssueID, &row.Verdict, &row.StartedAt, &row.CompletedAt, &row.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Newf(fault.KindNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	return &row, nil
}

// GetResult returns the stored Result payload for a run id. Errored
// runs have an index row but no result.
func (s *RunService) GetResult(ctx context.Context, runID string) (*models.Result, error) {
	var payload string
	err := s.client.DB().QueryRowContext(ctx,
		s.rebind(`SELECT result_json FROM pipeline_results WHERE run_id = ?`),
		runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Newf(fault.KindNotFound, "result for run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", runID, err)
	}

	var result models.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decode stored result %s: %w", runID, err)
	}
	return &result, nil
}

// ListRuns returns up to limit rows, most recently completed first.
func (s *RunService) ListRuns(ctx context.Context, limit int) ([]models.RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.DB().QueryContext(ctx,
		s.rebind(`SELECT run_id, issue_id, verdict, started_at, completed_at, error
		          FROM pipeline_runs ORDER BY completed_at DESC LIMIT ?`),
		limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRow
	for rows.Next() {
		var row models.RunRow
		if err := rows.Scan(&row.RunID, &row.IssueID, &row.Verdict,
			&row.StartedAt, &row.CompletedAt, &row.Error); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountRuns returns the total number of indexed runs.
func (s *RunService) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.client.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// rebind converts ? placeholders to the $N form when talking to
// PostgreSQL. Queries are written once in SQLite's placeholder style.
func (s *RunService) rebind(query string) string {
	if s.client.Dialect() != database.DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
