package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/llm"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/structured"
	"github.com/triadworks/triad/pkg/tokens"
)

// ResultWriter persists a Result artifact and returns its filename.
type ResultWriter interface {
	WriteResult(result *models.Result) (string, error)
}

// RunIndexer records a terminated run in the relational index. result
// is nil for runs that ended in error.
type RunIndexer interface {
	IndexRun(ctx context.Context, row models.RunRow, result *models.Result) error
}

// ProgressFunc receives advisory progress events: a fraction in [0, 1]
// and a short stage label. Completion is signaled by Run returning,
// not by a fraction of 1.
type ProgressFunc func(fraction float64, stage string)

// RunOptions tune a single Run invocation.
type RunOptions struct {
	// SourcePath is the ingress file the issue came from, if any.
	SourcePath string
	// OnProgress, when non-nil, receives stage-boundary events.
	OnProgress ProgressFunc
}

// Pipeline executes runs. A single instance is safe for concurrent
// Run calls; each call owns its RunState.
type Pipeline struct {
	chat         llm.ChatClient
	accountant   *tokens.Accountant
	parser       *structured.Parser
	writer       ResultWriter
	index        RunIndexer
	stageTimeout time.Duration
	logger       *slog.Logger
}

// New wires a pipeline. stageTimeout bounds each chat-endpoint call.
func New(chat llm.ChatClient, accountant *tokens.Accountant, parser *structured.Parser,
	writer ResultWriter, index RunIndexer, stageTimeout time.Duration) *Pipeline {
	if stageTimeout <= 0 {
		stageTimeout = 120 * time.Second
	}
	return &Pipeline{
		chat:         chat,
		accountant:   accountant,
		parser:       parser,
		writer:       writer,
		index:        index,
		stageTimeout: stageTimeout,
		logger:       slog.Default().With("component", "pipeline"),
	}
}

// Run carries one validated issue through every state. It returns the
// final state in all cases; the error is non-nil when the run
// terminated on a stage or persistence failure. Stage errors
// short-circuit the remaining stages, but Finalize always executes so
// the run index records the termination.
func (p *Pipeline) Run(ctx context.Context, issue *models.Issue, opts RunOptions) (*RunState, error) {
	state := newRunState(issue, opts.SourcePath)
	logger := p.logger.With("run_id", state.RunID, "issue_id", issue.IssueID)
	logger.Info("Run started", "source_path", opts.SourcePath)

	progress := opts.OnProgress
	if progress == nil {
		progress = func(float64, string) {}
	}

	for i, stage := range models.Stages {
		progress(float64(i)/float64(len(models.Stages)+1), stage)
		p.executeStage(ctx, state, stage)
	}
	progress(0.9, "Finalize")

	p.finalize(ctx, state)

	if state.Err != nil {
		logger.Error("Run terminated with error", "error", state.Err)
		return state, state.Err
	}
	logger.Info("Run completed",
		"verdict", state.QA.Verdict,
		"output_file", state.OutputFile,
		"total_tokens", state.Result.Metadata.TokenUsage.TotalTokens,
		"estimated_cost", state.Result.Metadata.TokenUsage.EstimatedTotalCost)
	return state, nil
}

// finalize aggregates tokens, assembles the Result when the run is
// error-free, and persists both the artifact and the index row. A
// Result is never written for an errored run; the index row is written
// for every run exactly once.
func (p *Pipeline) finalize(ctx context.Context, state *RunState) {
	completedAt := time.Now().UTC()
	duration := completedAt.Sub(state.StartedAt).Seconds()
	runTokens := p.accountant.Aggregate(state.Tokens)
	logger := p.logger.With("run_id", state.RunID)

	if state.Err != nil {
		errText := state.Err.Error()
		row := models.RunRow{
			RunID:       state.RunID,
			IssueID:     state.Issue.IssueID,
			Verdict:     nil,
			StartedAt:   state.StartedAt,
			CompletedAt: completedAt,
			Error:       &errText,
		}
		if err := p.index.IndexRun(ctx, row, nil); err != nil {
			logger.Error("Failed to index errored run", "error", err)
		}
		return
	}

	result := &models.Result{
		RunID:        state.RunID,
		TimestampUTC: completedAt,
		Issue:        state.Issue,
		PM:           state.PM,
		Dev:          state.Dev,
		QA:           state.QA,
		Metadata: models.ResultMetadata{
			RunID:           state.RunID,
			TimestampUTC:    completedAt,
			DurationSeconds: duration,
			TokenUsage:      runTokens,
			ImplementationNotes: []string{
				tokens.FormatReport(runTokens),
			},
		},
	}

	filename, err := p.writer.WriteResult(result)
	if err != nil {
		logger.Error("Failed to write result artifact", "error", err)
		state.Err = fault.New(fault.KindPersistenceFailed, fmt.Errorf("write result: %w", err))
		errText := state.Err.Error()
		row := models.RunRow{
			RunID:       state.RunID,
			IssueID:     state.Issue.IssueID,
			StartedAt:   state.StartedAt,
			CompletedAt: completedAt,
			Error:       &errText,
		}
		if ierr := p.index.IndexRun(ctx, row, nil); ierr != nil {
			logger.Error("Failed to index run after write failure", "error", ierr)
		}
		return
	}
	state.Result = result
	state.OutputFile = filename
	logger.Info("Result artifact written", "filename", filename)

	row := models.RunRow{
		RunID:       state.RunID,
		IssueID:     state.Issue.IssueID,
		Verdict:     state.Verdict(),
		StartedAt:   state.StartedAt,
		CompletedAt: completedAt,
		Error:       nil,
	}
	if err := p.index.IndexRun(ctx, row, result); err != nil {
		// The artifact exists on disk even though indexing failed;
		// operators reconcile manually.
		logger.Error("Failed to index completed run", "error", err, "output_file", filename)
		state.Err = fault.New(fault.KindPersistenceFailed, fmt.Errorf("index run: %w", err))
	}
}
