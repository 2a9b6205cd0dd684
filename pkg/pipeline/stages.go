package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/triadworks/triad/pkg/fault"
	"github.com/triadworks/triad/pkg/llm"
	"github.com/triadworks/triad/pkg/models"
	"github.com/triadworks/triad/pkg/structured"
)

// fallbackTruncation caps the raw-response excerpt carried into a
// synthesized fallback output.
const fallbackTruncation = 500

// executeStage runs one stage against the chat endpoint and attaches
// its output to the state. An incoming error passes through unchanged.
// Token usage is extracted before the parse attempt, so cost
// accounting reflects reality even for unparsable responses.
func (p *Pipeline) executeStage(ctx context.Context, state *RunState, stage string) {
	if state.Err != nil {
		return
	}

	messages, err := p.stageMessages(state, stage)
	if err != nil {
		state.Err = fault.NewStage(stage, fault.SubkindTransport, err)
		return
	}

	logger := p.logger.With("run_id", state.RunID, "stage", stage)
	logger.Info("Stage started", "model", p.chat.Model())

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.chat.Chat(stageCtx, messages)
	elapsed := time.Since(start)
	if err != nil {
		subkind := fault.SubkindTransport
		if errors.Is(err, context.DeadlineExceeded) {
			subkind = fault.SubkindTimeout
		}
		state.Err = fault.NewStage(stage, subkind, err)
		logger.Error("Stage chat call failed", "subkind", subkind, "duration", elapsed, "error", err)
		return
	}

	usage := p.accountant.Extract(resp, p.chat.Model())
	state.Tokens = append(state.Tokens, models.StageTokens{Stage: stage, Usage: usage})
	logger.Info("Stage chat call completed",
		"duration", elapsed,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"estimated_cost", usage.EstimatedCost)

	p.attachOutput(state, stage, resp.Text, logger)
}

func (p *Pipeline) stageMessages(state *RunState, stage string) ([]llm.Message, error) {
	system, ok := SystemPrompt(stage)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	var user string
	switch stage {
	case models.StagePM:
		user = pmUserPrompt(state)
	case models.StageDev:
		user = devUserPrompt(state)
	case models.StageQA:
		user = qaUserPrompt(state)
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// attachOutput decodes the validated object into the stage's slot, or
// synthesizes the fallback record when parsing or decoding fails. The
// fallback is an annotation, never an error: runs complete degraded
// rather than abort on model formatting slips.
func (p *Pipeline) attachOutput(state *RunState, stage, text string, logger *slog.Logger) {
	schemaName := map[string]string{
		models.StagePM:  structured.SchemaPM,
		models.StageDev: structured.SchemaDev,
		models.StageQA:  structured.SchemaQA,
	}[stage]

	raw := p.parser.Parse(text, schemaName)
	degraded := raw == nil

	switch stage {
	case models.StagePM:
		out := &models.PMOutput{}
		if degraded || json.Unmarshal(raw, out) != nil {
			out = pmFallback(text)
			degraded = true
		}
		state.PM = out
	case models.StageDev:
		out := &models.DevOutput{}
		if degraded || json.Unmarshal(raw, out) != nil {
			out = devFallback(text)
			degraded = true
		}
		state.Dev = out
	case models.StageQA:
		out := &models.QAOutput{}
		if degraded || json.Unmarshal(raw, out) != nil {
			out = qaFallback(text)
			degraded = true
		}
		state.QA = out
	}

	if degraded {
		logger.Warn("Stage output unparsable, recorded fallback record", "annotation", "degraded_output")
	}
}

func pmFallback(text string) *models.PMOutput {
	return &models.PMOutput{
		Summary:            truncate(text, fallbackTruncation),
		AcceptanceCriteria: []string{"Review output manually"},
		Plan:               []string{"Re-run or refine prompts"},
		Assumptions:        []string{models.FallbackNote},
	}
}

func devFallback(text string) *models.DevOutput {
	return &models.DevOutput{
		Files: []models.FileArtifact{},
		Notes: []string{truncate(text, fallbackTruncation), models.FallbackNote},
	}
}

func qaFallback(text string) *models.QAOutput {
	return &models.QAOutput{
		Verdict:          models.VerdictNeedsHuman,
		Findings:         []string{truncate(text, fallbackTruncation)},
		SuggestedChanges: []string{models.FallbackNote},
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
