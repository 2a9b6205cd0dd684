// Package tokens is the token and cost accounting subsystem. It
// extracts usage from chat responses, prices it against a per-model
// table, and aggregates per-run totals with efficiency metrics.
//
// Nothing in this package returns an error for missing data: absent
// usage degrades to zeros with a structured log annotation, because
// cost telemetry must never fail a run.
package tokens

import (
	"log/slog"
	"math"

	"github.com/triadworks/triad/pkg/llm"
	"github.com/triadworks/triad/pkg/models"
)

// Accountant prices and aggregates token usage.
type Accountant struct {
	pricing       PricingTable
	nominalWindow int
}

// NewAccountant creates an accountant. nominalWindow is the assumed
// context window size for the usage-percent metric.
func NewAccountant(pricing PricingTable, nominalWindow int) *Accountant {
	if nominalWindow <= 0 {
		nominalWindow = 200_000
	}
	return &Accountant{pricing: pricing, nominalWindow: nominalWindow}
}

// Extract reads usage from a chat response. A response without usage
// yields zero counts annotated with the model — recorded, not failed.
func (a *Accountant) Extract(resp *llm.ChatResponse, model string) models.TokenUsage {
	if resp == nil || resp.Usage == nil {
		slog.Warn("Chat response carried no usage data, recording zeros", "model", model)
		return models.TokenUsage{Model: model}
	}

	u := resp.Usage
	usage := models.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
		Model:        model,
	}
	usage.EstimatedCost = a.Cost(usage.InputTokens, usage.OutputTokens, model)
	return usage
}

// Cost computes the USD cost of a call, rounded to six fractional
// digits. An unknown model prices at 0.0 — a degradation, not a fault.
func (a *Accountant) Cost(inputTokens, outputTokens int, model string) float64 {
	pricing, ok := a.pricing.lookup(model)
	if !ok {
		slog.Debug("Model absent from pricing table, cost recorded as zero", "model", model)
		return 0.0
	}
	cost := float64(inputTokens)/1e6*pricing.InputPerMillion +
		float64(outputTokens)/1e6*pricing.OutputPerMillion
	return round6(cost)
}

// Aggregate sums per-stage usage into run totals and derived metrics.
// An empty stage list yields all-zero aggregates and sentinel-zero
// efficiency metrics.
func (a *Accountant) Aggregate(stages []models.StageTokens) models.RunTokens {
	run := models.RunTokens{
		Stages:      stages,
		CostByStage: make(map[string]float64, len(stages)),
	}

	maxStage := 0
	for _, st := range stages {
		run.TotalInputTokens += st.Usage.InputTokens
		run.TotalOutputTokens += st.Usage.OutputTokens
		run.TotalTokens += st.Usage.TotalTokens
		run.EstimatedTotalCost += st.Usage.EstimatedCost
		run.CostByStage[st.Stage] += st.Usage.EstimatedCost
		if st.Usage.TotalTokens > maxStage {
			maxStage = st.Usage.TotalTokens
		}
	}
	run.EstimatedTotalCost = round6(run.EstimatedTotalCost)

	n := len(stages)
	run.Efficiency = models.EfficiencyMetrics{
		MaxStageTokens: maxStage,
		StageCount:     n,
	}
	if n > 0 {
		run.Efficiency.AverageTokensPerStage = float64(run.TotalTokens) / float64(n)
		run.Efficiency.CostPerStageAvg = round6(run.EstimatedTotalCost / float64(n))
	}
	if run.TotalOutputTokens > 0 {
		run.Efficiency.InputOutputRatio = float64(run.TotalInputTokens) / float64(run.TotalOutputTokens)
	}
	run.Efficiency.ContextWindowUsagePercent = float64(maxStage) / float64(a.nominalWindow) * 100
	return run
}

// round6 rounds to six fractional digits, the resolution of the
// estimated-cost contract.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
