package tokens

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triad/pkg/llm"
	"github.com/triadworks/triad/pkg/models"
)

func newTestAccountant() *Accountant {
	return NewAccountant(DefaultPricing(), 200_000)
}

func TestExtract(t *testing.T) {
	a := newTestAccountant()

	resp := &llm.ChatResponse{
		Text:  "ok",
		Usage: &llm.Usage{InputTokens: 1000, OutputTokens: 2000},
	}
	usage := a.Extract(resp, "openai/gpt-4o-mini")

	assert.Equal(t, 1000, usage.InputTokens)
	assert.Equal(t, 2000, usage.OutputTokens)
	assert.Equal(t, 3000, usage.TotalTokens)
	assert.Equal(t, "openai/gpt-4o-mini", usage.Model)
	// 1000/1e6*0.15 + 2000/1e6*0.60
	assert.Equal(t, 0.00135, usage.EstimatedCost)
}

func TestExtractIdempotent(t *testing.T) {
	a := newTestAccountant()
	resp := &llm.ChatResponse{Usage: &llm.Usage{InputTokens: 42, OutputTokens: 7}}

	first := a.Extract(resp, "openai/gpt-4o")
	second := a.Extract(resp, "openai/gpt-4o")
	assert.Equal(t, first, second)
}

func TestExtractMissingUsageDegradesToZeros(t *testing.T) {
	a := newTestAccountant()

	usage := a.Extract(&llm.ChatResponse{Text: "no usage"}, "openai/gpt-4o")
	assert.Zero(t, usage.InputTokens)
	assert.Zero(t, usage.OutputTokens)
	assert.Zero(t, usage.TotalTokens)
	assert.Zero(t, usage.EstimatedCost)
	assert.Equal(t, "openai/gpt-4o", usage.Model)

	usage = a.Extract(nil, "openai/gpt-4o")
	assert.Zero(t, usage.TotalTokens)
}

func TestCostUnknownModelIsZero(t *testing.T) {
	a := newTestAccountant()
	assert.Equal(t, 0.0, a.Cost(1_000_000, 1_000_000, "acme/undocumented-model"))
}

func TestCostPrefixMatching(t *testing.T) {
	a := newTestAccountant()

	// Dated suffix resolves to the family entry.
	cost := a.Cost(1_000_000, 0, "anthropic/claude-3-5-sonnet-20241022")
	assert.Equal(t, 3.0, cost)

	// gpt-4o-mini must not be priced as gpt-4o.
	cost = a.Cost(1_000_000, 0, "openai/gpt-4o-mini-2024-07-18")
	assert.Equal(t, 0.15, cost)
}

// Three stages on gpt-4o-mini must sum to exactly 0.002663 at six
// decimal places, with per-stage rounding before aggregation.
func TestAggregateCostArithmetic(t *testing.T) {
	a := newTestAccountant()
	model := "openai/gpt-4o-mini"

	pairs := [][2]int{{1000, 2000}, {500, 1500}, {250, 500}}
	var stages []models.StageTokens
	for i, p := range pairs {
		resp := &llm.ChatResponse{Usage: &llm.Usage{InputTokens: p[0], OutputTokens: p[1]}}
		stages = append(stages, models.StageTokens{
			Stage: models.Stages[i],
			Usage: a.Extract(resp, model),
		})
	}

	run := a.Aggregate(stages)
	assert.Equal(t, 1750, run.TotalInputTokens)
	assert.Equal(t, 4000, run.TotalOutputTokens)
	assert.Equal(t, 5750, run.TotalTokens)
	assert.Equal(t, 0.002663, run.EstimatedTotalCost)

	// Aggregates equal recomputation from the stage list.
	var sumTotal int
	var sumCost float64
	for _, st := range run.Stages {
		sumTotal += st.Usage.TotalTokens
		sumCost += st.Usage.EstimatedCost
	}
	assert.Equal(t, sumTotal, run.TotalTokens)
	assert.InDelta(t, sumCost, run.EstimatedTotalCost, 1e-9)
}

func TestAggregateEmptyIsAllZeros(t *testing.T) {
	a := newTestAccountant()
	run := a.Aggregate(nil)

	assert.Zero(t, run.TotalTokens)
	assert.Zero(t, run.EstimatedTotalCost)
	assert.Zero(t, run.Efficiency.AverageTokensPerStage)
	assert.Zero(t, run.Efficiency.MaxStageTokens)
	assert.Zero(t, run.Efficiency.InputOutputRatio)
	assert.Zero(t, run.Efficiency.ContextWindowUsagePercent)
	assert.Zero(t, run.Efficiency.StageCount)
}

func TestAggregateEfficiencyMetrics(t *testing.T) {
	a := NewAccountant(DefaultPricing(), 10_000)

	stages := []models.StageTokens{
		{Stage: models.StagePM, Usage: models.TokenUsage{InputTokens: 800, OutputTokens: 200, TotalTokens: 1000}},
		{Stage: models.StageDev, Usage: models.TokenUsage{InputTokens: 1500, OutputTokens: 500, TotalTokens: 2000}},
	}
	run := a.Aggregate(stages)

	assert.Equal(t, 1500.0, run.Efficiency.AverageTokensPerStage)
	assert.Equal(t, 2000, run.Efficiency.MaxStageTokens)
	assert.InDelta(t, 2300.0/700.0, run.Efficiency.InputOutputRatio, 1e-9)
	assert.InDelta(t, 20.0, run.Efficiency.ContextWindowUsagePercent, 1e-9)
	assert.Equal(t, 2, run.Efficiency.StageCount)
}

func TestLoadPricingOverride(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/pricing.yaml"
	err := os.WriteFile(path, []byte(`
models:
  openai/gpt-4o-mini:
    input_per_million: 1.0
    output_per_million: 2.0
  acme/custom:
    input_per_million: 5.0
    output_per_million: 10.0
`), 0o644)
	require.NoError(t, err)

	table, err := LoadPricing(path)
	require.NoError(t, err)

	a := NewAccountant(table, 200_000)
	assert.Equal(t, 1.0, a.Cost(1_000_000, 0, "openai/gpt-4o-mini"))
	assert.Equal(t, 10.0, a.Cost(0, 1_000_000, "acme/custom"))
	// Untouched built-ins survive the merge.
	assert.Equal(t, 3.0, a.Cost(1_000_000, 0, "anthropic/claude-3-5-sonnet-20241022"))
}

func TestFormatReport(t *testing.T) {
	a := newTestAccountant()
	run := a.Aggregate([]models.StageTokens{
		{Stage: models.StagePM, Usage: models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, EstimatedCost: 0.000123}},
	})

	report := FormatReport(run)
	assert.Contains(t, report, "PM")
	assert.Contains(t, report, "total=15")
	assert.Contains(t, report, "Totals:")
}
