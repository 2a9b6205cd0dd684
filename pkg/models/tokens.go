package models

// TokenUsage records token consumption for one chat-endpoint call.
// A provider that omits usage yields all-zero counts; the degradation
// is logged by the caller, never treated as an error.
type TokenUsage struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	TotalTokens   int     `json:"total_tokens"`
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// StageTokens pairs a stage name with its token usage.
type StageTokens struct {
	Stage string     `json:"stage"`
	Usage TokenUsage `json:"usage"`
}

// RunTokens aggregates per-stage usage for a whole run, with derived
// efficiency metrics. Aggregates always equal the recomputation from
// the Stages list; Aggregate in pkg/tokens is the only constructor.
type RunTokens struct {
	Stages             []StageTokens      `json:"stages"`
	TotalInputTokens   int                `json:"total_input_tokens"`
	TotalOutputTokens  int                `json:"total_output_tokens"`
	TotalTokens        int                `json:"total_tokens"`
	EstimatedTotalCost float64            `json:"estimated_total_cost_usd"`
	CostByStage        map[string]float64 `json:"cost_by_stage_usd"`
	Efficiency         EfficiencyMetrics  `json:"efficiency"`
}

// EfficiencyMetrics are derived run-level metrics. All values are
// sentinel zeros when there are no stages — never a division error.
type EfficiencyMetrics struct {
	AverageTokensPerStage     float64 `json:"average_tokens_per_stage"`
	MaxStageTokens            int     `json:"max_stage_tokens"`
	InputOutputRatio          float64 `json:"input_output_ratio"`
	ContextWindowUsagePercent float64 `json:"context_window_usage_percent"`
	CostPerStageAvg           float64 `json:"cost_per_stage_avg_usd"`
	StageCount                int     `json:"stage_count"`
}
