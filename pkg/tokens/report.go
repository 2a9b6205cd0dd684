package tokens

import (
	"fmt"
	"strings"

	"github.com/triadworks/triad/pkg/models"
)

// FormatReport renders a human-readable token and cost summary for a
// run. The string is appended to Result metadata notes and returned
// by the tool-server methods, so keep it stable-ish: tests match on
// substrings, operators read it in logs.
func FormatReport(run models.RunTokens) string {
	var sb strings.Builder
	sb.WriteString("Token usage by stage:\n")

	if len(run.Stages) == 0 {
		sb.WriteString("  (no stages recorded)\n")
	}
	for _, st := range run.Stages {
		fmt.Fprintf(&sb, "  %-3s in=%d out=%d total=%d cost=$%.6f\n",
			st.Stage, st.Usage.InputTokens, st.Usage.OutputTokens,
			st.Usage.TotalTokens, st.Usage.EstimatedCost)
	}

	fmt.Fprintf(&sb, "Totals: in=%d out=%d total=%d cost=$%.6f\n",
		run.TotalInputTokens, run.TotalOutputTokens,
		run.TotalTokens, run.EstimatedTotalCost)
	fmt.Fprintf(&sb, "Efficiency: avg=%.1f tokens/stage, max stage=%d, in/out ratio=%.2f, context window=%.2f%%",
		run.Efficiency.AverageTokensPerStage, run.Efficiency.MaxStageTokens,
		run.Efficiency.InputOutputRatio, run.Efficiency.ContextWindowUsagePercent)

	return sb.String()
}
