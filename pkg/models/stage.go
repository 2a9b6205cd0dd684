package models

// Stage names. Order is fixed: PM analyzes, Dev drafts, QA reviews.
const (
	StagePM  = "PM"
	StageDev = "Dev"
	StageQA  = "QA"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StagePM, StageDev, StageQA}

// Verdict is the QA stage's terminal judgment.
type Verdict string

// Valid verdicts.
const (
	VerdictPass       Verdict = "pass"
	VerdictFail       Verdict = "fail"
	VerdictNeedsHuman Verdict = "needs-human"
)

// ValidVerdict reports whether v is a member of the closed verdict set.
func ValidVerdict(v Verdict) bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictNeedsHuman:
		return true
	}
	return false
}

// FallbackNote is the sentinel recorded in a synthesized stage output
// when the LLM response could not be parsed as structured output.
// Downstream consumers and tests detect degradation by this string.
const FallbackNote = "structured-output parse failed"

// PMOutput is the Product Manager stage's structured output.
type PMOutput struct {
	Summary            string   `json:"summary"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Plan               []string `json:"plan"`
	Assumptions        []string `json:"assumptions"`
}

// FileArtifact is one drafted file in the Dev output.
type FileArtifact struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// DevOutput is the Developer stage's structured output.
type DevOutput struct {
	Files []FileArtifact `json:"files"`
	Notes []string       `json:"notes"`
}

// QAOutput is the Quality Assurance stage's structured output.
type QAOutput struct {
	Verdict          Verdict  `json:"verdict"`
	Findings         []string `json:"findings"`
	SuggestedChanges []string `json:"suggested_changes"`
}

// Degraded reports whether the output was synthesized by the parse
// fallback rather than decoded from the model's response.
func (o *PMOutput) Degraded() bool {
	for _, a := range o.Assumptions {
		if a == FallbackNote {
			return true
		}
	}
	return false
}

func (o *DevOutput) Degraded() bool {
	for _, n := range o.Notes {
		if n == FallbackNote {
			return true
		}
	}
	return false
}

func (o *QAOutput) Degraded() bool {
	for _, s := range o.SuggestedChanges {
		if s == FallbackNote {
			return true
		}
	}
	return false
}
