package models

import "time"

// StepResult holds the outcome of one executed plan step
type StepResult struct {
	StepIndex  int    `json:"step_index"`
	Success    bool   `json:"success"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// Set for tool_execution steps: the execution log row and the
	// sandbox-measured runtime, which excludes service overhead.
	ToolExecutionID string `json:"tool_execution_id,omitempty"`
	ToolDurationMs  int64  `json:"tool_duration_ms,omitempty"`
}

// ExecutionResult aggregates the per-step results of running a plan.
// Output holds the terminal output, which by convention is the last
// successful step's output.
type ExecutionResult struct {
	ID                 string         `json:"id"`
	Plan               *ExecutionPlan `json:"plan"`
	StepResults        []StepResult   `json:"step_results"`
	Success            bool           `json:"success"`
	Output             string         `json:"output,omitempty"`
	Error              string         `json:"error,omitempty"`
	NeedsClarification bool           `json:"needs_clarification,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        time.Time      `json:"completed_at"`
}

// FailedSteps returns the results of steps that did not succeed
func (r *ExecutionResult) FailedSteps() []StepResult {
	var failed []StepResult
	for _, sr := range r.StepResults {
		if !sr.Success {
			failed = append(failed, sr)
		}
	}
	return failed
}

// Verification is the verifier's judgement of an execution result
type Verification struct {
	Valid              bool     `json:"valid"`
	Confidence         float64  `json:"confidence"`
	Issues             []string `json:"issues,omitempty"`
	Suggestions        []string `json:"suggestions,omitempty"`
	RequiresCorrection bool     `json:"requires_correction"`
	CorrectionHint     string   `json:"correction_hint,omitempty"`
}

// Explanation is the explainer's user-facing rendering of a result
type Explanation struct {
	Response       string `json:"response"`
	Reasoning      string `json:"reasoning,omitempty"`
	ConfidenceNote string `json:"confidence_note,omitempty"`
}
