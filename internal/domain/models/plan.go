package models

import "time"

// StepType identifies the operation a plan step performs
type StepType string

const (
	StepMemoryRetrieval StepType = "memory_retrieval"
	StepToolDiscovery   StepType = "tool_discovery"
	StepToolExecution   StepType = "tool_execution"
	StepLLMResponse     StepType = "llm_response"
	StepClarification   StepType = "clarification"
)

// Complexity tags how involved a plan is
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

// RiskLevel tags the risk of executing a plan
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PlanStep is a single typed operation within an execution plan.
// DependsOn lists the indices of prerequisite steps.
type PlanStep struct {
	Type        StepType       `json:"type"`
	Description string         `json:"description"`
	ToolName    string         `json:"tool_name,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	DependsOn   []int          `json:"depends_on,omitempty"`
}

// ExecutionPlan is an ordered, dependency-annotated sequence of steps
// produced by the planner for a classified intent.
type ExecutionPlan struct {
	ID                   string     `json:"id"`
	Intent               *Intent    `json:"intent"`
	Steps                []PlanStep `json:"steps"`
	RequiresVerification bool       `json:"requires_verification"`
	RequiresExplanation  bool       `json:"requires_explanation"`
	RequiresApproval     bool       `json:"requires_approval"`
	Complexity           Complexity `json:"complexity"`
	Risk                 RiskLevel  `json:"risk"`
	CreatedAt            time.Time  `json:"created_at"`
}

func NewExecutionPlan(id string, intent *Intent) *ExecutionPlan {
	return &ExecutionPlan{
		ID:                   id,
		Intent:               intent,
		Steps:                []PlanStep{},
		RequiresVerification: true,
		RequiresExplanation:  true,
		Complexity:           ComplexitySimple,
		Risk:                 RiskLow,
		CreatedAt:            time.Now(),
	}
}

// HasStep reports whether any step in the plan has the given type
func (p *ExecutionPlan) HasStep(stepType StepType) bool {
	for _, s := range p.Steps {
		if s.Type == stepType {
			return true
		}
	}
	return false
}
