package agents

import (
	"context"
	"fmt"

	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// Planner is the second pipeline agent. Plans follow a fixed template:
// memory retrieval, an optional tool step, then the response step.
type Planner struct {
	ids ports.IDGenerator
}

func NewPlanner(ids ports.IDGenerator) *Planner {
	return &Planner{ids: ids}
}

func (p *Planner) Plan(ctx context.Context, intent *models.Intent, memoryContext *models.MemoryContext) (*models.ExecutionPlan, error) {
	plan := models.NewExecutionPlan(p.ids.GeneratePlanID(), intent)

	if intent.Type == models.IntentUnknown || intent.Type == models.IntentClarification {
		plan.Steps = []models.PlanStep{{
			Type:        models.StepClarification,
			Description: "Ask the user to clarify the request",
		}}
		return plan, nil
	}

	plan.Steps = append(plan.Steps, models.PlanStep{
		Type:        models.StepMemoryRetrieval,
		Description: "Retrieve relevant memory context",
	})

	if intent.RequiresTool {
		if intent.ToolHint != "" {
			plan.Steps = append(plan.Steps, models.PlanStep{
				Type:        models.StepToolExecution,
				Description: fmt.Sprintf("Execute tool for %q", intent.ToolHint),
				ToolName:    intent.ToolHint,
				Parameters:  map[string]any{"query": intent.Text},
				DependsOn:   []int{0},
			})
		} else {
			plan.Steps = append(plan.Steps, models.PlanStep{
				Type:        models.StepToolDiscovery,
				Description: "Discover a tool able to handle the request",
				DependsOn:   []int{0},
			})
		}
		plan.RequiresApproval = true
		plan.Risk = models.RiskMedium
	}

	deps := make([]int, len(plan.Steps))
	for i := range plan.Steps {
		deps[i] = i
	}
	plan.Steps = append(plan.Steps, models.PlanStep{
		Type:        models.StepLLMResponse,
		Description: "Compose the final response",
		DependsOn:   deps,
	})

	if len(plan.Steps) <= 3 {
		plan.Complexity = models.ComplexitySimple
	} else {
		plan.Complexity = models.ComplexityComplex
	}
	return plan, nil
}
