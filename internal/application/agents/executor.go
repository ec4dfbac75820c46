package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/llm"
	"github.com/slovoapp/slovo/internal/ports"
)

// retrievalStepTokenBudget bounds a mid-plan memory retrieval
const retrievalStepTokenBudget = 1500

// toolOutputMaxChars caps how much raw tool output reaches the user
// or the response prompt
const toolOutputMaxChars = 2000

// Executor walks a plan's steps in order. The first failing step halts
// the walk; later steps never run against a broken prefix.
type Executor struct {
	client llm.Client
	memory ports.MemoryRetriever
	tools  ports.ToolService
	ids    ports.IDGenerator
}

// NewExecutor builds the agent; client, memory, and tools may each be
// nil and degrade the corresponding step types.
func NewExecutor(client llm.Client, memory ports.MemoryRetriever, tools ports.ToolService, ids ports.IDGenerator) *Executor {
	return &Executor{client: client, memory: memory, tools: tools, ids: ids}
}

func (e *Executor) Execute(ctx context.Context, plan *models.ExecutionPlan, memoryContext *models.MemoryContext, systemContext string) (*models.ExecutionResult, error) {
	result := &models.ExecutionResult{
		ID:        e.ids.GenerateResultID(),
		Plan:      plan,
		StartedAt: time.Now(),
	}

	outputs := make([]any, len(plan.Steps))

	for i, step := range plan.Steps {
		start := time.Now()
		sr := models.StepResult{StepIndex: i}
		output, err := e.runStep(ctx, plan, step, memoryContext, systemContext, outputs[:i], result, &sr)
		sr.Success = err == nil
		sr.Output = output
		sr.DurationMs = time.Since(start).Milliseconds()
		if err != nil {
			sr.Error = err.Error()
		}
		result.StepResults = append(result.StepResults, sr)
		outputs[i] = output

		if err != nil {
			result.Success = false
			result.Error = fmt.Sprintf("step %d (%s) failed: %v", i, step.Type, err)
			result.CompletedAt = time.Now()
			return result, nil
		}

		if step.Type == models.StepMemoryRetrieval {
			if mc, ok := output.(*models.MemoryContext); ok {
				memoryContext = mc
			}
		}
	}

	result.Success = true
	result.Output = lastStringOutput(outputs)
	result.CompletedAt = time.Now()
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, plan *models.ExecutionPlan, step models.PlanStep, memoryContext *models.MemoryContext, systemContext string, priorOutputs []any, result *models.ExecutionResult, sr *models.StepResult) (any, error) {
	switch step.Type {
	case models.StepMemoryRetrieval:
		return e.runMemoryRetrieval(ctx, plan, memoryContext)

	case models.StepToolExecution:
		return e.runTool(ctx, step, sr)

	case models.StepToolDiscovery:
		return e.runDiscovery(ctx, step)

	case models.StepLLMResponse:
		return e.runResponse(ctx, plan, memoryContext, systemContext, priorOutputs)

	case models.StepClarification:
		result.NeedsClarification = true
		return "Could you tell me more about what you need?", nil

	default:
		return nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

func (e *Executor) runMemoryRetrieval(ctx context.Context, plan *models.ExecutionPlan, memoryContext *models.MemoryContext) (any, error) {
	// the orchestrator usually retrieves up front; reuse that context
	if memoryContext != nil {
		return memoryContext, nil
	}
	if e.memory == nil {
		return &models.MemoryContext{}, nil
	}
	return e.memory.Retrieve(ctx, models.RetrievalRequest{
		UserMessage: plan.Intent.Text,
		TokenLimit:  retrievalStepTokenBudget,
	})
}

func (e *Executor) runTool(ctx context.Context, step models.PlanStep, sr *models.StepResult) (any, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("no tool service configured")
	}
	exec, err := e.tools.Execute(ctx, step.ToolName, step.Parameters, "")
	if err != nil {
		return nil, err
	}
	// the execution log row is recorded even when the tool itself failed
	sr.ToolExecutionID = exec.ID
	sr.ToolDurationMs = exec.DurationMs
	if exec.Status != models.ExecutionSuccess {
		return nil, fmt.Errorf("tool %s finished with status %s: %s", step.ToolName, exec.Status, exec.Error)
	}
	return exec.Output, nil
}

func (e *Executor) runDiscovery(ctx context.Context, step models.PlanStep) (any, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("no tool service configured")
	}
	req, err := e.tools.RequestDiscovery(ctx, step.Description, "executor")
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("I don't have a tool for that yet. I've noted the request (%s) for review.", req.ID), nil
}

func (e *Executor) runResponse(ctx context.Context, plan *models.ExecutionPlan, memoryContext *models.MemoryContext, systemContext string, priorOutputs []any) (any, error) {
	toolOutput := models.Truncate(lastStringOutput(priorOutputs), toolOutputMaxChars)

	if e.client == nil {
		if toolOutput != "" {
			return toolOutput, nil
		}
		return fmt.Sprintf("I understood your request: %q. No language model is configured to answer it.", plan.Intent.Text), nil
	}

	system := renderPrompt(responsePrompt, map[string]string{
		"memory": strings.Join(memorySections(memoryContext), "\n\n"),
	})
	if systemContext != "" {
		system = systemContext + "\n\n" + system
	}

	user := plan.Intent.Text
	if toolOutput != "" {
		user += "\n\nTool output:\n" + toolOutput
	}

	resp, err := e.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, llm.Options{})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}

func memorySections(mc *models.MemoryContext) []string {
	if mc == nil {
		return nil
	}
	return mc.Sections()
}

// lastStringOutput returns the most recent step output that is a
// plain string; structured outputs are not user-facing.
func lastStringOutput(outputs []any) string {
	for i := len(outputs) - 1; i >= 0; i-- {
		if s, ok := outputs[i].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
