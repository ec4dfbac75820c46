package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/slovoapp/slovo/internal/domain/models"
)

const (
	apologyResponse = "I'm sorry, I wasn't able to complete that request."

	lowConfidenceNote = "I'm not entirely confident in this response. Please verify the information."

	// confidence below which the note is attached
	confidenceNoteThreshold = 0.7
)

// Explainer is the final pipeline agent: it renders the execution
// result into the answer the user actually hears.
type Explainer struct{}

func NewExplainer() *Explainer {
	return &Explainer{}
}

func (e *Explainer) Explain(ctx context.Context, result *models.ExecutionResult, verification *models.Verification) (*models.Explanation, error) {
	explanation := &models.Explanation{}

	if result.Success && strings.TrimSpace(result.Output) != "" {
		explanation.Response = result.Output
	} else {
		explanation.Response = apologyResponse
		if result.Error != "" {
			explanation.Response += " The issue was: " + result.Error
		}
	}

	var reasoning []string
	if result.Plan != nil && result.Plan.Intent != nil {
		reasoning = append(reasoning, fmt.Sprintf("Understood intent: %s", result.Plan.Intent.Type))
	}
	reasoning = append(reasoning, fmt.Sprintf("Executed %d steps", len(result.StepResults)))
	if verification != nil && len(verification.Issues) > 0 {
		reasoning = append(reasoning, "Issues found: "+strings.Join(verification.Issues, ", "))
	}
	explanation.Reasoning = strings.Join(reasoning, " | ")

	if verification != nil && verification.Confidence < confidenceNoteThreshold {
		explanation.ConfidenceNote = lowConfidenceNote
	}
	return explanation, nil
}
