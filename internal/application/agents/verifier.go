package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/slovoapp/slovo/internal/domain/models"
)

// Confidence penalties applied multiplicatively by the verifier
const (
	penaltyOverallFailure = 0.3
	penaltyFailedStep     = 0.5
	penaltyMissingOutput  = 0.7
	penaltyShortOutput    = 0.8

	correctionThreshold = 0.5
	shortOutputChars    = 10
)

// Verifier is the fourth pipeline agent. It scores an execution result
// deterministically; a result below the correction threshold, or with
// any recorded issue, goes back for another attempt.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

func (v *Verifier) Verify(ctx context.Context, result *models.ExecutionResult) (*models.Verification, error) {
	verification := &models.Verification{Confidence: 1.0}

	if !result.Success {
		verification.Confidence *= penaltyOverallFailure
		verification.Issues = append(verification.Issues, fmt.Sprintf("execution failed: %s", result.Error))
		verification.Suggestions = append(verification.Suggestions, "Retry the plan from the failed step")
	}

	for _, sr := range result.FailedSteps() {
		verification.Confidence *= penaltyFailedStep
		verification.Issues = append(verification.Issues, fmt.Sprintf("step %d failed: %s", sr.StepIndex, sr.Error))
	}

	output := strings.TrimSpace(result.Output)
	switch {
	case result.Success && output == "" && !result.NeedsClarification:
		verification.Confidence *= penaltyMissingOutput
		verification.Issues = append(verification.Issues, "no output was produced")
		verification.Suggestions = append(verification.Suggestions, "Re-run the response step")
	case result.Success && output != "" && len(output) < shortOutputChars:
		verification.Confidence *= penaltyShortOutput
		verification.Issues = append(verification.Issues, "output is suspiciously short")
	}

	verification.Valid = result.Success && len(verification.Issues) == 0
	verification.RequiresCorrection = verification.Confidence < correctionThreshold || len(verification.Issues) > 0
	if len(verification.Suggestions) > 0 {
		verification.CorrectionHint = verification.Suggestions[0]
	}
	return verification, nil
}
