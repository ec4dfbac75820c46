// Package orchestrator runs the five-agent pipeline for one message:
// intent, plan, execute, verify (with bounded correction retries), and
// explain, with memory retrieval started alongside classification.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slovoapp/slovo/internal/adapters/metrics"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

const (
	// DefaultMaxRetries bounds correction loops per message
	DefaultMaxRetries = 2

	topicRingSize    = 5
	topicMinWordLen  = 6
	fastPathReason   = "Simple conversational response"
	clarifyReason    = "Asked for clarification"
	panicResponse    = "I'm sorry, something went wrong while processing your request."
	clarifyingPrefix = "[Clarification] "
)

// fastPathPhrases qualifies a no-tool utterance for the single-step path
var fastPathPhrases = []string{
	"hello", "hi", "hey",
	"good morning", "good afternoon", "good evening",
	"goodbye", "bye", "see you",
	"thanks", "thank you", "appreciate it",
}

// memorableMarkers are utterance prefixes worth remembering verbatim
var memorableMarkers = []string{
	"my name is", "i prefer", "i like",
	"please remember", "remember that", "my favorite",
}

// Orchestrator coordinates the agents for each conversation
type Orchestrator struct {
	intents    ports.IntentAgent
	planner    ports.PlannerAgent
	executor   ports.ExecutorAgent
	verifier   ports.VerifierAgent
	explainer  ports.ExplainerAgent
	memory     ports.MemoryManager
	ids        ports.IDGenerator
	maxRetries int

	mu             sync.Mutex
	topics         map[string][]string
	clarifications map[string]string
}

var _ ports.Orchestrator = (*Orchestrator)(nil)

// Config bundles the orchestrator's collaborators. Memory may be nil
// when the memory subsystem is degraded.
type Config struct {
	Intents    ports.IntentAgent
	Planner    ports.PlannerAgent
	Executor   ports.ExecutorAgent
	Verifier   ports.VerifierAgent
	Explainer  ports.ExplainerAgent
	Memory     ports.MemoryManager
	IDs        ports.IDGenerator
	MaxRetries int
}

func New(cfg Config) *Orchestrator {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = DefaultMaxRetries
	}
	return &Orchestrator{
		intents:        cfg.Intents,
		planner:        cfg.Planner,
		executor:       cfg.Executor,
		verifier:       cfg.Verifier,
		explainer:      cfg.Explainer,
		memory:         cfg.Memory,
		ids:            cfg.IDs,
		maxRetries:     retries,
		topics:         map[string][]string{},
		clarifications: map[string]string{},
	}
}

// ProcessMessage runs one utterance through the pipeline. It never
// panics outward; any agent panic degrades to an apology.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text, conversationID string) (result *ports.PipelineResult, err error) {
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "pipeline panic", "panic", r, "conversation_id", conversationID)
			result = &ports.PipelineResult{
				Response:   panicResponse,
				Reasoning:  fmt.Sprintf("internal error: %v", r),
				Confidence: 0,
			}
			err = nil
			outcome = "panic"
		}
		metrics.PipelineRequestsTotal.WithLabelValues(outcome).Inc()
	}()

	text = o.consumeClarification(ctx, conversationID, text)

	o.storeTurn(ctx, conversationID, models.RoleUser, text)

	// retrieval runs while the intent agent classifies
	retrievalCh := o.startRetrieval(ctx, text, conversationID)

	intentStart := time.Now()
	intent, cerr := o.intents.Classify(ctx, text, o.topicContext(conversationID))
	metrics.PipelineStageDuration.WithLabelValues("intent").Observe(time.Since(intentStart).Seconds())
	if cerr != nil {
		outcome = "error"
		return nil, fmt.Errorf("classifying intent: %w", cerr)
	}

	memoryContext := <-retrievalCh

	o.rememberTopics(conversationID, text)
	o.captureMemorableFact(ctx, text, conversationID)

	if o.isFastPath(intent) {
		metrics.FastPathTotal.Inc()
		res, ferr := o.fastPath(ctx, intent, memoryContext)
		if ferr != nil {
			outcome = "error"
			return nil, ferr
		}
		o.storeTurn(ctx, conversationID, models.RoleAssistant, res.Response)
		return res, nil
	}

	planStart := time.Now()
	plan, perr := o.planner.Plan(ctx, intent, memoryContext)
	metrics.PipelineStageDuration.WithLabelValues("plan").Observe(time.Since(planStart).Seconds())
	if perr != nil {
		outcome = "error"
		return nil, fmt.Errorf("planning: %w", perr)
	}

	if plan.HasStep(models.StepClarification) {
		res, cerr := o.askClarification(ctx, plan, conversationID, text)
		if cerr != nil {
			outcome = "error"
			return nil, cerr
		}
		o.storeTurn(ctx, conversationID, models.RoleAssistant, res.Response)
		return res, nil
	}

	execResult, verification, rerr := o.executeWithCorrections(ctx, plan, memoryContext)
	if rerr != nil {
		outcome = "error"
		return nil, rerr
	}

	var response, reasoning string
	if plan.RequiresExplanation {
		explainStart := time.Now()
		explanation, eerr := o.explainer.Explain(ctx, execResult, verification)
		metrics.PipelineStageDuration.WithLabelValues("explain").Observe(time.Since(explainStart).Seconds())
		if eerr != nil {
			outcome = "error"
			return nil, fmt.Errorf("explaining: %w", eerr)
		}
		response = explanation.Response
		if explanation.ConfidenceNote != "" {
			response += " " + explanation.ConfidenceNote
		}
		reasoning = explanation.Reasoning
	} else {
		response = execResult.Output
	}

	o.storeTurn(ctx, conversationID, models.RoleAssistant, response)

	if !execResult.Success {
		outcome = "failure"
	}
	return &ports.PipelineResult{
		Response:   response,
		Reasoning:  reasoning,
		Confidence: verification.Confidence,
	}, nil
}

// executeWithCorrections runs the plan and retries it, with the
// verifier's issues folded into the context, until the verifier is
// satisfied or the retry budget runs out.
func (o *Orchestrator) executeWithCorrections(ctx context.Context, plan *models.ExecutionPlan, memoryContext *models.MemoryContext) (*models.ExecutionResult, *models.Verification, error) {
	systemContext := ""

	var (
		execResult   *models.ExecutionResult
		verification *models.Verification
	)
	for attempt := 0; ; attempt++ {
		execStart := time.Now()
		result, err := o.executor.Execute(ctx, plan, memoryContext, systemContext)
		metrics.PipelineStageDuration.WithLabelValues("execute").Observe(time.Since(execStart).Seconds())
		if err != nil {
			return nil, nil, fmt.Errorf("executing plan: %w", err)
		}
		execResult = result

		if !plan.RequiresVerification {
			return execResult, &models.Verification{Valid: execResult.Success, Confidence: 1.0}, nil
		}

		verifyStart := time.Now()
		verification, err = o.verifier.Verify(ctx, execResult)
		metrics.PipelineStageDuration.WithLabelValues("verify").Observe(time.Since(verifyStart).Seconds())
		if err != nil {
			return nil, nil, fmt.Errorf("verifying result: %w", err)
		}

		if !verification.RequiresCorrection || attempt >= o.maxRetries {
			return execResult, verification, nil
		}

		metrics.PipelineCorrectionsTotal.Inc()
		systemContext = "Previous attempt had issues: " + strings.Join(verification.Issues, ", ")
		if verification.CorrectionHint != "" {
			systemContext += ". " + verification.CorrectionHint
		}
		slog.InfoContext(ctx, "retrying plan after verifier correction",
			"plan_id", plan.ID, "attempt", attempt+1, "confidence", verification.Confidence)
	}
}

func (o *Orchestrator) isFastPath(intent *models.Intent) bool {
	if intent.IsConversational() {
		return true
	}
	if intent.Type != models.IntentQuestion || intent.RequiresTool {
		return false
	}
	lower := strings.TrimRight(strings.ToLower(strings.TrimSpace(intent.Text)), ".!? ")
	for _, phrase := range fastPathPhrases {
		if lower == phrase || strings.HasPrefix(lower, phrase+" ") || strings.HasPrefix(lower, phrase+",") {
			return true
		}
	}
	return false
}

// fastPath answers small talk with a single response step and no
// verification or explanation pass.
func (o *Orchestrator) fastPath(ctx context.Context, intent *models.Intent, memoryContext *models.MemoryContext) (*ports.PipelineResult, error) {
	plan := models.NewExecutionPlan(o.ids.GeneratePlanID(), intent)
	plan.RequiresVerification = false
	plan.RequiresExplanation = false
	plan.Steps = []models.PlanStep{{
		Type:        models.StepLLMResponse,
		Description: "Respond conversationally",
	}}

	result, err := o.executor.Execute(ctx, plan, memoryContext, "")
	if err != nil {
		return nil, fmt.Errorf("fast path execution: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("fast path execution: %s", result.Error)
	}
	return &ports.PipelineResult{
		Response:   result.Output,
		Reasoning:  fastPathReason,
		Confidence: 1.0,
	}, nil
}

// askClarification records the unanswered message and sends back the
// clarifying question; the next message in the conversation is treated
// as the answer.
func (o *Orchestrator) askClarification(ctx context.Context, plan *models.ExecutionPlan, conversationID, text string) (*ports.PipelineResult, error) {
	result, err := o.executor.Execute(ctx, plan, nil, "")
	if err != nil {
		return nil, fmt.Errorf("clarification step: %w", err)
	}

	o.mu.Lock()
	o.clarifications[conversationID] = text
	o.mu.Unlock()

	return &ports.PipelineResult{
		Response:   result.Output,
		Reasoning:  clarifyReason,
		Confidence: 0.5,
	}, nil
}

// consumeClarification marks a pending clarification answered and
// reruns the pipeline on the tagged answer alone; the stored utterance
// is already in conversation memory.
func (o *Orchestrator) consumeClarification(ctx context.Context, conversationID, text string) string {
	o.mu.Lock()
	original, ok := o.clarifications[conversationID]
	if ok {
		delete(o.clarifications, conversationID)
	}
	o.mu.Unlock()
	if !ok {
		return text
	}
	slog.DebugContext(ctx, "clarification answered", "conversation_id", conversationID, "original", original)
	return clarifyingPrefix + text
}

func (o *Orchestrator) startRetrieval(ctx context.Context, text, conversationID string) <-chan *models.MemoryContext {
	ch := make(chan *models.MemoryContext, 1)
	if o.memory == nil {
		ch <- nil
		return ch
	}
	go func() {
		start := time.Now()
		mc, err := o.memory.Retrieve(ctx, models.RetrievalRequest{
			UserMessage:    text,
			ConversationID: conversationID,
		})
		metrics.PipelineStageDuration.WithLabelValues("retrieval").Observe(time.Since(start).Seconds())
		if err != nil {
			slog.WarnContext(ctx, "memory retrieval failed", "error", err)
			ch <- nil
			return
		}
		ch <- mc
	}()
	return ch
}

func (o *Orchestrator) storeTurn(ctx context.Context, conversationID string, role models.Role, content string) {
	if o.memory == nil || conversationID == "" || content == "" {
		return
	}
	if err := o.memory.StoreTurn(ctx, conversationID, models.ConversationTurn{
		Role:    role,
		Content: content,
	}); err != nil {
		slog.WarnContext(ctx, "storing turn failed", "conversation_id", conversationID, "error", err)
	}
}

// rememberTopics keeps a short ring of salient words per conversation
func (o *Orchestrator) rememberTopics(conversationID, text string) {
	if conversationID == "" {
		return
	}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) >= topicMinWordLen {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	ring := append(o.topics[conversationID], words...)
	if len(ring) > topicRingSize {
		ring = ring[len(ring)-topicRingSize:]
	}
	o.topics[conversationID] = ring
}

func (o *Orchestrator) topicContext(conversationID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ring := o.topics[conversationID]
	if len(ring) == 0 {
		return ""
	}
	return "Recent topics: " + strings.Join(ring, ", ")
}

// captureMemorableFact writes utterances that state a personal fact to
// semantic memory with a synthesised approval.
func (o *Orchestrator) captureMemorableFact(ctx context.Context, text, conversationID string) {
	if o.memory == nil {
		return
	}
	lower := strings.ToLower(text)
	memorable := false
	for _, marker := range memorableMarkers {
		if strings.Contains(lower, marker) {
			memorable = true
			break
		}
	}
	if !memorable {
		return
	}

	_, err := o.memory.Write(ctx, models.WriteRequest{
		Kind:           models.MemorySemantic,
		Content:        text,
		Source:         models.SourceConversation,
		Confidence:     0.8,
		ConversationID: conversationID,
	}, models.VerifierApproval{
		Approved:   true,
		Confidence: 0.8,
		Reason:     "memorable fact auto-capture",
	})
	if err != nil {
		slog.WarnContext(ctx, "memorable fact capture failed", "error", err)
	}
}
