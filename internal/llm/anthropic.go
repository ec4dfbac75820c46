package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slovoapp/slovo/internal/adapters/metrics"
)

// AnthropicClient talks to the Anthropic Messages API
type AnthropicClient struct {
	client      sdk.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicClient creates an Anthropic chat client
func NewAnthropicClient(apiKey, model string, maxTokens int, temperature float64, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(timeout),
		),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (c *AnthropicClient) Provider() string {
	return "anthropic"
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, fmt.Errorf("anthropic: at least one user/assistant message is required")
	}

	// Anthropic has no response-format parameter; JSON conformance is
	// enforced through the system prompt and recovered on parse.
	if opts.JSONSchema != nil {
		schemaJSON, err := json.Marshal(opts.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response schema: %w", err)
		}
		system = append(system, sdk.TextBlockParam{
			Text: "Respond with a single JSON object conforming to this JSON schema, with no surrounding prose:\n" + string(schemaJSON),
		})
	}

	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := c.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}

	span.SetAttributes(
		attribute.String("llm.provider", "anthropic"),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.request.max_tokens", maxTokens),
		attribute.Int("llm.request.messages", len(conversation)),
	)

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	metrics.LLMRequestDuration.WithLabelValues("anthropic").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("anthropic", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	metrics.LLMRequestsTotal.WithLabelValues("anthropic", "ok").Inc()

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", int(msg.Usage.InputTokens)),
		attribute.Int("llm.usage.output_tokens", int(msg.Usage.OutputTokens)),
		attribute.String("llm.response.stop_reason", string(msg.StopReason)),
	)

	return &Response{
		Content:      content,
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}
