package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"aichat/internal/domain/models"
	"aichat/internal/domain/services"
)

const defaultMaxTokens = 4096

// Provider implements services.LLMProvider for Anthropic (Claude) models.
// Unlike the OpenRouter relay, the SDK reports authoritative token usage,
// so completions through this provider never need estimated accounting.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{client: &client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "anthropic" }

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-".
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// buildParams converts the request into SDK parameters. The system
// instruction is carried via the dedicated System field; image parts are
// flattened to their text portion (multimodal input stays on OpenRouter).
func buildParams(req *services.GenerateRequest) (anthropic.MessageNewParams, error) {
	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(defaultMaxTokens),
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for i, msg := range req.Messages {
		text := msg.Content.PlainText()

		switch msg.Role {
		case models.RoleSystem:
			apiParams.System = []anthropic.TextBlockParam{{Type: "text", Text: text}}
		case models.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			return apiParams, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}
	apiParams.Messages = messages

	return apiParams, nil
}

// Complete performs a non-streaming completion.
func (p *Provider) Complete(ctx context.Context, req *services.GenerateRequest) (*services.GenerateResponse, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	apiParams, err := buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	message, err := p.client.Messages.New(ctx, apiParams)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	inputTokens := int(message.Usage.InputTokens)
	outputTokens := int(message.Usage.OutputTokens)

	return &services.GenerateResponse{
		Content: content.String(),
		Usage: &models.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
	}, nil
}

// Stream generates a streaming completion. Text deltas are emitted as they
// arrive, followed by a final usage event accumulated from the stream.
func (p *Provider) Stream(ctx context.Context, req *services.GenerateRequest) (<-chan models.StreamEvent, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	apiParams, err := buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	events := make(chan models.StreamEvent, 10)

	go func() {
		defer close(events)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)

		// Accumulator for final message metadata
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()

			if err := message.Accumulate(event); err != nil {
				events <- models.StreamEvent{Err: fmt.Errorf("failed to accumulate message: %w", err)}
				return
			}

			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if e.Delta.Type == "text_delta" && e.Delta.Text != "" {
					select {
					case <-ctx.Done():
						events <- models.StreamEvent{Err: ctx.Err()}
						return
					case events <- models.StreamEvent{TextDelta: e.Delta.Text}:
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			events <- models.StreamEvent{Err: fmt.Errorf("anthropic streaming error: %w", err)}
			return
		}

		inputTokens := int(message.Usage.InputTokens)
		outputTokens := int(message.Usage.OutputTokens)
		events <- models.StreamEvent{Usage: &models.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		}}
	}()

	return events, nil
}
