package services

import (
	"context"

	"aichat/internal/domain/models"
)

// LLMProvider defines the interface that all completion providers implement.
// This abstraction allows supporting multiple providers (OpenRouter,
// Anthropic) while keeping a consistent interface for the relay.
type LLMProvider interface {
	// Name returns the provider name (e.g., "openrouter", "anthropic")
	Name() string

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool

	// Complete performs a non-streaming completion.
	Complete(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Stream opens a streaming completion. A non-nil error means the
	// upstream call itself failed and no stream was opened. On success the
	// returned channel emits text deltas in arrival order, optionally a
	// final Usage event, and is closed on natural completion. Cancelling
	// ctx aborts the upstream call.
	Stream(ctx context.Context, req *GenerateRequest) (<-chan models.StreamEvent, error)
}

// GenerateRequest contains the parameters for a completion request.
type GenerateRequest struct {
	// Model is the model identifier (e.g., "openai/gpt-4o-mini")
	Model string

	// Messages is the ordered conversation context, system instruction first.
	Messages []models.ChatMessage
}

// GenerateResponse contains a non-streaming completion result.
type GenerateResponse struct {
	Content string

	// Usage is nil when the provider returned no authoritative accounting.
	Usage *models.Usage
}
