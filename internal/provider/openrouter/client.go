package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"aichat/internal/domain"
	"aichat/internal/domain/models"
	"aichat/internal/domain/services"
)

// Client talks to an OpenRouter-compatible chat-completions endpoint.
// It implements services.LLMProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	referer    string
	appTitle   string
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	Referer  string
	AppTitle string
	// HTTPClient overrides the default client (tests). The default has no
	// overall timeout: streams are bounded by the caller's idle timer.
	HTTPClient *http.Client
}

// NewClient creates an OpenRouter client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		referer:    opts.Referer,
		appTitle:   opts.AppTitle,
		logger:     logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return "openrouter" }

// SupportsModel reports whether this provider handles the model id.
// OpenRouter model ids carry a vendor prefix ("openai/gpt-4o-mini").
func (c *Client) SupportsModel(model string) bool {
	return strings.Contains(model, "/")
}

type chatCompletionBody struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

func (c *Client) newRequest(ctx context.Context, path string, body interface{}) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, &domain.Error{
			Code:    "OPENROUTER_KEY_MISSING",
			Status:  http.StatusInternalServerError,
			Message: "OPENROUTER_API_KEY is not configured",
		}
	}

	var reader io.Reader
	method := http.MethodGet
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.appTitle)

	return req, nil
}

// upstreamError builds the coded error for a non-2xx provider response,
// preferring the provider's own error message when present.
func upstreamError(status int, body []byte) *domain.Error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = fmt.Sprintf("upstream request failed (%d)", status)
	}
	return domain.UpstreamError(status, msg)
}

// Complete performs a non-streaming completion.
func (c *Client) Complete(ctx context.Context, req *services.GenerateRequest) (*services.GenerateResponse, error) {
	httpReq, err := c.newRequest(ctx, "/chat/completions", chatCompletionBody{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp.StatusCode, body)
	}

	result := &services.GenerateResponse{
		Content: gjson.GetBytes(body, "choices.0.message.content").String(),
	}

	if usage := gjson.GetBytes(body, "usage"); usage.Exists() {
		result.Usage = &models.Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		}
	}

	return result, nil
}

// Stream opens a streaming completion. A non-nil error means the upstream
// call failed before any stream was opened; the caller still owns its
// non-streaming error response in that case.
func (c *Client) Stream(ctx context.Context, req *services.GenerateRequest) (<-chan models.StreamEvent, error) {
	httpReq, err := c.newRequest(ctx, "/chat/completions", chatCompletionBody{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, upstreamError(resp.StatusCode, body)
	}

	events := make(chan models.StreamEvent, 10)
	go c.readStream(resp.Body, events)

	return events, nil
}

// readStream decodes the upstream event-stream line by line. Lines that are
// not data lines, and data lines that fail to parse, are skipped rather
// than aborting the stream.
func (c *Client) readStream(body io.ReadCloser, events chan<- models.StreamEvent) {
	defer close(events)
	defer body.Close()

	lr := NewLineReader(body)
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			return
		}
		if err != nil {
			events <- models.StreamEvent{Err: err}
			return
		}

		s := strings.TrimSpace(line)
		if !strings.HasPrefix(s, "data:") {
			continue
		}

		payload := strings.TrimSpace(s[len("data:"):])
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return
		}
		if !gjson.Valid(payload) {
			continue
		}

		if delta := gjson.Get(payload, "choices.0.delta.content"); delta.Type == gjson.String && delta.Str != "" {
			events <- models.StreamEvent{TextDelta: delta.Str}
		}

		// Some deployments attach authoritative usage to the final chunk.
		if usage := gjson.Get(payload, "usage"); usage.IsObject() {
			events <- models.StreamEvent{Usage: &models.Usage{
				PromptTokens:     int(usage.Get("prompt_tokens").Int()),
				CompletionTokens: int(usage.Get("completion_tokens").Int()),
				TotalTokens:      int(usage.Get("total_tokens").Int()),
			}}
		}
	}
}

// ListModels fetches the provider's raw model catalog. The same payload
// backs the /api/models proxy and the pricing refresh.
func (c *Client) ListModels(ctx context.Context) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, "/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch model catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp.StatusCode, body)
	}

	return body, nil
}
