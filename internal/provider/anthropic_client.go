package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aegislabs/promptgate/internal/core"
	"github.com/aegislabs/promptgate/internal/resilience"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicClient implements Client against Anthropic's native Messages
// API. It makes exactly one HTTP attempt per Generate call; the resilience
// engine above it owns retry, backoff and circuit breaking.
type AnthropicClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

// NewAnthropicClient builds a client. baseURL defaults to the production
// Anthropic endpoint when empty, letting tests point it at a local stub.
func NewAnthropicClient(apiKey, baseURL string, logger core.Logger) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	base := NewBaseClient(30*time.Second, logger)
	base.DefaultModel = "claude-3-5-sonnet-20241022"
	return &AnthropicClient{BaseClient: base, apiKey: apiKey, baseURL: baseURL}
}

// Generate sends req as a single-turn user message and returns the
// assembled text from every text content block in the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, core.NewGatewayError("provider.Anthropic.Generate", core.KindConfiguration,
			"Anthropic API key not configured", nil, nil)
	}

	req = c.ApplyDefaults(req)
	c.LogRequest("anthropic", req.Model, len(req.UserPrompt))
	start := time.Now()

	body := anthropicRequest{
		Model:       req.Model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building anthropic request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded)
		return nil, &resilience.UpstreamError{Timeout: timeout, Err: fmt.Errorf("anthropic request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &resilience.UpstreamError{Err: fmt.Errorf("reading anthropic response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return nil, c.upstreamErrorFor(resp, respBody)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := TokenUsage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}
	c.LogResponse("anthropic", parsed.Model, usage, time.Since(start))

	return &Response{Content: text, Model: parsed.Model, Usage: usage}, nil
}

// upstreamErrorFor maps a non-2xx HTTP response into an UpstreamError,
// honoring a server-supplied Retry-After on 429 responses.
func (c *AnthropicClient) upstreamErrorFor(resp *http.Response, body []byte) error {
	var parsed anthropicErrorResponse
	message := string(body)
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return &resilience.UpstreamError{
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter,
		Err:        fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, message),
	}
}
