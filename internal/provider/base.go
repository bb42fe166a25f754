// Package provider defines the interface the pipeline uses to dispatch a
// prompt to an upstream LLM, plus one concrete implementation (Anthropic's
// Messages API) so the gateway runs end-to-end. Retries, circuit breaking
// and timeouts live entirely in the resilience engine; a provider client
// makes exactly one HTTP attempt per call and reports failures through
// resilience.UpstreamError so the engine can classify and retry them.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/aegislabs/promptgate/internal/core"
)

// Request is what the pipeline hands to a provider after prompt assembly.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// TokenUsage mirrors the provider's reported token accounting.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the provider-agnostic result of a single call.
type Response struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// Client is the provider-agnostic surface the pipeline depends on. The
// pipeline never imports a concrete provider package directly.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// BaseClient holds what every concrete provider needs: an HTTP client with
// a sane timeout, a logger, and default generation parameters applied when
// the caller leaves them zero-valued.
type BaseClient struct {
	HTTPClient *http.Client
	Logger     core.Logger

	DefaultModel       string
	DefaultTemperature float32
	DefaultMaxTokens   int
}

// NewBaseClient builds a BaseClient. timeout bounds a single HTTP attempt;
// the resilience engine owns retry/backoff above this layer.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &BaseClient{
		HTTPClient:         &http.Client{Timeout: timeout},
		Logger:             logger,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1000,
	}
}

// ApplyDefaults fills unset fields of req with this client's defaults.
func (b *BaseClient) ApplyDefaults(req Request) Request {
	if req.Model == "" {
		req.Model = b.DefaultModel
	}
	if req.Temperature == 0 {
		req.Temperature = b.DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = b.DefaultMaxTokens
	}
	return req
}

// LogRequest logs an outgoing call without the prompt body itself (user
// text may be sensitive; only its length is logged).
func (b *BaseClient) LogRequest(providerName, model string, promptLen int) {
	b.Logger.Debug("provider request", map[string]interface{}{
		"provider":      providerName,
		"model":         model,
		"prompt_length": promptLen,
	})
}

// LogResponse logs a completed call's token accounting and latency.
func (b *BaseClient) LogResponse(providerName, model string, usage TokenUsage, duration time.Duration) {
	b.Logger.Debug("provider response", map[string]interface{}{
		"provider":          providerName,
		"model":             model,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"duration_ms":       duration.Milliseconds(),
	})
}
