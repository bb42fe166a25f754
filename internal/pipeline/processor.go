// Package pipeline implements the request pipeline: sanitize input, build
// a cache key, check the cache, assemble a defended prompt, dispatch it
// through the resilience engine, validate the response, and cache the
// result. Batch requests fan the same pipeline out under a semaphore.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aegislabs/promptgate/internal/cache"
	"github.com/aegislabs/promptgate/internal/core"
	"github.com/aegislabs/promptgate/internal/provider"
	"github.com/aegislabs/promptgate/internal/resilience"
)

// Processor wires the cache, the resilience engine and a provider client
// into the nine ordered stages of §4.3. It owns no cache or engine logic
// itself; it only sequences calls into those packages.
type Processor struct {
	Cache      *cache.Cache
	Engine     *resilience.Engine
	Provider   provider.Client
	Sanitizer  *Sanitizer
	Logger     core.Logger
	CacheEnabled bool
}

// NewProcessor builds a Processor. cacheEnabled lets ENABLE_AI_CACHE=false
// bypass lookup/store while still running the rest of the pipeline.
func NewProcessor(c *cache.Cache, engine *resilience.Engine, cli provider.Client, sanitizer *Sanitizer, logger core.Logger, cacheEnabled bool) *Processor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Processor{Cache: c, Engine: engine, Provider: cli, Sanitizer: sanitizer, Logger: logger, CacheEnabled: cacheEnabled}
}

// Process runs a single request through stages 1-9. Stage 1 (auth) happens
// above this layer, at the HTTP boundary; Process begins at stage 2.
func (p *Processor) Process(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Operation == "qa" && req.Question == "" {
		return nil, core.NewGatewayError("pipeline.Process", core.KindValidation,
			"question is required for operation qa", nil, nil)
	}

	// Stage 2: sanitize.
	cleanText := p.Sanitizer.Sanitize(req.Text)
	cleanQuestion := p.Sanitizer.Sanitize(req.Question)
	cleanOptions := p.Sanitizer.SanitizeOptions(req.Options)

	// Stage 3: build cache key.
	key := cache.BuildKey(req.Operation, cleanText, cleanOptions, cleanQuestion)

	// Stage 4: cache lookup.
	if p.CacheEnabled && p.Cache != nil {
		if raw, ok, err := p.Cache.Get(ctx, key); err != nil {
			p.Logger.WarnWithContext(ctx, "cache lookup failed, continuing without cache hit", map[string]interface{}{
				"error": err.Error(),
			})
		} else if ok {
			var payload cachedPayload
			if err := json.Unmarshal(raw, &payload); err == nil {
				return &Response{
					Operation:        payload.Operation,
					Success:          true,
					Result:           payload.Result,
					Sentiment:        payload.Sentiment,
					KeyPoints:        payload.KeyPoints,
					Questions:        payload.Questions,
					Metadata:         payload.Metadata,
					ProcessingTimeMs: time.Since(start).Milliseconds(),
					Timestamp:        time.Now().UTC(),
					CacheHit:         true,
				}, nil
			}
		}
	}

	// Stage 5: assemble prompt.
	assembled, err := AssemblePrompt(req.Operation, cleanText, cleanQuestion)
	if err != nil {
		return nil, core.NewGatewayError("pipeline.Process", core.KindValidation, err.Error(), nil, err)
	}

	// Stage 6: dispatch through the resilience engine.
	strategy := p.Engine.StrategyFor(req.Operation)
	var genResp *provider.Response
	execErr := p.Engine.Execute(ctx, req.Operation, strategy, func(ctx context.Context) error {
		resp, callErr := p.Provider.Generate(ctx, provider.Request{
			SystemPrompt: assembled.SystemPrompt,
			UserPrompt:   assembled.UserPrompt,
		})
		if callErr != nil {
			return callErr
		}
		genResp = resp
		return nil
	})
	if execErr != nil {
		return nil, classifyDispatchError(req.Operation, execErr)
	}

	// Stage 7: validate response.
	validated, err := Validate(ValidationInput{
		Operation:         req.Operation,
		Response:          genResp.Content,
		RequestText:       cleanText,
		SystemInstruction: assembled.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	result := &Response{
		Operation:        req.Operation,
		Success:          true,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Timestamp:        time.Now().UTC(),
		CacheHit:         false,
	}
	switch req.Operation {
	case "summarize", "qa":
		result.Result = validated.Text
	case "sentiment":
		result.Sentiment = validated.Sentiment
	case "key_points":
		result.KeyPoints = validated.List
	case "questions":
		result.Questions = validated.List
	}

	// Stage 8: cache store.
	if p.CacheEnabled && p.Cache != nil {
		ttl := cache.TTLFor(req.Operation)
		if ttl > 0 {
			payload := cachedPayload{
				Operation: result.Operation,
				Result:    result.Result,
				Sentiment: result.Sentiment,
				KeyPoints: result.KeyPoints,
				Questions: result.Questions,
				Metadata:  result.Metadata,
			}
			if raw, err := json.Marshal(payload); err == nil {
				if err := p.Cache.Set(ctx, key, raw, ttl); err != nil {
					p.Logger.WarnWithContext(ctx, "cache store failed, serving result uncached", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}

	// Stage 9: return.
	return result, nil
}

// classifyDispatchError maps whatever the resilience engine surfaced into
// the gateway's error taxonomy. A circuit-open rejection reaches here
// wrapped inside a *resilience.ClassifiedError (Classify marks it
// permanent so Retry returns it unchanged rather than exhausting
// attempts), so this must unwrap with errors.As rather than type-switch
// on the bare error.
func classifyDispatchError(operation string, err error) error {
	var circuitErr *resilience.CircuitOpenError
	if errors.As(err, &circuitErr) {
		return core.NewGatewayError("pipeline.Process", core.KindCircuitOpen,
			fmt.Sprintf("circuit open for operation %q", operation),
			map[string]interface{}{"retry_after_seconds": circuitErr.RetryAfterSeconds()}, err)
	}

	var retryErr *resilience.RetryExhaustedError
	if errors.As(err, &retryErr) {
		return core.NewGatewayError("pipeline.Process", core.KindRetryExhausted,
			fmt.Sprintf("retries exhausted dispatching operation %q", operation),
			map[string]interface{}{"attempts": retryErr.Attempts}, err)
	}

	return core.NewGatewayError("pipeline.Process", core.KindTransientUpstream,
		"upstream dispatch failed", nil, err)
}
