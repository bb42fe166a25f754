package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/aegislabs/promptgate/internal/core"
)

// Strategy names one of the four fixed retry/backoff profiles. Parameters
// are derived from the strategy, never stored per-call.
type Strategy string

const (
	StrategyAggressive   Strategy = "aggressive"
	StrategyBalanced     Strategy = "balanced"
	StrategyConservative Strategy = "conservative"
	StrategyCritical     Strategy = "critical"
)

// StrategyParams are the tunables behind a Strategy.
type StrategyParams struct {
	MaxAttempts    int
	ExpMin         time.Duration
	ExpMax         time.Duration
	ExpMultiplier  float64
	Jitter         time.Duration
}

// strategyTable is the fixed parameter set for the four strategies. Values
// come from the resilience design, not a config file.
var strategyTable = map[Strategy]StrategyParams{
	StrategyAggressive: {
		MaxAttempts: 2, ExpMin: 500 * time.Millisecond, ExpMax: 4 * time.Second,
		ExpMultiplier: 1.5, Jitter: 300 * time.Millisecond,
	},
	StrategyBalanced: {
		MaxAttempts: 3, ExpMin: time.Second, ExpMax: 10 * time.Second,
		ExpMultiplier: 2.0, Jitter: time.Second,
	},
	StrategyConservative: {
		MaxAttempts: 5, ExpMin: 2 * time.Second, ExpMax: 30 * time.Second,
		ExpMultiplier: 2.0, Jitter: 2 * time.Second,
	},
	StrategyCritical: {
		MaxAttempts: 7, ExpMin: 2 * time.Second, ExpMax: 60 * time.Second,
		ExpMultiplier: 2.0, Jitter: 2 * time.Second,
	},
}

// ParamsFor returns the parameters for a strategy, or balanced's parameters
// if the name is unrecognized (callers that need strict validation should
// check IsKnownStrategy first).
func ParamsFor(s Strategy) StrategyParams {
	if p, ok := strategyTable[s]; ok {
		return p
	}
	return strategyTable[StrategyBalanced]
}

// IsKnownStrategy reports whether s is one of the four named strategies.
func IsKnownStrategy(s Strategy) bool {
	_, ok := strategyTable[s]
	return ok
}

// backoffDelay computes min(exp_max, exp_min * exp_multiplier^(attempt-1))
// plus uniform(-jitter, +jitter), floored at 0.
func backoffDelay(p StrategyParams, attempt int, rng *rand.Rand) time.Duration {
	exp := float64(p.ExpMin) * math.Pow(p.ExpMultiplier, float64(attempt-1))
	delay := time.Duration(math.Min(float64(p.ExpMax), exp))

	if p.Jitter > 0 {
		j := time.Duration((rng.Float64()*2 - 1) * float64(p.Jitter))
		delay += j
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// ClassifiedError annotates an upstream failure with the category the
// retry policy needs: transient failures are retried, permanent failures
// fail immediately without counting against the circuit breaker, and
// rate-limit failures honor a server-provided Retry-After when present.
type ClassifiedError struct {
	Err        error
	Transient  bool
	RateLimit  bool
	RetryAfter time.Duration // zero if the upstream didn't provide one
}

func (c *ClassifiedError) Error() string { return c.Err.Error() }
func (c *ClassifiedError) Unwrap() error { return c.Err }

// UpstreamError is what provider clients return so the resilience engine can
// classify the failure without parsing error strings.
type UpstreamError struct {
	StatusCode int
	RetryAfter time.Duration
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Classify turns an error from an upstream call into a ClassifiedError.
// Network errors and request timeouts are transient; 5xx is transient;
// 429 is rate-limit (transient, with Retry-After respected if given); any
// other 4xx is permanent; anything else defaults to transient so an
// unrecognized failure still benefits from retry rather than failing fast.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		// Already rejected without touching upstream; retrying would just
		// hammer a breaker that is, by definition, not going to admit us.
		return &ClassifiedError{Err: err, Transient: false}
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.Timeout:
			return &ClassifiedError{Err: err, Transient: true}
		case ue.StatusCode == http.StatusTooManyRequests:
			return &ClassifiedError{Err: err, Transient: true, RateLimit: true, RetryAfter: ue.RetryAfter}
		case ue.StatusCode >= 500:
			return &ClassifiedError{Err: err, Transient: true}
		case ue.StatusCode >= 400:
			return &ClassifiedError{Err: err, Transient: false}
		}
		return &ClassifiedError{Err: err, Transient: true}
	}

	if core.IsValidationError(err) || core.IsAuthenticationError(err) {
		return &ClassifiedError{Err: err, Transient: false}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Err: err, Transient: true}
	}

	return &ClassifiedError{Err: err, Transient: true}
}

// Retry runs fn up to params.MaxAttempts times, applying the exponential
// backoff-with-jitter formula between attempts. Permanent failures (per
// Classify) return immediately without consuming further attempts.
// Rate-limited failures sleep for the server-provided Retry-After instead of
// the computed backoff when one was supplied.
func Retry(ctx context.Context, strategy Strategy, fn func(ctx context.Context) error) error {
	params := ParamsFor(strategy)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastClassified *ClassifiedError
	for attempt := 1; attempt <= params.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		classified := Classify(err)
		if !classified.Transient {
			return classified
		}
		lastClassified = classified

		if attempt == params.MaxAttempts {
			break
		}

		delay := backoffDelay(params, attempt, rng)
		if classified.RateLimit && classified.RetryAfter > 0 {
			delay = classified.RetryAfter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &RetryExhaustedError{Cause: lastClassified.Err, Attempts: params.MaxAttempts}
}

// RetryExhaustedError is surfaced when every attempt produced a transient
// failure.
type RetryExhaustedError struct {
	Cause    error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error { return core.ErrRetryExhausted }
