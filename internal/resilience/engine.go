package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/aegislabs/promptgate/internal/core"
)

// EngineConfig configures the Engine's default per-attempt timeout and
// circuit-breaker thresholds; operation-specific overrides come from the
// active Preset (see presets.go).
type EngineConfig struct {
	DefaultStrategy    Strategy
	DefaultTimeout     time.Duration
	DefaultThreshold   int
	DefaultRecovery    time.Duration
	OperationStrategy  map[string]Strategy
	Logger             core.Logger
	Metrics            MetricsCollector
}

// Engine executes calls through retry + circuit breaker + per-attempt
// timeout, keyed by target (typically an operation name). One breaker is
// created per target on first use and reused for its lifetime.
type Engine struct {
	config EngineConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewEngine builds an Engine from config, filling in documented defaults for
// zero-valued fields.
func NewEngine(config EngineConfig) *Engine {
	if config.DefaultStrategy == "" {
		config.DefaultStrategy = StrategyBalanced
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	if config.DefaultThreshold <= 0 {
		config.DefaultThreshold = 5
	}
	if config.DefaultRecovery <= 0 {
		config.DefaultRecovery = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}
	return &Engine{config: config, breakers: make(map[string]*CircuitBreaker)}
}

// NewEngineFromPreset builds an Engine whose defaults and operation
// overrides come from a loaded Preset, with per-attempt timeout supplied
// separately since it is not part of the preset record.
func NewEngineFromPreset(p Preset, timeout time.Duration, logger core.Logger, metrics MetricsCollector) *Engine {
	return NewEngine(EngineConfig{
		DefaultStrategy:   p.DefaultStrategy,
		DefaultTimeout:    timeout,
		DefaultThreshold:  p.CircuitThreshold,
		DefaultRecovery:   time.Duration(p.RecoveryTimeoutSecs) * time.Second,
		OperationStrategy: p.OperationStrategyMap(),
		Logger:            logger,
		Metrics:           metrics,
	})
}

func (e *Engine) breakerFor(target string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[target]; ok {
		return cb
	}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Target:          target,
		Threshold:       e.config.DefaultThreshold,
		RecoveryTimeout: e.config.DefaultRecovery,
		Logger:          e.config.Logger,
		Metrics:         e.config.Metrics,
	})
	e.breakers[target] = cb
	return cb
}

// StrategyFor resolves the effective strategy for an operation: the preset's
// per-operation override if one exists, otherwise the engine default.
func (e *Engine) StrategyFor(operation string) Strategy {
	if s, ok := e.config.OperationStrategy[operation]; ok {
		return s
	}
	return e.config.DefaultStrategy
}

// Breaker exposes the circuit breaker for a target, e.g. for health
// reporting or the resilience config endpoints.
func (e *Engine) Breaker(target string) *CircuitBreaker {
	return e.breakerFor(target)
}

// Execute runs fn under ctx for the named target using the given strategy:
// each attempt is bounded by the per-attempt timeout, transient failures are
// retried per strategy, and the circuit breaker gates every attempt so a
// tripped breaker fails fast without invoking fn at all.
func (e *Engine) Execute(ctx context.Context, target string, strategy Strategy, fn func(ctx context.Context) error) error {
	cb := e.breakerFor(target)

	return Retry(ctx, strategy, func(ctx context.Context) error {
		if !cb.Allow() {
			return &CircuitOpenError{
				Target:     target,
				OpenedAt:   cb.OpenedAt(),
				RecoveryAt: cb.RecoveryAt(),
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
		defer cancel()

		err := guardedCall(attemptCtx, fn)
		if err != nil {
			classified := Classify(err)
			if classified.Transient {
				cb.RecordFailure()
			}
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}
