// Package resilience wraps upstream calls with retry, circuit-breaker and
// per-attempt timeout semantics selected per operation.
package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aegislabs/promptgate/internal/core"
)

// CircuitState is one of the three states a breaker can occupy.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MetricsCollector receives circuit-breaker lifecycle events. Implementations
// must not block; the breaker calls these synchronously on the hot path.
type MetricsCollector interface {
	RecordSuccess(target string)
	RecordFailure(target string)
	RecordStateChange(target string, from, to CircuitState)
	RecordRejection(target string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSuccess(string)                       {}
func (noopMetrics) RecordFailure(string)                        {}
func (noopMetrics) RecordStateChange(string, CircuitState, CircuitState) {}
func (noopMetrics) RecordRejection(string)                      {}

// CircuitBreakerConfig configures a single breaker instance, one per target.
type CircuitBreakerConfig struct {
	Target          string
	Threshold       int           // failure_count >= Threshold opens the circuit
	RecoveryTimeout time.Duration // time spent open before probing half-open
	Logger          core.Logger
	Metrics         MetricsCollector
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = &core.NoOpLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
}

// CircuitBreaker implements the per-target state machine from the resilience
// design: closed -> open on failure_count >= threshold, open -> half_open
// after recovery_timeout, half_open admits exactly one probe call and
// transitions back to closed or open based on its outcome.
//
// State is held in atomics so Allow/RecordSuccess/RecordFailure never block
// each other across targets; mu only serializes the state transitions
// themselves, which are rare compared to the read path.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	state        atomic.Int32 // CircuitState
	failureCount atomic.Int64
	openedAt     atomic.Int64 // unix nano; valid while state == open/half_open
	halfOpenBusy atomic.Bool  // true while the single half-open probe is in flight

	mu        sync.Mutex
	listeners []func(target string, from, to CircuitState)
}

// NewCircuitBreaker builds a breaker for a single target (an operation name,
// or an operation+strategy pair). config.Target is used only for logging and
// metrics labels.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	config.applyDefaults()
	cb := &CircuitBreaker{config: &config}
	cb.state.Store(int32(StateClosed))
	return cb
}

// AddStateChangeListener registers a callback invoked after every state
// transition. Not safe to call concurrently with Allow/Record*.
func (cb *CircuitBreaker) AddStateChangeListener(fn func(target string, from, to CircuitState)) {
	cb.listeners = append(cb.listeners, fn)
}

// State returns the breaker's current state, resolving an elapsed recovery
// timeout into half_open on read so callers never observe a stale open state.
func (cb *CircuitBreaker) State() CircuitState {
	state := CircuitState(cb.state.Load())
	if state == StateOpen && cb.recoveryElapsed() {
		return StateHalfOpen
	}
	return state
}

func (cb *CircuitBreaker) recoveryElapsed() bool {
	opened := time.Unix(0, cb.openedAt.Load())
	return time.Since(opened) >= cb.config.RecoveryTimeout
}

// OpenedAt returns the time the circuit last opened. Zero value if it has
// never opened.
func (cb *CircuitBreaker) OpenedAt() time.Time {
	nanos := cb.openedAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// RecoveryAt returns when an open circuit becomes eligible for a half-open
// probe.
func (cb *CircuitBreaker) RecoveryAt() time.Time {
	return cb.OpenedAt().Add(cb.config.RecoveryTimeout)
}

// Allow reports whether a call against this target may proceed, and reserves
// the single half-open probe slot if the circuit just transitioned there.
// Callers that receive allow=false must not invoke upstream.
func (cb *CircuitBreaker) Allow() (allow bool) {
	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		cb.mu.Lock()
		defer cb.mu.Unlock()
		// Re-check under lock: another goroutine may have already flipped us
		// to open/closed, or claimed the probe slot, between State() and here.
		if CircuitState(cb.state.Load()) != StateOpen {
			return false
		}
		if !cb.recoveryElapsed() {
			return false
		}
		if cb.halfOpenBusy.CompareAndSwap(false, true) {
			cb.transitionLocked(StateHalfOpen)
			return true
		}
		cb.config.Metrics.RecordRejection(cb.config.Target)
		return false
	default: // open, recovery not yet elapsed
		cb.config.Metrics.RecordRejection(cb.config.Target)
		return false
	}
}

// RecordSuccess reports a successful call. In closed state it resets
// failure_count to 0; in half_open it closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.config.Metrics.RecordSuccess(cb.config.Target)

	if CircuitState(cb.state.Load()) == StateHalfOpen {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		cb.failureCount.Store(0)
		cb.halfOpenBusy.Store(false)
		cb.transitionLocked(StateClosed)
		return
	}
	cb.failureCount.Store(0)
}

// RecordFailure reports a failed call that the caller has already classified
// as countable (transient). In closed state it increments failure_count and
// opens the circuit once the threshold is reached; in half_open the failed
// probe reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.config.Metrics.RecordFailure(cb.config.Target)

	if CircuitState(cb.state.Load()) == StateHalfOpen {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		cb.halfOpenBusy.Store(false)
		cb.openedAt.Store(time.Now().UnixNano())
		cb.transitionLocked(StateOpen)
		return
	}

	count := cb.failureCount.Add(1)
	if count >= int64(cb.config.Threshold) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if CircuitState(cb.state.Load()) == StateClosed {
			cb.openedAt.Store(time.Now().UnixNano())
			cb.transitionLocked(StateOpen)
		}
	}
}

// transitionLocked must be called with mu held.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := CircuitState(cb.state.Load())
	if from == to {
		return
	}
	cb.state.Store(int32(to))
	cb.config.Metrics.RecordStateChange(cb.config.Target, from, to)
	cb.config.Logger.Info("circuit breaker state change", map[string]interface{}{
		"target": cb.config.Target,
		"from":   from.String(),
		"to":     to.String(),
	})
	for _, listener := range cb.listeners {
		listener(cb.config.Target, from, to)
	}
}

// Reset forces the breaker back to closed with a zeroed failure count.
// Intended for tests and operator-triggered recovery, not request paths.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount.Store(0)
	cb.halfOpenBusy.Store(false)
	cb.openedAt.Store(0)
	cb.transitionLocked(StateClosed)
}

// CircuitOpenError is returned by Execute when Allow() rejects a call.
type CircuitOpenError struct {
	Target     string
	OpenedAt   time.Time
	RecoveryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %q since %s, recovers at %s", e.Target, e.OpenedAt.Format(time.RFC3339), e.RecoveryAt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Unwrap() error { return core.ErrCircuitOpen }

// RetryAfterSeconds returns the non-negative seconds remaining until the
// circuit becomes eligible for a half-open probe, for the HTTP
// Retry-After header.
func (e *CircuitOpenError) RetryAfterSeconds() int {
	remaining := int(time.Until(e.RecoveryAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// guardedCall runs fn under ctx, recovering from panics the same way the
// rest of the gateway does for upstream calls: a panic becomes an error
// rather than crashing the handling goroutine.
func guardedCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during guarded call: %v", r)
			}
			close(done)
		}()
		err = fn(ctx)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
