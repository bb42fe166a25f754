package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineExecuteOpensCircuitAndFailsFast(t *testing.T) {
	e := NewEngine(EngineConfig{
		DefaultStrategy:  StrategyAggressive, // max 2 attempts
		DefaultTimeout:   time.Second,
		DefaultThreshold: 2,
		DefaultRecovery:  time.Minute,
	})

	calls := 0
	failingCall := func(ctx context.Context) error {
		calls++
		return &UpstreamError{StatusCode: 503, Err: errors.New("down")}
	}

	// First request: aggressive allows 2 attempts, both transient failures
	// against a threshold of 2 trips the breaker on the second.
	err := e.Execute(context.Background(), "summarize", StrategyAggressive, failingCall)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateOpen, e.Breaker("summarize").State())

	// Second request against the same target must fail fast without calling
	// upstream at all.
	calls = 0
	err = e.Execute(context.Background(), "summarize", StrategyAggressive, failingCall)
	require.Error(t, err)
	assert.Equal(t, 0, calls, "an open circuit must reject before invoking upstream")
	var coe *CircuitOpenError
	assert.ErrorAs(t, err, &coe)
}

func TestEngineExecuteSuccessKeepsCircuitClosed(t *testing.T) {
	e := NewEngine(EngineConfig{DefaultTimeout: time.Second, DefaultThreshold: 3, DefaultRecovery: time.Minute})

	err := e.Execute(context.Background(), "qa", StrategyBalanced, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, e.Breaker("qa").State())
}

func TestEngineStrategyForUsesOperationOverride(t *testing.T) {
	e := NewEngine(EngineConfig{
		DefaultStrategy:   StrategyBalanced,
		OperationStrategy: map[string]Strategy{"qa": StrategyCritical},
	})
	assert.Equal(t, StrategyCritical, e.StrategyFor("qa"))
	assert.Equal(t, StrategyBalanced, e.StrategyFor("summarize"))
}
