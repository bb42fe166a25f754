package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPresetRegistryParsesEmbeddedPresets(t *testing.T) {
	reg, err := LoadPresetRegistry()
	require.NoError(t, err)

	for _, name := range []string{"simple", "development", "production"} {
		p, ok := reg.Get(name)
		require.True(t, ok, "missing preset %q", name)
		result := Validate(p)
		assert.Truef(t, result.IsValid, "preset %q should validate, got errors: %v", name, result.Errors)
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	p := Preset{
		Name:                "broken",
		RetryAttempts:       0,
		DefaultStrategy:     "nonsense",
		CircuitThreshold:    100,
		RecoveryTimeoutSecs: 1,
		EnvironmentContexts: nil,
	}
	result := Validate(p)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateFlagsUnknownOperationOverrideStrategy(t *testing.T) {
	p := Preset{
		Name:                "x",
		RetryAttempts:       3,
		DefaultStrategy:     StrategyBalanced,
		OperationOverrides:  []PresetOperationOverride{{Operation: "qa", Strategy: "made_up"}},
		CircuitThreshold:    5,
		RecoveryTimeoutSecs: 30,
		EnvironmentContexts: []string{"production"},
	}
	result := Validate(p)
	assert.False(t, result.IsValid)
}

func TestValidateRejectsUnknownEnvironmentContext(t *testing.T) {
	p := Preset{
		Name:                "x",
		RetryAttempts:       3,
		DefaultStrategy:     StrategyBalanced,
		CircuitThreshold:    5,
		RecoveryTimeoutSecs: 30,
		EnvironmentContexts: []string{"bogus"},
	}
	result := Validate(p)
	assert.False(t, result.IsValid, "an out-of-set environment_contexts entry must invalidate the preset, not just warn")
	assert.NotEmpty(t, result.Errors)
}

func TestRecommendExactAndPatternMatches(t *testing.T) {
	reg, err := LoadPresetRegistry()
	require.NoError(t, err)

	exact := Recommend("production", reg)
	assert.Equal(t, "production", exact.SuggestedTemplate)
	assert.GreaterOrEqual(t, exact.Confidence, 0.85)

	pattern := Recommend("my-prod-cluster", reg)
	assert.Equal(t, "production", pattern.SuggestedTemplate)
	assert.GreaterOrEqual(t, pattern.Confidence, 0.70)
	assert.Less(t, pattern.Confidence, 0.85)

	unknown := Recommend("sandbox-7", reg)
	assert.Equal(t, "simple", unknown.SuggestedTemplate)
	assert.Equal(t, 0.50, unknown.Confidence)
}
