package resilience

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// PresetOperationOverride pins a non-default strategy to one operation.
type PresetOperationOverride struct {
	Operation string   `yaml:"operation"`
	Strategy  Strategy `yaml:"strategy"`
}

// Preset is a named, validated, immutable bundle of resilience parameters:
// a default strategy, per-operation overrides, the circuit breaker
// threshold and recovery timeout, and the environment names it is
// intended for.
type Preset struct {
	Name                string                    `yaml:"name"`
	Description         string                    `yaml:"description"`
	RetryAttempts       int                       `yaml:"retry_attempts"`
	DefaultStrategy     Strategy                  `yaml:"default_strategy"`
	OperationOverrides  []PresetOperationOverride `yaml:"operation_overrides"`
	CircuitThreshold    int                       `yaml:"circuit_breaker_threshold"`
	RecoveryTimeoutSecs int                       `yaml:"recovery_timeout_seconds"`
	EnvironmentContexts []string                  `yaml:"environment_contexts"`
}

// OperationStrategyMap flattens OperationOverrides into the map Engine needs.
func (p Preset) OperationStrategyMap() map[string]Strategy {
	m := make(map[string]Strategy, len(p.OperationOverrides))
	for _, o := range p.OperationOverrides {
		m[o.Operation] = o.Strategy
	}
	return m
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// PresetRegistry holds the fixed set of named presets loaded once at process
// start. It is never mutated after LoadPresetRegistry returns.
type PresetRegistry struct {
	byName map[string]Preset
	order  []string
}

// LoadPresetRegistry parses the embedded preset definitions. Presets are
// shipped as data (presets.yaml), not Go literals, so operators can audit
// the shipped defaults without reading source.
func LoadPresetRegistry() (*PresetRegistry, error) {
	var pf presetFile
	if err := yaml.Unmarshal(presetsYAML, &pf); err != nil {
		return nil, fmt.Errorf("parsing embedded presets: %w", err)
	}
	reg := &PresetRegistry{byName: make(map[string]Preset, len(pf.Presets))}
	for _, p := range pf.Presets {
		reg.byName[p.Name] = p
		reg.order = append(reg.order, p.Name)
	}
	return reg, nil
}

// Get returns a preset by name.
func (r *PresetRegistry) Get(name string) (Preset, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the registered preset names in load order.
func (r *PresetRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ValidationResult is the shape returned by the validate-template endpoint.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

const (
	minRetryAttempts = 1
	maxRetryAttempts = 10
	minThreshold     = 1
	maxThreshold     = 20
	minRecovery      = 10
	maxRecovery      = 600
)

// Validate checks a preset against the documented numeric ranges and
// closed-set references: default_strategy and every operation override must
// name one of the four known strategies, circuit_threshold and
// recovery_timeout_seconds must fall in their ranges, and
// environment_contexts must be non-empty and drawn entirely from the known
// environment names.
func Validate(p Preset) ValidationResult {
	result := ValidationResult{IsValid: true}

	addErr := func(msg string) {
		result.IsValid = false
		result.Errors = append(result.Errors, msg)
	}

	if !IsKnownStrategy(p.DefaultStrategy) {
		addErr(fmt.Sprintf("default_strategy %q is not one of the known strategies", p.DefaultStrategy))
	}
	if p.RetryAttempts < minRetryAttempts || p.RetryAttempts > maxRetryAttempts {
		addErr(fmt.Sprintf("retry_attempts %d out of range [%d, %d]", p.RetryAttempts, minRetryAttempts, maxRetryAttempts))
	}
	for _, o := range p.OperationOverrides {
		if !IsKnownStrategy(o.Strategy) {
			addErr(fmt.Sprintf("operation_overrides[%s] strategy %q is not one of the known strategies", o.Operation, o.Strategy))
		}
	}
	if p.CircuitThreshold < minThreshold || p.CircuitThreshold > maxThreshold {
		addErr(fmt.Sprintf("circuit_threshold %d out of range [%d, %d]", p.CircuitThreshold, minThreshold, maxThreshold))
	}
	if p.RecoveryTimeoutSecs < minRecovery || p.RecoveryTimeoutSecs > maxRecovery {
		addErr(fmt.Sprintf("recovery_timeout_seconds %d out of range [%d, %d]", p.RecoveryTimeoutSecs, minRecovery, maxRecovery))
	}
	if len(p.EnvironmentContexts) == 0 {
		addErr("environment_contexts must be non-empty")
	}
	for _, ctx := range p.EnvironmentContexts {
		if !isKnownEnvironmentContext(ctx) {
			addErr(fmt.Sprintf("environment_contexts entry %q is not one of the recognized environments", ctx))
		}
	}

	if p.CircuitThreshold > 0 && p.CircuitThreshold < 3 {
		result.Suggestions = append(result.Suggestions, "circuit_threshold below 3 may trip the breaker on isolated blips")
	}
	if p.RecoveryTimeoutSecs > 0 && p.RecoveryTimeoutSecs < 5 {
		result.Suggestions = append(result.Suggestions, "recovery_timeout_seconds below 5 gives upstream little time to recover")
	}

	return result
}

func isKnownEnvironmentContext(ctx string) bool {
	switch ctx {
	case "development", "testing", "staging", "production":
		return true
	default:
		return false
	}
}

// Recommendation is the response shape for the recommend-template endpoint.
type Recommendation struct {
	SuggestedTemplate   string   `json:"suggested_template"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning"`
	EnvironmentDetected string   `json:"environment_detected"`
	AvailableTemplates  []string `json:"available_templates"`
}

var (
	prodPattern    = regexp.MustCompile(`(?i).*prod.*|.*live.*`)
	stagingPattern = regexp.MustCompile(`(?i).*staging.*`)
)

// Recommend maps an environment name to a preset with a confidence score:
// exact matches for production/dev/staging score >= 0.85, pattern matches
// (".*prod.*", ".*live.*", ".*staging.*") score >= 0.70, and anything
// unrecognized falls back to "simple" at 0.50.
func Recommend(environment string, registry *PresetRegistry) Recommendation {
	env := strings.ToLower(strings.TrimSpace(environment))
	available := registry.Names()

	switch env {
	case "production":
		return Recommendation{"production", 0.95, "exact match on environment name \"production\"", env, available}
	case "development", "dev":
		return Recommendation{"development", 0.90, "exact match on environment name \"development\"", env, available}
	case "staging":
		return Recommendation{"production", 0.85, "exact match on environment name \"staging\"; treated as production-like", env, available}
	}

	switch {
	case prodPattern.MatchString(env):
		return Recommendation{"production", 0.75, fmt.Sprintf("environment name %q matches a production-like pattern", environment), env, available}
	case stagingPattern.MatchString(env):
		return Recommendation{"production", 0.70, fmt.Sprintf("environment name %q matches a staging-like pattern", environment), env, available}
	}

	return Recommendation{"simple", 0.50, fmt.Sprintf("environment name %q did not match any known pattern; defaulting to simple", environment), env, available}
}
