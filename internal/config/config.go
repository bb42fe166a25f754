// Package config loads the gateway's configuration from environment
// variables, following the same explicit-lookup-with-default convention
// the rest of the stack uses rather than a tag-driven reflection loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aegislabs/promptgate/internal/core"
)

// Config is every environment-driven setting the gateway needs at startup.
type Config struct {
	Environment string

	APIKey            string
	AdditionalAPIKeys []string
	AuthMode          string

	ResiliencePreset      string
	ResilienceCustomJSON  string

	CachePreset         string
	CacheRedisURL       string
	RedisEncryptionKey  string

	InputMaxLength   int
	BatchConcurrency int

	EnableAICache        bool
	EnforceAuth          bool
	EnableUserTracking   bool
	EnableRequestLogging bool
	RateLimitingEnabled  bool

	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads every setting from the environment, applying defaults where
// unset. It fails only when INPUT_MAX_LENGTH or BATCH_CONCURRENCY is set to
// a non-integer; environment-driven policy failures (like production
// requiring an API key) are the auth package's responsibility, since Config
// has no opinion about policy.
func Load() (*Config, error) {
	c := &Config{
		Environment: firstNonEmpty(
			os.Getenv("ENVIRONMENT"),
			os.Getenv("APP_ENV"),
			os.Getenv("NODE_ENV"),
			os.Getenv("FLASK_ENV"),
			"development",
		),
		APIKey:               os.Getenv("API_KEY"),
		AdditionalAPIKeys:    splitAndTrim(os.Getenv("ADDITIONAL_API_KEYS")),
		AuthMode:             envOr("AUTH_MODE", "simple"),
		ResiliencePreset:     envOr("RESILIENCE_PRESET", "simple"),
		ResilienceCustomJSON: os.Getenv("RESILIENCE_CUSTOM_CONFIG"),
		CachePreset:          envOr("CACHE_PRESET", "disabled"),
		CacheRedisURL:        os.Getenv("CACHE_REDIS_URL"),
		RedisEncryptionKey:   os.Getenv("REDIS_ENCRYPTION_KEY"),
		InputMaxLength:       2048,
		BatchConcurrency:     10,
		EnableAICache:        envBool("ENABLE_AI_CACHE", true),
		EnforceAuth:          envBool("ENFORCE_AUTH", true),
		EnableUserTracking:   envBool("ENABLE_USER_TRACKING", false),
		EnableRequestLogging: envBool("ENABLE_REQUEST_LOGGING", true),
		RateLimitingEnabled:  envBool("RATE_LIMITING_ENABLED", false),
		LogLevel:             envOr("LOG_LEVEL", "info"),
		LogFormat:            envOr("LOG_FORMAT", "json"),
		LogOutput:            envOr("LOG_OUTPUT", "stdout"),
	}

	if v := os.Getenv("INPUT_MAX_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, core.NewGatewayError("config.Load", core.KindConfiguration,
				"INPUT_MAX_LENGTH must be an integer", map[string]interface{}{"value": v}, err)
		}
		c.InputMaxLength = n
	}

	if v := os.Getenv("BATCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, core.NewGatewayError("config.Load", core.KindConfiguration,
				"BATCH_CONCURRENCY must be an integer", map[string]interface{}{"value": v}, err)
		}
		c.BatchConcurrency = n
	}

	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "true", "1", "yes", "enabled":
		return true
	default:
		return false
	}
}

func splitAndTrim(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// String renders a safe summary for startup logs: credentials are never
// included.
func (c *Config) String() string {
	return fmt.Sprintf("environment=%s auth_mode=%s resilience_preset=%s cache_preset=%s",
		c.Environment, c.AuthMode, c.ResiliencePreset, c.CachePreset)
}
