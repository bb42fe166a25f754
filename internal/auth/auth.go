// Package auth implements API key authentication: simple set-membership
// checks by default, with an advanced mode selectable through Config.Mode.
// Config carries no per-key metadata, so every configured key is stored
// without metadata and advanced mode authenticates exactly as simple mode.
package auth

import (
	"strings"

	"github.com/aegislabs/promptgate/internal/core"
)

// Mode selects which validation behavior is active.
type Mode string

const (
	ModeSimple   Mode = "simple"
	ModeAdvanced Mode = "advanced"
)

// KeyMetadata describes a key's role, permissions and tracking flags. New
// stores every key with nil metadata, and RequireAuth puts only the
// principal ID on the request context; metadata never participates in the
// authentication decision.
type KeyMetadata struct {
	Role            string
	Permissions     []string
	UserTracking    bool
	RequestLogging  bool
}

// Principal is what a successful authentication produces: a display-safe
// identifier plus the key's metadata, which is nil for every key New loads.
type Principal struct {
	ID         string
	Metadata   *KeyMetadata
	Permissive bool
}

// Authenticator validates bearer/API-key credentials against a configured
// set of keys, with an environment-driven policy: production requires at
// least one configured key, development with zero keys runs permissively.
type Authenticator struct {
	mode        Mode
	keys        map[string]*KeyMetadata
	environment string
	logger      core.Logger
}

// Config builds an Authenticator.
type Config struct {
	Mode               Mode
	APIKey             string
	AdditionalAPIKeys  []string
	Environment        string
	SecurityEnforced   bool // feature-context override: security_enforcement=true
	Logger             core.Logger
}

// New builds an Authenticator from Config. In production (or when
// SecurityEnforced is true) with zero configured keys, it returns a
// ConfigurationError rather than an Authenticator, matching the spec's
// fail-hard-at-startup policy.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSimple
	}

	keys := make(map[string]*KeyMetadata)
	addKey := func(raw string) {
		k := strings.TrimSpace(raw)
		if k == "" {
			return
		}
		keys[k] = nil
	}
	addKey(cfg.APIKey)
	for _, k := range cfg.AdditionalAPIKeys {
		addKey(k)
	}

	strict := cfg.Environment == "production" || cfg.SecurityEnforced
	if strict && len(keys) == 0 {
		return nil, core.NewGatewayError("auth.New", core.KindConfiguration,
			"API_KEY must be configured in production: the security policy requires at least one key",
			map[string]interface{}{"environment": cfg.Environment}, nil)
	}

	return &Authenticator{mode: cfg.Mode, keys: keys, environment: cfg.Environment, logger: cfg.Logger}, nil
}

// Permissive reports whether this authenticator accepts unauthenticated
// requests. This is allowed only in the development environment with zero
// configured keys — staging, testing, and any unrecognized environment
// name must still reject unauthenticated traffic.
func (a *Authenticator) Permissive() bool {
	return a.environment == "development" && len(a.keys) == 0
}

// Verify checks a credential and returns the resulting Principal. An empty
// key is valid only in permissive mode.
func (a *Authenticator) Verify(key string) (*Principal, bool) {
	key = strings.TrimSpace(key)

	if key == "" {
		if a.Permissive() {
			return &Principal{ID: "development", Permissive: true}, true
		}
		return nil, false
	}

	meta, ok := a.keys[key]
	if !ok {
		return nil, false
	}

	principal := &Principal{ID: truncatePrincipal(key)}
	if a.mode == ModeAdvanced {
		principal.Metadata = meta
	}
	return principal, true
}

// truncatePrincipal returns the display-safe form of a key: its first 8
// characters plus an ellipsis. The raw key never leaves the auth boundary.
func truncatePrincipal(key string) string {
	if len(key) <= 8 {
		return key + "..."
	}
	return key[:8] + "..."
}
