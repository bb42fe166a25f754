package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// fingerprint hashes the canonical (sorted-key, no-whitespace) serialization
// of v and truncates to 32 hex characters. Used for every component of the
// cache key so identical inputs always produce identical keys regardless of
// map iteration order.
func fingerprint(v interface{}) string {
	canonical := canonicalize(v)
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:32]
}

// canonicalize recursively converts maps into sorted-key slices of
// {key, value} pairs so encoding/json (which does sort map keys for
// map[string]T, but not for map[string]interface{} nested arbitrarily in
// every Go version/vendor) is never relied upon for determinism beyond what
// it already guarantees, and so the same rule applies uniformly to nested
// structures.
func canonicalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			out = append(out, [2]interface{}{k, canonicalize(val[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return val
	}
}

// BuildKey constructs the cache key v1:<operation>:<hash(text)>:<hash(options)>[:<hash(question)>]
// per the cache entry key format. question is included only for the qa
// operation; callers pass "" for every other operation.
func BuildKey(operation, text string, options map[string]interface{}, question string) string {
	if options == nil {
		options = map[string]interface{}{}
	}
	key := fmt.Sprintf("v1:%s:%s:%s", operation, fingerprint(text), fingerprint(options))
	if operation == "qa" {
		key += ":" + fingerprint(question)
	}
	return key
}
