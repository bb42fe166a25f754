package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aegislabs/promptgate/internal/core"
)

// Type reports which backend is currently active, for health reporting.
type Type string

const (
	TypeRedisSecure Type = "redis_secure"
	TypeMemory      Type = "memory"
)

// operationTTL is the AI-cache TTL policy keyed by operation. A
// caller-supplied TTL overrides this; 0 or negative means "do not cache".
var operationTTL = map[string]time.Duration{
	"summarize":  7200 * time.Second,
	"sentiment":  86400 * time.Second,
	"key_points": 7200 * time.Second,
	"questions":  3600 * time.Second,
	"qa":         1800 * time.Second,
}

// TTLFor returns the default TTL for operation, or 0 if the operation is
// unrecognized (callers should treat that as "do not cache").
func TTLFor(operation string) time.Duration {
	return operationTTL[operation]
}

const healthCheckKey = "_health_check_test"

// Options configures Cache construction.
type Options struct {
	MemoryMaxSize int
	Redis         *RedisTierOptions // nil disables the Redis tier
	Compression   CompressionOptions
	Logger        core.Logger
}

// CompressionOptions configures the Codec shared by both tiers.
type CompressionOptions struct {
	ThresholdBytes int
	Level          int            // 1-9, default 6
	EncryptionKey  []byte         // required when Redis is active
}

// Cache is the unified two-tier cache described by the cache layer design:
// memory is always available, Redis is promoted over it when configured and
// reachable, and initialization never fails even if Redis is unreachable —
// it just degrades to memory-only.
type Cache struct {
	memory     *MemoryTier
	redis      *RedisTier
	memoryCodec *Codec
	redisCodec  *Codec
	cacheType  Type
	logger     core.Logger
}

// New builds a Cache per Options. Redis is attempted first if opts.Redis is
// non-nil; a failure to build or reach the Redis tier logs and falls back
// to memory-only rather than returning an error. Configuration mistakes
// still surface as errors to the caller: a missing encryption key when
// Redis is requested, or an invalid key or compression level.
func New(opts Options) (*Cache, error) {
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}

	memoryCodec, err := NewCodec(opts.Compression.ThresholdBytes, opts.Compression.Level, nil)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		memory:      NewMemoryTier(opts.MemoryMaxSize),
		memoryCodec: memoryCodec,
		cacheType:   TypeMemory,
		logger:      opts.Logger,
	}

	if opts.Redis == nil {
		return c, nil
	}

	if len(opts.Compression.EncryptionKey) == 0 {
		return nil, core.NewGatewayError("cache.New", core.KindConfiguration,
			"REDIS_ENCRYPTION_KEY is required when CACHE_REDIS_URL is set", nil, nil)
	}

	redisCodec, err := NewCodec(opts.Compression.ThresholdBytes, opts.Compression.Level, opts.Compression.EncryptionKey)
	if err != nil {
		return nil, err
	}

	redisTier, err := NewRedisTier(*opts.Redis)
	if err != nil {
		opts.Logger.Warn("cache falling back to memory-only", map[string]interface{}{"error": err.Error()})
		return c, nil
	}

	c.redis = redisTier
	c.redisCodec = redisCodec
	c.cacheType = TypeRedisSecure
	return c, nil
}

// Type reports the active backend for health reporting.
func (c *Cache) Type() Type { return c.cacheType }

func (c *Cache) activeCodec() *Codec {
	if c.redis != nil {
		return c.redisCodec
	}
	return c.memoryCodec
}

// Get looks up key, decoding (decrypt-then-decompress) the stored value.
// Returns ok=false on a miss in either backend. A Redis read failure is
// logged and reported as a miss; an error is returned only when a stored
// value cannot be decoded.
func (c *Cache) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key)
		if err != nil {
			c.logger.Warn("redis get failed, degrading to miss", map[string]interface{}{"error": err.Error()})
			return nil, false, nil
		}
		if raw == nil {
			return nil, false, nil
		}
		stored, compressed, err := unframeCompressed(raw)
		if err != nil {
			return nil, false, err
		}
		decoded, err := c.redisCodec.Decode(stored, compressed)
		if err != nil {
			return nil, false, err
		}
		return decoded, true, nil
	}

	entry, found := c.memory.Get(key)
	if !found {
		return nil, false, nil
	}
	decoded, err := c.memoryCodec.Decode(entry.Value, entry.Compressed)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// frameCompressed/unframeCompressed carry the "compressed" flag alongside
// the Redis-stored bytes with a one-byte marker, since unlike the memory
// tier's Entry struct, Redis has nowhere else to keep per-value metadata.
func frameCompressed(value []byte, compressed bool) []byte {
	flag := byte(0)
	if compressed {
		flag = 1
	}
	return append([]byte{flag}, value...)
}

func unframeCompressed(framed []byte) (value []byte, compressed bool, err error) {
	if len(framed) < 1 {
		return nil, false, fmt.Errorf("stored value missing compression marker")
	}
	return framed[1:], framed[0] == 1, nil
}

// Set stores value under key with ttl (0 or negative skips storage). The
// active tier's codec compresses/encrypts as configured.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if c.redis != nil {
		stored, compressed, err := c.redisCodec.Encode(value)
		if err != nil {
			return err
		}
		framed := frameCompressed(stored, compressed)
		if err := c.redis.Set(ctx, key, framed, ttl); err != nil {
			c.logger.Warn("redis set failed, value not cached", map[string]interface{}{"error": err.Error()})
			return nil
		}
		return nil
	}

	stored, compressed, err := c.memoryCodec.Encode(value)
	if err != nil {
		return err
	}
	c.memory.Set(key, stored, ttl, compressed)
	return nil
}

// Delete removes key from the active tier.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.redis != nil {
		return c.redis.Delete(ctx, key)
	}
	c.memory.Delete(key)
	return nil
}

// Exists reports whether key is present in the active tier.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c.redis != nil {
		return c.redis.Exists(ctx, key)
	}
	return c.memory.Exists(key), nil
}

// Clear empties the active tier.
func (c *Cache) Clear(ctx context.Context) error {
	if c.redis != nil {
		return c.redis.Clear(ctx)
	}
	c.memory.Clear()
	return nil
}

// Stats returns memory-tier statistics. When Redis is active the memory
// tier sits idle, so stats report zeroes; Redis-side stats are obtained via
// INFO in a full deployment, out of scope here.
func (c *Cache) Stats() Stats {
	return c.memory.Stats()
}

// HealthResult is the shape of the cache health check.
type HealthResult struct {
	Healthy   bool      `json:"healthy"`
	CacheType Type      `json:"cache_type"`
	Errors    []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheck round-trips a sentinel key with a 10s TTL: write, read-back
// equality, then delete. Any mismatch or error is reported, never panics.
func (c *Cache) HealthCheck(ctx context.Context) HealthResult {
	result := HealthResult{Healthy: true, CacheType: c.cacheType, Timestamp: time.Now()}

	probe := []byte("ok")
	if err := c.Set(ctx, healthCheckKey, probe, 10*time.Second); err != nil {
		result.Healthy = false
		result.Errors = append(result.Errors, "write: "+err.Error())
		return result
	}

	got, ok, err := c.Get(ctx, healthCheckKey)
	if err != nil {
		result.Healthy = false
		result.Errors = append(result.Errors, "read: "+err.Error())
	} else if !ok || string(got) != string(probe) {
		result.Healthy = false
		result.Errors = append(result.Errors, "round-trip value mismatch")
	}

	if err := c.Delete(ctx, healthCheckKey); err != nil {
		result.Healthy = false
		result.Errors = append(result.Errors, "delete: "+err.Error())
	}

	return result
}
