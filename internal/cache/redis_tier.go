package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aegislabs/promptgate/internal/core"
)

// RedisTierOptions configures the optional Redis tier. TLS is enabled
// automatically when RedisURL uses the "rediss://" scheme; AUTH/ACL
// credentials may be embedded in the URL or supplied explicitly via
// Username/Password, which take precedence over the URL's userinfo.
type RedisTierOptions struct {
	RedisURL       string
	Username       string
	Password       string
	Namespace      string
	ConnectTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Logger         core.Logger
}

// RedisTier wraps go-redis with the namespacing and connection-lifecycle
// conventions used throughout the gateway, scoped to a single cache
// database rather than the multi-database isolation scheme a full
// agent-mesh framework would need.
type RedisTier struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisTier dials Redis and verifies connectivity with a bounded-timeout
// Ping. Returns a *core.GatewayError with KindConfiguration when the URL is
// missing or cannot be parsed, and with KindInfrastructure when Redis cannot
// be reached, so callers can fall back to memory-only without treating it as
// fatal.
func NewRedisTier(opts RedisTierOptions) (*RedisTier, error) {
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.RedisURL == "" {
		return nil, core.NewGatewayError("cache.NewRedisTier", core.KindConfiguration,
			"CACHE_REDIS_URL is required to initialize the Redis tier", nil, nil)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, core.NewGatewayError("cache.NewRedisTier", core.KindConfiguration,
			"invalid CACHE_REDIS_URL", map[string]interface{}{"error": err.Error()}, err)
	}

	if opts.Username != "" {
		redisOpt.Username = opts.Username
	}
	if opts.Password != "" {
		redisOpt.Password = opts.Password
	}
	if opts.MaxRetries > 0 {
		redisOpt.MaxRetries = opts.MaxRetries
	}
	if opts.RetryDelay > 0 {
		redisOpt.MinRetryBackoff = opts.RetryDelay
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		opts.Logger.Warn("redis tier connection failed, falling back to memory-only", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, core.NewGatewayError("cache.NewRedisTier", core.KindInfrastructure,
			"could not connect to Redis", map[string]interface{}{"error": err.Error()}, err)
	}

	opts.Logger.Info("redis tier connected", map[string]interface{}{
		"tls":       redisOpt.TLSConfig != nil,
		"namespace": opts.Namespace,
	})

	return &RedisTier{client: client, namespace: opts.Namespace, logger: opts.Logger}, nil
}

func (r *RedisTier) formatKey(key string) string {
	if r.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

// Get returns the raw (still compressed/encrypted) bytes stored under key.
func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.formatKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, r.infraErr("cache.RedisTier.Get", err)
	}
	return val, nil
}

// Set stores raw bytes under key with the given TTL. ttl <= 0 means "do not
// cache" and is a no-op, matching the memory tier's contract.
func (r *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.formatKey(key), value, ttl).Err(); err != nil {
		return r.infraErr("cache.RedisTier.Set", err)
	}
	return nil
}

// Delete removes key. Absence is not an error.
func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.formatKey(key)).Err(); err != nil {
		return r.infraErr("cache.RedisTier.Delete", err)
	}
	return nil
}

// Exists reports whether key is present.
func (r *RedisTier) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.formatKey(key)).Result()
	if err != nil {
		return false, r.infraErr("cache.RedisTier.Exists", err)
	}
	return n > 0, nil
}

// Clear removes every key under this tier's namespace. Uses SCAN rather
// than KEYS so it never blocks the server on a large keyspace.
func (r *RedisTier) Clear(ctx context.Context) error {
	pattern := r.formatKey("*")
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return r.infraErr("cache.RedisTier.Clear", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return r.infraErr("cache.RedisTier.Clear", err)
	}
	return nil
}

// Ping verifies connectivity for the cache health check.
func (r *RedisTier) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return r.infraErr("cache.RedisTier.Ping", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisTier) Close() error {
	return r.client.Close()
}

func (r *RedisTier) infraErr(op string, cause error) error {
	return core.NewGatewayError(op, core.KindInfrastructure, "redis tier operation failed",
		map[string]interface{}{"error": cause.Error()}, cause)
}
