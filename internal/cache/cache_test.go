package cache

import (
	"context"
	"testing"
	"time"
)

func newMemoryOnlyCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Options{MemoryMaxSize: 100, Compression: CompressionOptions{ThresholdBytes: 1000, Level: 6}})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	c := newMemoryOnlyCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("value"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(got) != "value" {
		t.Fatalf("expected hit with value %q, got ok=%v value=%q", "value", ok, got)
	}
}

func TestCacheDefaultsToMemoryType(t *testing.T) {
	c := newMemoryOnlyCache(t)
	if c.Type() != TypeMemory {
		t.Fatalf("expected memory tier without Redis options, got %s", c.Type())
	}
}

func TestCacheHealthCheckRoundTrips(t *testing.T) {
	c := newMemoryOnlyCache(t)
	result := c.HealthCheck(context.Background())
	if !result.Healthy {
		t.Fatalf("expected healthy result, got errors: %v", result.Errors)
	}
	if result.CacheType != TypeMemory {
		t.Fatalf("expected cache_type memory, got %s", result.CacheType)
	}

	// the sentinel key must not linger after the health check
	if _, ok, _ := c.Get(context.Background(), healthCheckKey); ok {
		t.Fatal("health check sentinel key must be deleted after the probe")
	}
}

func TestCacheNewRequiresEncryptionKeyWhenRedisRequested(t *testing.T) {
	_, err := New(Options{
		MemoryMaxSize: 10,
		Redis:         &RedisTierOptions{RedisURL: "redis://localhost:6379"},
		Compression:   CompressionOptions{ThresholdBytes: 1000, Level: 6},
	})
	if err == nil {
		t.Fatal("expected a configuration error when Redis is requested without an encryption key")
	}
}

func TestTTLForKnownOperations(t *testing.T) {
	cases := map[string]time.Duration{
		"summarize":  7200 * time.Second,
		"sentiment":  86400 * time.Second,
		"key_points": 7200 * time.Second,
		"questions":  3600 * time.Second,
		"qa":         1800 * time.Second,
	}
	for op, want := range cases {
		if got := TTLFor(op); got != want {
			t.Errorf("TTLFor(%q) = %v, want %v", op, got, want)
		}
	}
	if TTLFor("unknown") != 0 {
		t.Fatal("unknown operation must default to 0 (do not cache)")
	}
}
