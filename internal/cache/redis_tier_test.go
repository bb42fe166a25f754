package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// setupTestRedis starts an in-process miniredis instance and wires a
// RedisTier against it, the same pattern the teacher uses for its own
// redis-backed tests.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisTier) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	tier, err := NewRedisTier(RedisTierOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "test",
	})
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedisTier: %v", err)
	}

	return mr, tier
}

func TestRedisTierSetGetRoundTrip(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	ctx := context.Background()
	if err := tier.Set(ctx, "greeting", []byte("hello"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := tier.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestRedisTierGetMissReturnsNilNotError(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	got, err := tier.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("expected a miss, not an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on a miss, got %v", got)
	}
}

func TestRedisTierSetSkipsNonPositiveTTL(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	ctx := context.Background()
	if err := tier.Set(ctx, "skip-me", []byte("x"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := tier.Get(ctx, "skip-me")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatal("expected a TTL of 0 to skip storage entirely")
	}
}

func TestRedisTierDeleteAndExists(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	ctx := context.Background()
	if err := tier.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	exists, err := tier.Exists(ctx, "k")
	if err != nil || !exists {
		t.Fatalf("expected k to exist, got exists=%v err=%v", exists, err)
	}

	if err := tier.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, err = tier.Exists(ctx, "k")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected k to be gone after Delete")
	}
}

func TestRedisTierNamespacesKeys(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	if err := tier.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("expected the namespace prefix to be applied to the stored key")
	}
}

func TestRedisTierClearRemovesOnlyNamespace(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	ctx := context.Background()
	if err := tier.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tier.Set(ctx, "b", []byte("2"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.Set("other:untouched", "3")

	if err := tier.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if exists, _ := tier.Exists(ctx, "a"); exists {
		t.Fatal("expected a to be cleared")
	}
	if exists, _ := tier.Exists(ctx, "b"); exists {
		t.Fatal("expected b to be cleared")
	}
	if !mr.Exists("other:untouched") {
		t.Fatal("expected Clear to respect the namespace boundary and leave other keys alone")
	}
}

func TestRedisTierPing(t *testing.T) {
	mr, tier := setupTestRedis(t)
	defer mr.Close()
	defer tier.Close()

	if err := tier.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

// TestCacheUsesRedisTierWhenConfigured exercises cache.go's Redis branches
// (New's redis-tier construction path and Get/Set dispatching to it instead
// of the memory tier) end to end against miniredis, rather than only
// unit-testing RedisTier in isolation.
func TestCacheUsesRedisTierWhenConfigured(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	c, err := New(Options{
		MemoryMaxSize: 10,
		Redis: &RedisTierOptions{
			RedisURL:  "redis://" + mr.Addr(),
			Namespace: "gw",
		},
		Compression: CompressionOptions{
			ThresholdBytes: 1000,
			Level:          6,
			EncryptionKey:  []byte("0123456789abcdef0123456789abcdef"),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if c.Type() != TypeRedisSecure {
		t.Fatalf("expected the Redis tier to be selected, got %v", c.Type())
	}

	ctx := context.Background()
	if err := c.Set(ctx, "req-1", []byte("cached response"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit against the Redis tier")
	}
	if string(got) != "cached response" {
		t.Fatalf("expected %q, got %q", "cached response", got)
	}
}

// TestCacheFallsBackToMemoryWhenRedisUnreachable exercises New's
// degrade-to-memory-only path: an unreachable Redis tier must not fail
// construction, it must silently fall back.
func TestCacheFallsBackToMemoryWhenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close() // nothing is listening at addr anymore

	c, err := New(Options{
		MemoryMaxSize: 10,
		Redis: &RedisTierOptions{
			RedisURL:       "redis://" + addr,
			ConnectTimeout: 50 * time.Millisecond,
		},
		Compression: CompressionOptions{
			ThresholdBytes: 1000,
			Level:          6,
			EncryptionKey:  []byte("0123456789abcdef0123456789abcdef"),
		},
	})
	if err != nil {
		t.Fatalf("expected New to degrade gracefully rather than fail, got: %v", err)
	}
	if c.Type() != TypeMemory {
		t.Fatalf("expected a memory-only fallback, got %v", c.Type())
	}
}
