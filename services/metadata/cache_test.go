package metadata

import (
	"testing"
	"time"
)

func TestFileCache_RoundTrip(t *testing.T) {
	cache := newFileCache(t.TempDir(), 24)
	key := cacheKey("tmdb", "find", "tt0041038")

	var missed int64
	if ok, _ := cache.get(key, &missed); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := cache.set(key, int64(42)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	var hit int64
	ok, err := cache.get(key, &hit)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !ok || hit != 42 {
		t.Fatalf("expected cached 42, got ok=%v value=%d", ok, hit)
	}
}

func TestFileCache_EmptyKeyRejected(t *testing.T) {
	cache := newFileCache(t.TempDir(), 24)
	if err := cache.set("", 1); err == nil {
		t.Error("expected error for empty key on set")
	}
	if _, err := cache.get("", new(int)); err == nil {
		t.Error("expected error for empty key on get")
	}
}

func TestFileCache_JitterIsStablePerKey(t *testing.T) {
	cache := newFileCache(t.TempDir(), 24)
	a := cache.jitteredTTL("key-a")
	if b := cache.jitteredTTL("key-a"); a != b {
		t.Fatalf("jitter changed for same key: %v vs %v", a, b)
	}
	if a < 24*time.Hour || a > 28*time.Hour {
		t.Fatalf("jittered TTL out of range: %v", a)
	}
}
