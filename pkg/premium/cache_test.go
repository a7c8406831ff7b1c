package premium_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

func TestLRUCache_GetSet(t *testing.T) {
	cache := premium.NewLRUCache(10)

	if _, found := cache.Get("user1"); found {
		t.Fatal("Expected cache miss for unknown user")
	}

	cache.Set(&premium.Status{UserID: "user1", IsPremium: true}, time.Minute)

	got, found := cache.Get("user1")
	if !found {
		t.Fatal("Expected cache hit")
	}
	if !got.IsPremium {
		t.Error("Expected cached status to be premium")
	}

	// mutating the copy must not affect the cache
	got.IsPremium = false
	again, _ := cache.Get("user1")
	if !again.IsPremium {
		t.Error("Expected cache to return copies")
	}
}

func TestLRUCache_TTL(t *testing.T) {
	cache := premium.NewLRUCache(10)

	cache.Set(&premium.Status{UserID: "user1"}, 10*time.Millisecond)
	if _, found := cache.Get("user1"); !found {
		t.Error("Expected cache hit immediately after set")
	}

	time.Sleep(20 * time.Millisecond)

	if _, found := cache.Get("user1"); found {
		t.Error("Expected cache miss after TTL expiration")
	}
}

func TestLRUCache_ZeroTTLNotStored(t *testing.T) {
	cache := premium.NewLRUCache(10)
	cache.Set(&premium.Status{UserID: "user1"}, 0)
	if cache.Stats().Size != 0 {
		t.Error("Expected zero TTL entries to be skipped")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	cache := premium.NewLRUCache(10)

	cache.Get("user1")
	cache.Set(&premium.Status{UserID: "user1"}, time.Minute)
	cache.Get("user1")

	stats := cache.Stats()
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits)
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := premium.NewLRUCache(2)

	cache.Set(&premium.Status{UserID: "a"}, time.Minute)
	cache.Set(&premium.Status{UserID: "b"}, time.Minute)
	cache.Get("a")
	cache.Set(&premium.Status{UserID: "c"}, time.Minute)

	stats := cache.Stats()
	if stats.Evictions != 1 || stats.Size != 2 {
		t.Fatalf("Expected 1 eviction and size 2, got %+v", stats)
	}
	if _, found := cache.Get("a"); !found {
		t.Error("Expected recently used entry to survive")
	}
}

func TestLRUCache_Invalidate(t *testing.T) {
	cache := premium.NewLRUCache(10)
	for i := 0; i < 3; i++ {
		cache.Set(&premium.Status{UserID: fmt.Sprintf("user%d", i)}, time.Minute)
	}
	cache.Invalidate("user1")

	if _, found := cache.Get("user1"); found {
		t.Error("Expected invalidated entry to be gone")
	}
	if cache.Stats().Size != 2 {
		t.Errorf("Expected size 2, got %d", cache.Stats().Size)
	}
}

func TestNoopCache(t *testing.T) {
	cache := &premium.NoopCache{}
	cache.Set(&premium.Status{UserID: "user1"}, time.Minute)
	if _, found := cache.Get("user1"); found {
		t.Error("NoopCache should never hit")
	}
}
