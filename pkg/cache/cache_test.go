package cache

import (
	"testing"
	"time"
)

func TestSetGetAndExpire(t *testing.T) {
	c := New(10, 0)
	key := KeyFromStrings("unit", "expire")

	if _, ok := c.Get(key); ok {
		t.Fatalf("expected no value initially")
	}

	c.Set(key, "hello", 50*time.Millisecond)
	if v, ok := c.Get(key); !ok || v.(string) != "hello" {
		t.Fatalf("expected value 'hello', got %v ok=%v", v, ok)
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected expired value to be gone")
	}
}

func TestDelete(t *testing.T) {
	c := New(10, 0)
	key := KeyFromStrings("unit", "delete")
	c.Set(key, 42, time.Second)
	if v, ok := c.Get(key); !ok || v.(int) != 42 {
		t.Fatalf("expected 42 present before delete, got %v ok=%v", v, ok)
	}
	c.Delete(key)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected deleted value to be absent")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Get("a") // b is now LRU
	c.Set("c", 3, 0)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}

	c.Resize(1)
	if c.Len() != 1 {
		t.Fatalf("expected resize to evict down to 1, got %d", c.Len())
	}
}

func TestJanitorSweepsExpired(t *testing.T) {
	c := New(0, 10*time.Millisecond)
	defer c.Close()
	c.Set("k", "v", 5*time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not sweep expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKeyFromStringsStability(t *testing.T) {
	k1 := KeyFromStrings("a", "b", "c")
	k2 := KeyFromStrings("a", "b", "c")
	if k1 != k2 {
		t.Fatalf("expected same inputs to yield same key")
	}
	if k1 == KeyFromStrings("a", "b", "d") {
		t.Fatalf("expected different inputs to yield different key")
	}
	if KeyFromStrings("ab", "c") == KeyFromStrings("a", "bc") {
		t.Fatalf("expected part boundaries to matter")
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	c.Set("k", 1, 0)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("nil cache must not return values")
	}
	c.Delete("k")
}
