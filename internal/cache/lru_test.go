package cache

import (
	"errors"
	"testing"
	"time"
)

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Get("key1") // key2 becomes least recently used
	c.Set("key4", "value4")

	if _, found := c.Get("key2"); found {
		t.Error("key2 should have been evicted")
	}
	for _, k := range []string{"key1", "key3", "key4"} {
		if _, found := c.Get(k); !found {
			t.Errorf("%s should still exist", k)
		}
	}
	if c.Size() != 3 {
		t.Errorf("Size = %d, want 3", c.Size())
	}
}

func TestLRUCacheTTLExpiration(t *testing.T) {
	c := NewLRUCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	time.Sleep(60 * time.Millisecond)

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have expired")
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c := NewLRUCache[string](100, 50*time.Millisecond)
	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")

	time.Sleep(60 * time.Millisecond)

	if removed := c.CleanExpired(); removed != 3 {
		t.Errorf("Expected 3 items cleaned, got %d", removed)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d after cleanup", c.Size())
	}
}

func TestLRUCacheGetOrLoad(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("answer", load)
		if err != nil || v != 42 {
			t.Fatalf("GetOrLoad = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	_, err := c.GetOrLoad("broken", func() (int, error) { return 0, errors.New("boom") })
	if err == nil {
		t.Fatal("expected loader error")
	}
	if _, found := c.Get("broken"); found {
		t.Error("errors must not be cached")
	}
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)
	c.Set("key", "value")

	m := NewManager()
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if c.Size() != 0 {
		t.Error("manager should have removed the expired entry")
	}
}

func BenchmarkLRUCache(b *testing.B) {
	c := NewLRUCache[string](1000, time.Hour)

	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set("bench-key", "value")
		} else {
			c.Get("bench-key")
		}
	}
}
