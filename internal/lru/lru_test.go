package lru

import (
	"errors"
	"fmt"
	"testing"
)

func getKey(n int) string {
	return fmt.Sprintf("key-%d", n)
}

func TestCacheRespectsCapacity(t *testing.T) {
	maxItems := 10
	numItems := 10000
	cache := New(maxItems)

	for i := 0; i < numItems; i++ {
		cache.Put(getKey(i), i)
	}

	if cache.Len() != maxItems {
		t.Fatalf("cache exceeded the maximum allowed size: found %d", cache.Len())
	}

	// the most recently inserted keys must still be present.
	for i := numItems - maxItems; i < numItems; i++ {
		if _, ok := cache.Get(getKey(i)); !ok {
			t.Fatalf("expected recently inserted key %s to survive eviction", getKey(i))
		}
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := New(2)
	cache.Put("a", 1)
	cache.Put("b", 2)

	// touch "a" so "b" becomes the least recently used entry.
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("expected a to be present")
	}
	cache.Put("c", 3)

	if _, ok := cache.Get("b"); ok {
		t.Fatal("expected b to have been evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatal("expected c to be present")
	}
}

func TestCapacityZeroIsPassThrough(t *testing.T) {
	cache := New(0)
	cache.Put("a", 1)
	if _, ok := cache.Get("a"); ok {
		t.Fatal("capacity 0 cache should never retain a value")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, found %d entries", cache.Len())
	}
}

func TestNegativeCapacityIsUnbounded(t *testing.T) {
	cache := New(-1)
	for i := 0; i < 5000; i++ {
		cache.Put(getKey(i), i)
	}
	if cache.Len() != 5000 {
		t.Fatalf("expected unbounded cache to hold all entries, found %d", cache.Len())
	}
}

func TestGetOrLoadCachesOnMiss(t *testing.T) {
	cache := New(10)
	calls := 0
	load := func() (interface{}, error) {
		calls++
		return "loaded", nil
	}

	v, err := cache.GetOrLoad("k", load)
	if err != nil || v != "loaded" {
		t.Fatalf("unexpected result: %v %v", v, err)
	}
	v, err = cache.GetOrLoad("k", load)
	if err != nil || v != "loaded" {
		t.Fatalf("unexpected result on second call: %v %v", v, err)
	}
	if calls != 1 {
		t.Fatalf("expected load to run once, ran %d times", calls)
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	cache := New(10)
	wantErr := errors.New("boom")
	_, err := cache.GetOrLoad("k", func() (interface{}, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatal("errored load must not be cached")
	}
}
