package chain

import "testing"

func TestTimestampCacheEvictsOldest(t *testing.T) {
	cache := newTimestampCache(3)
	for block := uint64(1); block <= 5; block++ {
		cache.put(block, 1_700_000_000+block)
	}

	if len(cache.byNum) != 3 {
		t.Fatalf("expected 3 cached blocks, got %d", len(cache.byNum))
	}
	for _, evicted := range []uint64{1, 2} {
		if _, ok := cache.get(evicted); ok {
			t.Fatalf("block %d should be evicted", evicted)
		}
	}
	if ts, ok := cache.get(5); !ok || ts != 1_700_000_005 {
		t.Fatalf("block 5 mismatch: %d %v", ts, ok)
	}

	cache.put(4, 42)
	cache.put(6, 1_700_000_006)
	if len(cache.byNum) != 3 {
		t.Fatalf("cache grew past its limit: %d", len(cache.byNum))
	}
	if ts, ok := cache.get(4); !ok || ts != 42 {
		t.Fatalf("block 4 should be updated in place: %d %v", ts, ok)
	}
	if _, ok := cache.get(3); ok {
		t.Fatalf("block 3 should be evicted")
	}
}
