package core

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"stitchcore/internal/blob"
	"stitchcore/pkg/domain"
)

func TestAssignmentCacheRoundTrip(t *testing.T) {
	cache := NewAssignmentCache(blob.NewMemory())
	ctx := context.Background()

	five := 5
	entry := domain.CacheEntry{Colors: []domain.CachedColor{{Sequence: 1, NeedleNumber: &five}}}
	entry.Assignments[4] = &domain.NeedleBinding{Code: "137", Name: "Black", RGB: "1A1A1A"}

	if err := cache.Save(ctx, "aaa111bb", entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := cache.Load(ctx, "aaa111bb")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatalf("entry missing after save")
	}
	if loaded.Assignments[4] == nil || loaded.Assignments[4].Code != "137" {
		t.Fatalf("slot 4 = %+v, want code 137", loaded.Assignments[4])
	}
	if len(loaded.Colors) != 1 || loaded.Colors[0].Sequence != 1 || *loaded.Colors[0].NeedleNumber != 5 {
		t.Fatalf("colors = %+v", loaded.Colors)
	}
}

func TestAssignmentCacheSaveReplacesExistingEntry(t *testing.T) {
	cache := NewAssignmentCache(blob.NewMemory())
	ctx := context.Background()

	first := domain.CacheEntry{}
	first.Assignments[0] = &domain.NeedleBinding{Code: "137"}
	if err := cache.Save(ctx, "aaa111bb", first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := domain.CacheEntry{}
	second.Assignments[9] = &domain.NeedleBinding{Code: "135"}
	if err := cache.Save(ctx, "aaa111bb", second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, err := cache.Load(ctx, "aaa111bb")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Assignments[0] != nil {
		t.Fatalf("stale slot 0 survived the replace: %+v", loaded.Assignments[0])
	}
	if loaded.Assignments[9] == nil || loaded.Assignments[9].Code != "135" {
		t.Fatalf("slot 9 = %+v, want code 135", loaded.Assignments[9])
	}
}

func TestAssignmentCacheMissIsNotAnError(t *testing.T) {
	cache := NewAssignmentCache(blob.NewMemory())
	entry, err := cache.Load(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if entry != nil {
		t.Fatalf("entry = %+v, want nil for an absent hash", entry)
	}
}

func TestAssignmentCacheHashesAreIndependent(t *testing.T) {
	cache := NewAssignmentCache(blob.NewMemory())
	ctx := context.Background()

	entry := domain.CacheEntry{}
	entry.Assignments[2] = &domain.NeedleBinding{Code: "137"}
	if err := cache.Save(ctx, "ccc222dd", entry); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := cache.Load(ctx, "aaa111bb")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("entry = %+v, want miss for a hash without an entry", loaded)
	}
}

func TestAssignmentCacheRejectsCorruptedRecord(t *testing.T) {
	store := blob.NewMemory()
	cache := NewAssignmentCache(store)
	ctx := context.Background()

	key := cache.Key("aaa111bb")
	if _, err := store.Put(ctx, key, bytes.NewReader([]byte("{broken")), blob.PutOptions{}); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}
	_, err := cache.Load(ctx, "aaa111bb")
	if err == nil {
		t.Fatalf("corrupted record should fail to load")
	}
	if !strings.Contains(err.Error(), "decode cache entry") {
		t.Fatalf("error = %v, want a decode failure", err)
	}
}

func TestAssignmentCacheKeysListsHashes(t *testing.T) {
	store := blob.NewMemory()
	cache := NewAssignmentCache(store)
	ctx := context.Background()

	for _, hash := range []string{"aaa111bb", "bbb222cc"} {
		if err := cache.Save(ctx, hash, domain.CacheEntry{}); err != nil {
			t.Fatalf("save %s: %v", hash, err)
		}
	}
	// A foreign blob outside the cache namespace must not show up.
	if _, err := store.Put(ctx, "exports/other", bytes.NewReader([]byte("x")), blob.PutOptions{}); err != nil {
		t.Fatalf("seed foreign blob: %v", err)
	}

	hashes, err := cache.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("hashes = %v, want two entries", hashes)
	}
	found := map[string]bool{}
	for _, h := range hashes {
		found[h] = true
	}
	if !found["aaa111bb"] || !found["bbb222cc"] {
		t.Fatalf("hashes = %v", hashes)
	}
}

func TestAssignmentCacheKeyFormat(t *testing.T) {
	cache := NewAssignmentCache(blob.NewMemory())
	if got := cache.Key("aaa111bb"); got != "needle_assignment_aaa111bb" {
		t.Fatalf("key = %q", got)
	}
}
