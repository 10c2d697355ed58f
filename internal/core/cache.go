package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"

	"stitchcore/internal/blob"
	"stitchcore/pkg/domain"
)

// cacheKeyPrefix namespaces assignment records within the blob store.
const cacheKeyPrefix = "needle_assignment_"

// AssignmentCache persists per-design needle assignment state in the blob
// store, keyed by the design's eight character content hash. It is a best
// effort layer: callers treat load errors as misses and save errors as
// dropped writes.
type AssignmentCache struct {
	store blob.Store
}

// NewAssignmentCache wraps the given blob store.
func NewAssignmentCache(store blob.Store) *AssignmentCache {
	return &AssignmentCache{store: store}
}

// Key returns the blob key for a content hash.
func (c *AssignmentCache) Key(hash string) string {
	return cacheKeyPrefix + hash
}

// Load returns the cached entry for hash, or nil when no entry exists. A
// non-nil error reports an unreadable or undecodable record; absence is not
// an error.
func (c *AssignmentCache) Load(ctx context.Context, hash string) (*domain.CacheEntry, error) {
	key := c.Key(hash)
	_, rc, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &entry, nil
}

// Save replaces the cached entry for hash with the given assignment state.
// The blob store's Put is create-only, so an existing record is deleted
// first.
func (c *AssignmentCache) Save(ctx context.Context, hash string, entry domain.CacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	key := c.Key(hash)
	if _, err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("replace cache entry %s: %w", key, err)
	}
	if _, err := c.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists the content hashes with a stored entry, for operator audits.
func (c *AssignmentCache) Keys(ctx context.Context) ([]string, error) {
	infos, err := c.store.List(ctx, cacheKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	hashes := make([]string, 0, len(infos))
	for _, info := range infos {
		hashes = append(hashes, info.Key[len(cacheKeyPrefix):])
	}
	return hashes, nil
}
