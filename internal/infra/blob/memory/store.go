// Package memory implements an in-memory object store used by tests and the
// offline validator.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"stitchcore/internal/blob/core"
)

type entry struct {
	info core.Info
	data []byte
}

// Store implements core.Store backed by process memory.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty in-memory store.
func New() *Store { return &Store{entries: make(map[string]entry)} }

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new object; existing keys are rejected.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.entries[key] = entry{info: info, data: data}
	return info, nil
}

// Get returns a detached copy of the object content and metadata. Missing
// keys report iofs.ErrNotExist like the filesystem backend.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, iofs.ErrNotExist)
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	info := e.info
	info.Metadata = cloneMetadata(info.Metadata)
	return info, io.NopCloser(bytes.NewReader(data)), nil
}

// Head returns object metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, iofs.ErrNotExist)
	}
	info := e.info
	info.Metadata = cloneMetadata(info.Metadata)
	return info, nil
}

// Delete removes the object, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

// List returns objects matching prefix in key order.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.entries))
	for key, e := range s.entries {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		info := e.info
		info.Metadata = cloneMetadata(info.Metadata)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not supported by the memory backend.
func (s *Store) PresignURL(_ context.Context, _ string, _ core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
