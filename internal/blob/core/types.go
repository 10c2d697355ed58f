// Package core defines the storage-agnostic object store abstractions shared
// by the concrete backends under internal/infra/blob.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete object store backend.
type Driver string

const (
	// DriverFilesystem stores objects under a local directory root.
	DriverFilesystem Driver = "fs" // local filesystem (default, dev)
	// DriverS3 targets an S3 / MinIO compatible service.
	DriverS3 Driver = "s3"
	// DriverMemory keeps objects in process memory, used by tests.
	DriverMemory Driver = "memory"
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // user metadata (small, flat key-value)
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method  string        // GET|PUT (only GET is used internally)
	Expiry  time.Duration // default 15m
	Headers map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Store is the minimal object store surface the engine relies on. Needle
// assignment cache records and generated loading sheets both persist through
// it.
type Store interface {
	// Put stores a new object at key and fails if the key already exists.
	// Callers that replace an object delete the stale key first.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns object content and metadata. Missing keys yield an
	// os.ErrNotExist style error.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes an object, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	// PresignURL returns a time-limited URL for the key. Backends without
	// signing return ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver reports the configured backend.
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("blobstore: unsupported operation")
