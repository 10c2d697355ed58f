// Package blob re-exports the core object store abstractions for stable
// imports. Application code depends on blob.Store; only this package touches
// the infra-backed implementations.
package blob

import (
	"stitchcore/internal/blob/core"
)

type (
	// Driver identifies an object store backend.
	Driver = core.Driver
	// PutOptions configures an object write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface implemented by every backend.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation is not supported by a driver.
var ErrUnsupported = core.ErrUnsupported
