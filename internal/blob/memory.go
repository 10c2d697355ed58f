package blob

import (
	memorystore "stitchcore/internal/infra/blob/memory"
)

// NewMemory returns an in-memory blob.Store suitable for tests and the
// offline validator CLI.
func NewMemory() Store { return memorystore.New() }
