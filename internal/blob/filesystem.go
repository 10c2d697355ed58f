package blob

import (
	"stitchcore/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed blob.Store rooted at the
// provided path. It returns the Store interface so call sites never depend on
// the concrete backend.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
