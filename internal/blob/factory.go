package blob

import (
	"context"
	"fmt"
	"os"
)

// Open selects a blob.Store implementation from environment variables.
//
//	STITCHCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	STITCHCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables are documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	name := os.Getenv("STITCHCORE_BLOB_DRIVER")
	if name == "" {
		name = string(DriverFilesystem)
	}
	switch Driver(name) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("STITCHCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", name)
	}
}
