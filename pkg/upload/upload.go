package upload

import "context"

// Uploader uploads pipeline artifacts to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in a batch directory. The directory basename
	// is used as a sub-prefix under prefix + "/batches/".
	Upload(ctx context.Context, batchDir string) error

	// UploadStore uploads the historical store to prefix + "/store/" +
	// basename, replacing the previous copy.
	UploadStore(ctx context.Context, storePath string) (string, error)
}
