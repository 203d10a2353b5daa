// Package filestore provides the backing-file abstraction for spilled runs.
//
// A Factory hands out one Handle per spill file. Handles are exclusively
// owned by the run they back: nothing else writes to, reads from, or removes
// the file. The engine does not prescribe an on-disk byte format; whatever is
// written through OpenWrite must simply read back in the same order through
// OpenRead.
//
// # Built-in Implementations
//
//   - LocalFactory: numbered files under a local directory
//   - MemoryFactory: in-memory blobs, for tests and small workloads
//   - CompressedFactory: zstd or lz4 stream compression over another factory
//   - RateLimitedFactory: throttled writes over another factory
//   - minio.Factory: S3-compatible object storage (subpackage)
package filestore

import (
	"errors"
	"io"
)

// ErrNotFound is returned when a handle's backing file does not exist.
var ErrNotFound = errors.New("backing file not found")

// Factory produces a handle for a new backing file on demand.
type Factory interface {
	// Create allocates a new, empty backing file and returns its handle.
	Create() (Handle, error)
}

// Handle is a single backing file owned by one sorted run.
type Handle interface {
	// Name identifies the backing file (for logs and debugging).
	Name() string

	// OpenWrite opens the file for writing, truncating any previous
	// content. The content is visible to OpenRead only after a
	// successful Close.
	OpenWrite() (io.WriteCloser, error)

	// OpenRead opens the file for sequential reading.
	OpenRead() (io.ReadCloser, error)

	// Remove deletes the backing file. Removing an already-removed
	// file is not an error.
	Remove() error
}
