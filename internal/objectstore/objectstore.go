// Package objectstore holds raw uploaded files and archived copies in
// an S3-compatible bucket, with an in-memory implementation for tests
// and single-node development.
package objectstore

import (
	"context"
	"fmt"
	"io"
)

// Store is the object storage surface the pipeline and archive use.
// Keys are flat strings; callers build them with UploadKey/ArchiveKey.
type Store interface {
	// Put writes the object at key, replacing any existing content.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Copy duplicates src to dst within the store.
	Copy(ctx context.Context, src, dst string) error

	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key. Missing objects are not an
	// error.
	Delete(ctx context.Context, key string) error
}

// ErrObjectNotFound reports a Get against a missing key.
type ErrObjectNotFound struct {
	Key string
}

func (e *ErrObjectNotFound) Error() string {
	return fmt.Sprintf("object %s not found", e.Key)
}

// UploadKey is where a session's raw file content lives.
func UploadKey(fileID string) string {
	return "uploads/" + fileID
}

// ArchiveKey is where the archived copy lives, partitioned by business
// day so daily cleanup and audits stay cheap.
func ArchiveKey(businessDay, filename string) string {
	return fmt.Sprintf("archive/%s/%s", businessDay, filename)
}
