package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrNotFound is returned when a blob or registry entry does not exist.
	//
	// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
	// The default maps to `os.ErrNotExist`.
	ErrNotFound = os.ErrNotExist

	// ErrAlreadyExists is returned when registering a segment that is
	// already registered.
	ErrAlreadyExists = errors.New("blobstore: already exists")
)

// BlobStore is an abstraction for accessing immutable data blobs (segment files).
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts a streaming write. The blob becomes visible on Close.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.WriteCloser
	Sync() error
}

// Registry records which segments have been published, keyed by segment
// name. Registration is publish-once.
type Registry interface {
	// Register records id for segment. It returns ErrAlreadyExists when the
	// segment is already registered.
	Register(ctx context.Context, segment, id string) error
	// Lookup returns the registered id of segment, or ErrNotFound.
	Lookup(ctx context.Context, segment string) (string, error)
}

// ReadAll reads the whole blob.
func ReadAll(ctx context.Context, b Blob) ([]byte, error) {
	if b.Size() == 0 {
		return []byte{}, nil
	}
	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data := make([]byte, b.Size())
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, fmt.Errorf("blobstore: read %d bytes: %w", len(data), err)
	}
	return data, nil
}

// notFound wraps ErrNotFound with the blob name.
func notFound(name string) error {
	return fmt.Errorf("blobstore: %s: %w", name, ErrNotFound)
}
