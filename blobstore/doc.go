// Package blobstore provides storage abstraction for archiving sealed segments.
//
// BlobStore is the interface for reading and writing data blobs (segment files).
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: In-memory, for tests
//   - LocalStore: Local filesystem with atomic temp+rename writes and mmap reads
//   - CompressedStore: Wraps any store with LZ4 or Zstandard compression
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// A Registry records published segments with publish-once semantics:
//
//   - MemoryRegistry: In-memory
//   - s3.DDBRegistry: DynamoDB conditional writes
//   - s3.ObjectRegistry: S3 conditional writes (If-None-Match)
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for writing
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
