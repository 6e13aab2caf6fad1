// Package store abstracts the directory a segment's files live in.
//
// A [Directory] creates append-only outputs and opens read-only inputs in one
// of three access modes:
//
//   - [Heap]: the whole file is read into Go memory
//   - [Mmap]: the file is memory-mapped read-only
//   - [DirectIO]: reads bypass the page cache with block-aligned buffers
//
// [FSDirectory] stores files on a local filesystem. Whether direct I/O works
// there is decided by a check that writes and reads back one aligned block;
// the result is cached for the lifetime of the directory.
// [MemoryDirectory] keeps files in memory and is meant for tests and
// short-lived segments.
package store
