// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations, including direct I/O opens and
//     read-only memory mapping
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os, directio and mmap packages
//   - [FaultyFS]: test utility for fault injection (simulate I/O errors)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".vec", fs.Fault{FailOnRead: true})
//
// This package intentionally does NOT include context.Context parameters.
// Local filesystem calls are not interruptible at the syscall level.
package fs
