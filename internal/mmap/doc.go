// Package mmap provides read-only memory-mapped file access for segment blocks.
//
// # Usage
//
//	m, err := mmap.Open("seg.vex")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//	_ = m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (advice is a no-op)
//   - Elsewhere: Supported reports false and Map returns ErrUnsupported
//
// # Thread Safety
//
// A Mapping is safe for concurrent read access. Close is idempotent, but
// callers must ensure no goroutine touches Bytes() after Close returns.
package mmap
