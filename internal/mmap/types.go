package mmap

import "errors"

// AccessPattern is a paging hint passed to Advise.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	// AccessSequential suits whole-file copies.
	AccessSequential
	// AccessRandom suits graph traversal and code lookups.
	AccessRandom
	// AccessWillNeed prefetches the range.
	AccessWillNeed
)

var (
	ErrClosed        = errors.New("mmap: mapping is closed")
	ErrInvalidSize   = errors.New("mmap: file size out of range")
	ErrInvalidOffset = errors.New("mmap: negative offset")
	// ErrUnsupported is returned by Map where Supported reports false.
	ErrUnsupported = errors.New("mmap: not supported on this platform")
)
