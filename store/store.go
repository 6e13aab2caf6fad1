package store

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// AccessMode selects how an input is read.
type AccessMode uint8

const (
	// Auto picks Heap when the directory prefers heap access, else Mmap when
	// supported, else Heap.
	Auto AccessMode = iota
	// Heap reads the whole file into memory.
	Heap
	// Mmap maps the file read-only.
	Mmap
	// DirectIO reads with O_DIRECT through aligned buffers. Outputs created
	// in this mode are padded to a whole number of blocks.
	DirectIO
)

var modeNames = [...]string{"auto", "heap", "mmap", "direct"}

func (m AccessMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("AccessMode(%d)", uint8(m))
}

// ParseAccessMode parses a mode name as rendered by String.
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "heap":
		return Heap, nil
	case "mmap":
		return Mmap, nil
	case "direct", "directio", "direct_io":
		return DirectIO, nil
	}
	return Auto, fmt.Errorf("store: unknown access mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m AccessMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AccessMode) UnmarshalText(text []byte) error {
	v, err := ParseAccessMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// BlockSize is the alignment unit of DirectIO files.
const BlockSize = 4096

// Directory is a flat namespace of immutable segment files.
type Directory interface {
	// Create starts a new file. The file becomes visible on Close.
	Create(name string, mode AccessMode) (Output, error)
	// Open opens an existing file. Auto must be resolved by the caller.
	Open(name string, mode AccessMode) (Input, error)
	Delete(name string) error
	Rename(from, to string) error
	List() ([]string, error)

	SupportsMemoryMapping() bool
	SupportsDirectIO() bool
	// DefaultHeapMode reports whether Auto should resolve to Heap.
	DefaultHeapMode() bool
}

// Output is an append-only file.
type Output interface {
	io.Writer
	Name() string
	// Size returns the number of bytes written so far.
	Size() int64
	// Close flushes, syncs and closes the file.
	Close() error
}

// Input is a read-only file.
type Input interface {
	io.ReaderAt
	io.Closer
	Name() string
	Size() int64
	Mode() AccessMode
	// Bytes returns the whole content without copying when the input is
	// memory resident (Heap or Mmap).
	Bytes() ([]byte, bool)
}

var (
	// ErrClosed is returned by reads on a closed input.
	ErrClosed = errors.New("store: input closed")
	// ErrExists is returned when creating a file that already exists.
	ErrExists = errors.New("store: file already exists")
)

// UnsupportedModeError is returned when a directory cannot serve an access mode.
type UnsupportedModeError struct {
	Mode AccessMode
	Err  error
}

func (e *UnsupportedModeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: access mode %s not supported: %v", e.Mode, e.Err)
	}
	return fmt.Sprintf("store: access mode %s not supported", e.Mode)
}

func (e *UnsupportedModeError) Unwrap() error { return e.Err }

// ReadError is returned when reading a file fails.
type ReadError struct {
	Name   string
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store: read %s at offset %d: %v", e.Name, e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Resolve maps mode to a concrete mode the directory can serve.
func Resolve(dir Directory, mode AccessMode) (AccessMode, error) {
	switch mode {
	case Auto:
		if dir.DefaultHeapMode() || !dir.SupportsMemoryMapping() {
			return Heap, nil
		}
		return Mmap, nil
	case Heap:
		return Heap, nil
	case Mmap:
		if !dir.SupportsMemoryMapping() {
			return mode, &UnsupportedModeError{Mode: mode}
		}
		return Mmap, nil
	case DirectIO:
		if !dir.SupportsDirectIO() {
			return mode, &UnsupportedModeError{Mode: mode, Err: errors.New("direct I/O unavailable")}
		}
		return DirectIO, nil
	}
	return mode, &UnsupportedModeError{Mode: mode}
}

// ResolveBlock picks the mode for non-raw blocks: Mmap when supported,
// else Heap. Heap-preferring directories always get Heap.
func ResolveBlock(dir Directory) AccessMode {
	if dir.DefaultHeapMode() || !dir.SupportsMemoryMapping() {
		return Heap
	}
	return Mmap
}

// PaddedSize rounds n up to a whole number of blocks.
func PaddedSize(n int64) int64 {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}
