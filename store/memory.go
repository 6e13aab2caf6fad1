package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/hupe1980/bqhnsw/resource"
)

// MemoryDirectory is an in-memory Directory. Mmap inputs share the stored
// bytes, Heap inputs copy them, and DirectIO inputs serve block-aligned reads.
// It is safe for concurrent use.
type MemoryDirectory struct {
	mu          sync.RWMutex
	files       map[string][]byte
	rc          *resource.Controller
	heapDefault bool
	directIO    bool
}

// MemoryOption configures a MemoryDirectory.
type MemoryOption func(*MemoryDirectory)

// WithMemoryDirectIO sets whether the directory reports direct I/O support.
func WithMemoryDirectIO(ok bool) MemoryOption {
	return func(d *MemoryDirectory) {
		d.directIO = ok
	}
}

// WithMemoryHeapDefault sets whether Auto resolves to Heap.
func WithMemoryHeapDefault(heap bool) MemoryOption {
	return func(d *MemoryDirectory) {
		d.heapDefault = heap
	}
}

// WithMemoryResourceController charges heap inputs against rc.
func WithMemoryResourceController(rc *resource.Controller) MemoryOption {
	return func(d *MemoryDirectory) {
		d.rc = rc
	}
}

// NewMemoryDirectory creates an empty in-memory directory. By default it
// prefers heap access and supports direct I/O.
func NewMemoryDirectory(opts ...MemoryOption) *MemoryDirectory {
	d := &MemoryDirectory{
		files:       make(map[string][]byte),
		heapDefault: true,
		directIO:    true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Create implements Directory.
func (d *MemoryDirectory) Create(name string, mode AccessMode) (Output, error) {
	d.mu.RLock()
	_, exists := d.files[name]
	d.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	return &memoryOutput{dir: d, name: name, align: mode == DirectIO}, nil
}

// Open implements Directory.
func (d *MemoryDirectory) Open(name string, mode AccessMode) (Input, error) {
	d.mu.RLock()
	data, ok := d.files[name]
	d.mu.RUnlock()
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}

	switch mode {
	case Heap:
		if err := d.rc.AcquireMemory(int64(len(data))); err != nil {
			return nil, err
		}
		return newHeapInput(name, slices.Clone(data), d.rc), nil
	case Mmap:
		return &sharedInput{heapInput: heapInput{name: name, data: data}, mode: Mmap}, nil
	case DirectIO:
		if !d.directIO {
			return nil, &UnsupportedModeError{Mode: mode}
		}
		return &sharedInput{heapInput: heapInput{name: name, data: data}, mode: DirectIO}, nil
	}
	return nil, &UnsupportedModeError{Mode: mode}
}

// Delete implements Directory.
func (d *MemoryDirectory) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[name]; !ok {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	delete(d.files, name)
	return nil
}

// Rename implements Directory.
func (d *MemoryDirectory) Rename(from, to string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[from]
	if !ok {
		return &os.PathError{Op: "rename", Path: from, Err: os.ErrNotExist}
	}
	delete(d.files, from)
	d.files[to] = data
	return nil
}

// List implements Directory.
func (d *MemoryDirectory) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// SupportsMemoryMapping implements Directory.
func (d *MemoryDirectory) SupportsMemoryMapping() bool { return true }

// SupportsDirectIO implements Directory.
func (d *MemoryDirectory) SupportsDirectIO() bool { return d.directIO }

// DefaultHeapMode implements Directory.
func (d *MemoryDirectory) DefaultHeapMode() bool { return d.heapDefault }

// FileSize returns the stored size of name, or -1 if it does not exist.
func (d *MemoryDirectory) FileSize(name string) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.files[name]
	if !ok {
		return -1
	}
	return int64(len(data))
}

type memoryOutput struct {
	dir   *MemoryDirectory
	name  string
	buf   bytes.Buffer
	align bool
}

func (o *memoryOutput) Name() string { return o.name }
func (o *memoryOutput) Size() int64  { return int64(o.buf.Len()) }

func (o *memoryOutput) Write(p []byte) (int, error) {
	return o.buf.Write(p)
}

func (o *memoryOutput) Close() error {
	if o.align {
		o.buf.Write(make([]byte, PaddedSize(int64(o.buf.Len()))-int64(o.buf.Len())))
	}
	o.dir.mu.Lock()
	defer o.dir.mu.Unlock()
	if _, exists := o.dir.files[o.name]; exists {
		return fmt.Errorf("%w: %s", ErrExists, o.name)
	}
	o.dir.files[o.name] = slices.Clone(o.buf.Bytes())
	return nil
}

// sharedInput serves reads from bytes owned by the directory.
type sharedInput struct {
	heapInput
	mode AccessMode
}

func (in *sharedInput) Mode() AccessMode { return in.mode }

func (in *sharedInput) Bytes() ([]byte, bool) {
	if in.mode == DirectIO {
		return nil, false
	}
	return in.heapInput.Bytes()
}

func (in *sharedInput) Close() error {
	in.closed.Store(true)
	return nil
}

var _ io.ReaderAt = (*sharedInput)(nil)
