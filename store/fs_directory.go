package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/hupe1980/bqhnsw/internal/fs"
	"github.com/hupe1980/bqhnsw/internal/mmap"
	"github.com/hupe1980/bqhnsw/resource"
)

const directCheckName = ".direct_io_check"

// FSOption configures an FSDirectory.
type FSOption func(*FSDirectory)

// WithFileSystem replaces the local filesystem, e.g. with a fault injector.
func WithFileSystem(fsys fs.FileSystem) FSOption {
	return func(d *FSDirectory) {
		d.fs = fsys
	}
}

// WithResourceController charges heap inputs against rc's memory budget.
func WithResourceController(rc *resource.Controller) FSOption {
	return func(d *FSDirectory) {
		d.rc = rc
	}
}

// WithHeapDefault makes Auto resolve to Heap.
func WithHeapDefault(heap bool) FSOption {
	return func(d *FSDirectory) {
		d.heapDefault = heap
	}
}

// FSDirectory is a Directory on a local filesystem.
type FSDirectory struct {
	path        string
	fs          fs.FileSystem
	rc          *resource.Controller
	heapDefault bool

	directOnce sync.Once
	directErr  error
}

// NewFSDirectory opens (creating if needed) the directory at path.
func NewFSDirectory(path string, opts ...FSOption) (*FSDirectory, error) {
	d := &FSDirectory{path: path, fs: fs.Default}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.fs.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", path, err)
	}
	return d, nil
}

// Path returns the directory path.
func (d *FSDirectory) Path() string { return d.path }

func (d *FSDirectory) file(name string) string { return filepath.Join(d.path, name) }

// Create implements Directory. DirectIO files are written with O_DIRECT in
// aligned chunks when the directory supports it, and padded through the page
// cache otherwise.
func (d *FSDirectory) Create(name string, mode AccessMode) (Output, error) {
	const flag = os.O_CREATE | os.O_EXCL | os.O_WRONLY

	if mode == DirectIO && d.checkDirectIO() == nil {
		f, err := d.fs.OpenDirect(d.file(name), flag, 0o644)
		if err != nil {
			return nil, createError(name, err)
		}
		return &directOutput{
			name: name,
			f:    f,
			buf:  fs.AlignedBlock(directBufferSize),
		}, nil
	}

	f, err := d.fs.OpenFile(d.file(name), flag, 0o644)
	if err != nil {
		return nil, createError(name, err)
	}
	return &fileOutput{
		name:  name,
		f:     f,
		w:     bufio.NewWriterSize(f, 64*1024),
		align: mode == DirectIO,
	}, nil
}

func createError(name string, err error) error {
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	return err
}

// Open implements Directory.
func (d *FSDirectory) Open(name string, mode AccessMode) (Input, error) {
	switch mode {
	case Heap:
		return d.openHeap(name)
	case Mmap:
		if !d.SupportsMemoryMapping() {
			return nil, &UnsupportedModeError{Mode: mode}
		}
		m, err := d.fs.Map(d.file(name))
		if err != nil {
			return nil, err
		}
		_ = m.Advise(mmap.AccessRandom)
		return &mmapInput{name: name, m: m}, nil
	case DirectIO:
		if err := d.checkDirectIO(); err != nil {
			return nil, &UnsupportedModeError{Mode: mode, Err: err}
		}
		f, err := d.fs.OpenDirect(d.file(name), os.O_RDONLY, 0)
		if err != nil {
			return nil, err
		}
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &directInput{name: name, f: f, size: fi.Size()}, nil
	}
	return nil, &UnsupportedModeError{Mode: mode}
}

func (d *FSDirectory) openHeap(name string) (Input, error) {
	f, err := d.fs.OpenFile(d.file(name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if err := d.rc.AcquireMemory(size); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if n, err := f.ReadAt(data, 0); err != nil && !(errors.Is(err, io.EOF) && int64(n) == size) {
		d.rc.ReleaseMemory(size)
		return nil, &ReadError{Name: name, Offset: int64(n), Err: err}
	}
	return newHeapInput(name, data, d.rc), nil
}

// Delete implements Directory.
func (d *FSDirectory) Delete(name string) error {
	return d.fs.Remove(d.file(name))
}

// Rename implements Directory.
func (d *FSDirectory) Rename(from, to string) error {
	return d.fs.Rename(d.file(from), d.file(to))
}

// List implements Directory.
func (d *FSDirectory) List() ([]string, error) {
	entries, err := d.fs.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == directCheckName {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// SupportsMemoryMapping implements Directory.
func (d *FSDirectory) SupportsMemoryMapping() bool { return mmap.Supported() }

// SupportsDirectIO implements Directory.
func (d *FSDirectory) SupportsDirectIO() bool { return d.checkDirectIO() == nil }

// DefaultHeapMode implements Directory.
func (d *FSDirectory) DefaultHeapMode() bool { return d.heapDefault }

// checkDirectIO writes one aligned block with O_DIRECT and reads it back.
func (d *FSDirectory) checkDirectIO() error {
	d.directOnce.Do(func() {
		d.directErr = d.runDirectCheck()
	})
	return d.directErr
}

func (d *FSDirectory) runDirectCheck() (err error) {
	path := d.file(directCheckName)
	f, err := d.fs.OpenDirect(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close(), d.fs.Remove(path))
	}()

	block := fs.AlignedBlock(fs.DirectBlockSize)
	for i := range block {
		block[i] = byte(i % 251)
	}
	if _, err := f.Write(block); err != nil {
		return err
	}

	back := fs.AlignedBlock(fs.DirectBlockSize)
	if _, err := f.ReadAt(back, 0); err != nil {
		return err
	}
	if !bytes.Equal(block, back) {
		return errors.New("direct I/O read back mismatch")
	}
	return nil
}

type fileOutput struct {
	name  string
	f     fs.File
	w     *bufio.Writer
	n     int64
	align bool
}

func (o *fileOutput) Name() string { return o.name }
func (o *fileOutput) Size() int64  { return o.n }

func (o *fileOutput) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.n += int64(n)
	return n, err
}

func (o *fileOutput) Close() error {
	var err error
	if o.align {
		if pad := PaddedSize(o.n) - o.n; pad > 0 {
			_, err = o.w.Write(make([]byte, pad))
		}
	}
	if err == nil {
		err = o.w.Flush()
	}
	if err == nil {
		err = o.f.Sync()
	}
	return errors.Join(err, o.f.Close())
}

type mmapInput struct {
	name string
	m    *mmap.Mapping
}

func (in *mmapInput) Name() string          { return in.name }
func (in *mmapInput) Size() int64           { return int64(in.m.Size()) }
func (in *mmapInput) Mode() AccessMode      { return Mmap }
func (in *mmapInput) Bytes() ([]byte, bool) { return in.m.Bytes(), true }
func (in *mmapInput) Close() error          { return in.m.Close() }

func (in *mmapInput) ReadAt(p []byte, off int64) (int, error) {
	n, err := in.m.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &ReadError{Name: in.name, Offset: off, Err: err}
	}
	return n, err
}
