package fs

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/bqhnsw/internal/mmap"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault error")

// Fault defines specific failure behavior.
type Fault struct {
	FailAfterBytes int64 // Fail writes after this many bytes written to this file. -1 to disable.
	FailOnSync     bool
	FailOnClose    bool
	FailOnRead     bool // Fail every Read and ReadAt.
	FailOnDirect   bool // Fail OpenDirect.
	FailOnMap      bool // Fail Map.
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type rule struct {
	pattern string
	fault   Fault
}

// FaultyFS is a FileSystem wrapper that can inject errors.
type FaultyFS struct {
	FS FileSystem

	mu    sync.Mutex
	rules []rule
}

// NewFaultyFS creates a new FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{FS: fs}
}

// AddRule adds a fault injection rule for names containing pattern.
// The last matching rule wins.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{pattern: pattern, fault: fault})
}

// ClearRules removes every rule.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

func (f *FaultyFS) match(name string) (Fault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault, ok := Fault{FailAfterBytes: -1}, false
	for _, r := range f.rules {
		if strings.Contains(name, r.pattern) {
			fault, ok = r.fault, true
		}
	}
	return fault, ok
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f.wrap(name, file), nil
}

func (f *FaultyFS) OpenDirect(name string, flag int, perm os.FileMode) (File, error) {
	if fault, ok := f.match(name); ok && fault.FailOnDirect {
		return nil, fault.err()
	}
	file, err := f.FS.OpenDirect(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f.wrap(name, file), nil
}

func (f *FaultyFS) Map(name string) (*mmap.Mapping, error) {
	if fault, ok := f.match(name); ok && fault.FailOnMap {
		return nil, fault.err()
	}
	return f.FS.Map(name)
}

func (f *FaultyFS) wrap(name string, file File) File {
	fault, ok := f.match(name)
	if !ok {
		return file
	}
	return &faultyFile{File: file, fault: fault}
}

func (f *FaultyFS) Remove(name string) error {
	return f.FS.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}

func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error) {
	return f.FS.ReadDir(name)
}

type faultyFile struct {
	File
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if ff.fault.FailAfterBytes >= 0 && ff.written+int64(len(p)) > ff.fault.FailAfterBytes {
		return 0, ff.fault.err()
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fault.err()
	}
	return ff.File.Read(p)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fault.err()
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if ff.fault.FailOnClose {
		_ = ff.File.Close()
		return ff.fault.err()
	}
	return ff.File.Close()
}

var _ io.ReaderAt = (*faultyFile)(nil)
