package fs

import (
	"io"
	"os"

	"github.com/hupe1980/bqhnsw/internal/mmap"
	"github.com/ncw/directio"
)

// File represents an open file.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem abstracts file system operations for testability.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	// OpenDirect opens name bypassing the OS page cache. Reads and writes
	// must use block-aligned buffers, offsets and lengths.
	OpenDirect(name string, flag int, perm os.FileMode) (File, error)
	// Map memory-maps name read-only.
	Map(name string) (*mmap.Mapping, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
}

// DirectBlockSize is the alignment unit for direct I/O.
const DirectBlockSize = directio.BlockSize

// AlignedBlock returns a buffer of size bytes aligned for direct I/O.
func AlignedBlock(size int) []byte {
	return directio.AlignedBlock(size)
}

// LocalFS implements FileSystem using the local os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) OpenDirect(name string, flag int, perm os.FileMode) (File, error) {
	return directio.OpenFile(name, flag, perm)
}

func (LocalFS) Map(name string) (*mmap.Mapping, error) { return mmap.Open(name) }

func (LocalFS) Remove(name string) error              { return os.Remove(name) }
func (LocalFS) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (LocalFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (LocalFS) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }

// Default is the default local file system.
var Default FileSystem = LocalFS{}
