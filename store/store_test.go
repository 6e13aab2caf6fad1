package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/bqhnsw/internal/fs"
	"github.com/hupe1980/bqhnsw/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir Directory, name string, mode AccessMode, data []byte) {
	t.Helper()
	out, err := dir.Create(name, mode)
	require.NoError(t, err)
	_, err = out.Write(data)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), out.Size())
	require.NoError(t, out.Close())
}

func readAll(t *testing.T, in Input, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := in.ReadAt(buf, 0)
	if err != nil {
		require.ErrorIs(t, err, io.EOF)
	}
	return buf
}

func directories(t *testing.T) map[string]Directory {
	fsd, err := NewFSDirectory(filepath.Join(t.TempDir(), "seg"))
	require.NoError(t, err)
	return map[string]Directory{
		"fs":     fsd,
		"memory": NewMemoryDirectory(),
	}
}

func TestDirectory_RoundTrip(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("0123456789abcdef")
			writeFile(t, dir, "a.vex", Heap, data)

			modes := []AccessMode{Heap}
			if dir.SupportsMemoryMapping() {
				modes = append(modes, Mmap)
			}
			for _, mode := range modes {
				in, err := dir.Open("a.vex", mode)
				require.NoError(t, err)
				assert.Equal(t, mode, in.Mode())
				assert.Equal(t, int64(len(data)), in.Size())

				b, ok := in.Bytes()
				require.True(t, ok)
				assert.Equal(t, data, b)

				part := make([]byte, 4)
				_, err = in.ReadAt(part, 10)
				require.NoError(t, err)
				assert.Equal(t, "abcd", string(part))
				require.NoError(t, in.Close())
			}

			_, err := dir.Create("a.vex", Heap)
			assert.ErrorIs(t, err, ErrExists)

			require.NoError(t, dir.Rename("a.vex", "b.vex"))
			names, err := dir.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"b.vex"}, names)

			require.NoError(t, dir.Delete("b.vex"))
			_, err = dir.Open("b.vex", Heap)
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestDirectory_DirectIO(t *testing.T) {
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			if !dir.SupportsDirectIO() {
				t.Skip("direct I/O not supported here")
			}

			data := make([]byte, 3*BlockSize+100)
			for i := range data {
				data[i] = byte(i % 253)
			}
			writeFile(t, dir, "a.vec", DirectIO, data)

			in, err := dir.Open("a.vec", DirectIO)
			require.NoError(t, err)
			defer in.Close()

			assert.Equal(t, PaddedSize(int64(len(data))), in.Size())
			_, ok := in.Bytes()
			assert.False(t, ok)

			// unaligned read spanning a block boundary
			part := make([]byte, 300)
			_, err = in.ReadAt(part, BlockSize-150)
			require.NoError(t, err)
			assert.Equal(t, data[BlockSize-150:BlockSize+150], part)

			big := readAll(t, in, len(data))
			assert.Equal(t, data, big)
		})
	}
}

func TestResolve(t *testing.T) {
	heapDir := NewMemoryDirectory()
	mode, err := Resolve(heapDir, Auto)
	require.NoError(t, err)
	assert.Equal(t, Heap, mode)

	mmapDir := NewMemoryDirectory(WithMemoryHeapDefault(false), WithMemoryDirectIO(false))
	mode, err = Resolve(mmapDir, Auto)
	require.NoError(t, err)
	assert.Equal(t, Mmap, mode)
	assert.Equal(t, Mmap, ResolveBlock(mmapDir))

	_, err = Resolve(mmapDir, DirectIO)
	var unsupported *UnsupportedModeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, DirectIO, unsupported.Mode)
}

func TestParseAccessMode(t *testing.T) {
	for _, m := range []AccessMode{Auto, Heap, Mmap, DirectIO} {
		got, err := ParseAccessMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseAccessMode("tape")
	assert.Error(t, err)
}

func TestFSDirectory_DirectWrites(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	dir, err := NewFSDirectory(t.TempDir(), WithFileSystem(ffs))
	require.NoError(t, err)
	if !dir.SupportsDirectIO() {
		t.Skip("direct I/O not supported here")
	}

	// Spans several write chunks and ends mid-block.
	data := make([]byte, 2*directBufferSize+BlockSize+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	writeFile(t, dir, "a.vec", DirectIO, data)

	in, err := dir.Open("a.vec", Heap)
	require.NoError(t, err)
	b, ok := in.Bytes()
	require.True(t, ok)
	assert.Equal(t, PaddedSize(int64(len(data))), int64(len(b)))
	assert.Equal(t, data, b[:len(data)])
	assert.Equal(t, make([]byte, len(b)-len(data)), b[len(data):])
	require.NoError(t, in.Close())

	_, err = dir.Create("a.vec", DirectIO)
	assert.ErrorIs(t, err, ErrExists)

	// DirectIO outputs are opened with O_DIRECT; heap outputs are not.
	ffs.AddRule("b.vec", fs.Fault{FailAfterBytes: -1, FailOnDirect: true})
	_, err = dir.Create("b.vec", DirectIO)
	assert.ErrorIs(t, err, fs.ErrInjected)
	writeFile(t, dir, "b.vec", Heap, []byte{1})
}

func TestFSDirectory_DirectIOUnavailable(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(directCheckName, fs.Fault{FailAfterBytes: -1, FailOnDirect: true})

	dir, err := NewFSDirectory(t.TempDir(), WithFileSystem(ffs))
	require.NoError(t, err)
	writeFile(t, dir, "a.vec", DirectIO, []byte{1, 2, 3})

	assert.False(t, dir.SupportsDirectIO())
	_, err = dir.Open("a.vec", DirectIO)
	var unsupported *UnsupportedModeError
	require.ErrorAs(t, err, &unsupported)
	assert.ErrorIs(t, err, fs.ErrInjected)

	in, err := dir.Open("a.vec", Heap)
	require.NoError(t, err)
	assert.Equal(t, int64(BlockSize), in.Size())
	require.NoError(t, in.Close())

	names, err := dir.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.vec"}, names)
}

func TestFSDirectory_HeapReadError(t *testing.T) {
	boom := errors.New("disk on fire")
	ffs := fs.NewFaultyFS(nil)
	dir, err := NewFSDirectory(t.TempDir(), WithFileSystem(ffs))
	require.NoError(t, err)
	writeFile(t, dir, "a.veb", Heap, []byte("payload"))

	ffs.AddRule("a.veb", fs.Fault{FailAfterBytes: -1, FailOnRead: true, Err: boom})
	_, err = dir.Open("a.veb", Heap)
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "a.veb", readErr.Name)
	assert.ErrorIs(t, err, boom)
}

func TestFSDirectory_MemoryBudget(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	dir, err := NewFSDirectory(t.TempDir(), WithResourceController(rc))
	require.NoError(t, err)
	writeFile(t, dir, "small", Heap, make([]byte, 8))
	writeFile(t, dir, "large", Heap, make([]byte, 16))

	in, err := dir.Open("small", Heap)
	require.NoError(t, err)
	assert.Equal(t, int64(8), rc.MemoryUsage())

	_, err = dir.Open("large", Heap)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestMemoryDirectory_Padding(t *testing.T) {
	dir := NewMemoryDirectory()
	writeFile(t, dir, "a.vec", DirectIO, make([]byte, 10))
	assert.Equal(t, int64(BlockSize), dir.FileSize("a.vec"))
	assert.Equal(t, int64(-1), dir.FileSize("missing"))
}
