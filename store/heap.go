package store

import (
	"io"
	"sync/atomic"

	"github.com/hupe1980/bqhnsw/resource"
)

type heapInput struct {
	name   string
	data   []byte
	rc     *resource.Controller
	closed atomic.Bool
}

func newHeapInput(name string, data []byte, rc *resource.Controller) *heapInput {
	return &heapInput{name: name, data: data, rc: rc}
}

func (in *heapInput) Name() string     { return in.name }
func (in *heapInput) Size() int64      { return int64(len(in.data)) }
func (in *heapInput) Mode() AccessMode { return Heap }

func (in *heapInput) Bytes() ([]byte, bool) {
	if in.closed.Load() {
		return nil, false
	}
	return in.data, true
}

func (in *heapInput) ReadAt(p []byte, off int64) (int, error) {
	if in.closed.Load() {
		return 0, &ReadError{Name: in.name, Offset: off, Err: ErrClosed}
	}
	if off < 0 || off >= int64(len(in.data)) {
		return 0, io.EOF
	}
	n := copy(p, in.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (in *heapInput) Close() error {
	if in.closed.Swap(true) {
		return nil
	}
	in.rc.ReleaseMemory(int64(len(in.data)))
	return nil
}
