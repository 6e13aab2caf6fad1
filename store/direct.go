package store

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/bqhnsw/internal/fs"
)

const directBufferSize = 16 * BlockSize

var directPool = sync.Pool{
	New: func() any {
		b := fs.AlignedBlock(directBufferSize)
		return &b
	},
}

// directInput serves reads from an O_DIRECT file by reading the aligned
// block span around each request.
type directInput struct {
	name   string
	f      fs.File
	size   int64
	closed atomic.Bool
}

func (in *directInput) Name() string          { return in.name }
func (in *directInput) Size() int64           { return in.size }
func (in *directInput) Mode() AccessMode      { return DirectIO }
func (in *directInput) Bytes() ([]byte, bool) { return nil, false }

func (in *directInput) Close() error {
	if in.closed.Swap(true) {
		return nil
	}
	return in.f.Close()
}

func (in *directInput) ReadAt(p []byte, off int64) (int, error) {
	if in.closed.Load() {
		return 0, &ReadError{Name: in.name, Offset: off, Err: ErrClosed}
	}
	if off < 0 || off >= in.size {
		return 0, io.EOF
	}

	start := off &^ (BlockSize - 1)
	end := min(PaddedSize(off+int64(len(p))), PaddedSize(in.size))
	span := int(end - start)

	var buf []byte
	if span <= directBufferSize {
		pb := directPool.Get().(*[]byte)
		defer directPool.Put(pb)
		buf = (*pb)[:span]
	} else {
		buf = fs.AlignedBlock(span)
	}

	n, err := in.f.ReadAt(buf, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, &ReadError{Name: in.name, Offset: off, Err: err}
	}

	skip := int(off - start)
	if n <= skip {
		return 0, io.EOF
	}
	copied := copy(p, buf[skip:n])
	if copied < len(p) {
		return copied, io.EOF
	}
	return copied, nil
}

// directOutput writes an O_DIRECT file in aligned chunks. The tail is zero
// padded to BlockSize on Close.
type directOutput struct {
	name string
	f    fs.File
	buf  []byte
	used int
	n    int64
}

func (o *directOutput) Name() string { return o.name }
func (o *directOutput) Size() int64  { return o.n }

func (o *directOutput) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		c := copy(o.buf[o.used:], p)
		o.used += c
		o.n += int64(c)
		written += c
		p = p[c:]
		if o.used == len(o.buf) {
			if err := o.flush(len(o.buf)); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func (o *directOutput) flush(size int) error {
	_, err := o.f.Write(o.buf[:size])
	o.used = 0
	return err
}

func (o *directOutput) Close() error {
	var err error
	if o.used > 0 {
		size := int(PaddedSize(int64(o.used)))
		clear(o.buf[o.used:size])
		err = o.flush(size)
	}
	if err == nil {
		err = o.f.Sync()
	}
	return errors.Join(err, o.f.Close())
}
