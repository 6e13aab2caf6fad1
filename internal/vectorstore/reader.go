package vectorstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/store"
)

// Config describes the blocks a Reader opens.
type Config struct {
	Dimension int
	Count     int
	// Words is the number of uint64 words per code.
	Words int
	// RawMode is the concrete access mode for raw vectors.
	RawMode store.AccessMode
	// QuantizedMode is the concrete access mode for codes. DirectIO is not
	// allowed here.
	QuantizedMode store.AccessMode
}

// Reader serves raw vectors and codes of one sealed segment. It is safe for
// concurrent use.
type Reader struct {
	cfg        Config
	recordSize int

	raw      store.Input
	rawMode  store.AccessMode
	rawView  []float32 // zero-copy view, nil when not resident
	rawBytes []byte

	quant      store.Input
	quantBytes []byte
}

// Open opens the raw and quantized blocks of segment.
func Open(dir store.Directory, segment string, cfg Config) (*Reader, error) {
	if cfg.QuantizedMode == store.DirectIO || cfg.QuantizedMode == store.Auto {
		return nil, fmt.Errorf("vectorstore: invalid quantized mode %s", cfg.QuantizedMode)
	}

	r := &Reader{cfg: cfg, recordSize: cfg.Words*8 + 12}

	raw, err := dir.Open(RawName(segment), cfg.RawMode)
	if err != nil {
		return nil, err
	}
	r.raw = raw
	r.rawMode = raw.Mode()

	rawSize := int64(cfg.Count) * int64(cfg.Dimension) * 4
	if raw.Size() < rawSize {
		_ = r.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrCorrupt, raw.Name(), raw.Size(), rawSize)
	}
	if b, ok := raw.Bytes(); ok {
		r.rawBytes = b[:rawSize]
		if v, ok := floatView(r.rawBytes, cfg.Count*cfg.Dimension); ok {
			r.rawView = v
		}
	}

	quant, err := dir.Open(QuantizedName(segment), cfg.QuantizedMode)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.quant = quant

	quantSize := int64(cfg.Count) * int64(r.recordSize)
	if quant.Size() != quantSize {
		_ = r.Close()
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrCorrupt, quant.Name(), quant.Size(), quantSize)
	}
	if b, ok := quant.Bytes(); ok {
		r.quantBytes = b
	}

	return r, nil
}

// Len returns the number of vectors.
func (r *Reader) Len() int { return r.cfg.Count }

// Dimension returns the vector dimension.
func (r *Reader) Dimension() int { return r.cfg.Dimension }

// RawMode returns the access mode of the raw vectors.
func (r *Reader) RawMode() store.AccessMode { return r.rawMode }

// RawResident reports whether raw vectors are held in memory or mapped.
func (r *Reader) RawResident() bool { return r.rawMode != store.DirectIO }

// RawBytes returns the logical size of the raw-vector block.
func (r *Reader) RawBytes() int64 {
	return int64(r.cfg.Count) * int64(r.cfg.Dimension) * 4
}

// QuantizedBytes returns the size of the codes block.
func (r *Reader) QuantizedBytes() int64 {
	return int64(r.cfg.Count) * int64(r.recordSize)
}

// ReadRaw returns the raw vector of ord. When the block is resident the result
// aliases it and must not be modified; otherwise it is decoded into dst,
// which is grown as needed.
func (r *Reader) ReadRaw(ord int, dst []float32) ([]float32, error) {
	if ord < 0 || ord >= r.cfg.Count {
		return nil, ErrOutOfRange
	}
	dim := r.cfg.Dimension
	if r.rawView != nil {
		return r.rawView[ord*dim : (ord+1)*dim : (ord+1)*dim], nil
	}

	var src []byte
	if r.rawBytes != nil {
		src = r.rawBytes[ord*dim*4 : (ord+1)*dim*4]
	} else {
		src = make([]byte, dim*4)
		if err := readFull(r.raw, src, int64(ord)*int64(dim)*4); err != nil {
			return nil, err
		}
	}

	if cap(dst) < dim {
		dst = make([]float32, dim)
	}
	dst = dst[:dim]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return dst, nil
}

// ReadQuantized decodes the code of ord into dst, reusing dst.Bits.
func (r *Reader) ReadQuantized(ord int, dst *quantization.Code) error {
	if ord < 0 || ord >= r.cfg.Count {
		return ErrOutOfRange
	}
	off := ord * r.recordSize
	if r.quantBytes != nil {
		return quantization.UnmarshalCode(dst, r.quantBytes[off:off+r.recordSize], r.cfg.Words)
	}
	rec := make([]byte, r.recordSize)
	if err := readFull(r.quant, rec, int64(off)); err != nil {
		return err
	}
	return quantization.UnmarshalCode(dst, rec, r.cfg.Words)
}

// readFull fills p from in at off. A short read is reported as a
// *store.ReadError wrapping io.ErrUnexpectedEOF.
func readFull(in store.Input, p []byte, off int64) error {
	n, err := in.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	var readErr *store.ReadError
	if errors.As(err, &readErr) {
		return err
	}
	return &store.ReadError{Name: in.Name(), Offset: off + int64(n), Err: err}
}

// Close releases both blocks.
func (r *Reader) Close() error {
	var err error
	if r.raw != nil {
		err = errors.Join(err, r.raw.Close())
		r.raw = nil
	}
	if r.quant != nil {
		err = errors.Join(err, r.quant.Close())
		r.quant = nil
	}
	r.rawView, r.rawBytes, r.quantBytes = nil, nil, nil
	return err
}
