package vectorstore

import (
	"encoding/binary"
	"errors"
	"math"
	"os"

	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/store"
)

// Writer appends raw vectors to <segment>.vec and writes the codes block.
// It is not safe for concurrent use.
type Writer struct {
	dir     store.Directory
	segment string
	dim     int
	direct  bool

	raw     store.Output
	created []string
	count   int
	buf     []byte
	done    bool
}

// NewWriter creates the raw-vector file. With direct set the file is padded
// for direct-I/O reads.
func NewWriter(dir store.Directory, segment string, dim int, direct bool) (*Writer, error) {
	mode := store.Heap
	if direct {
		mode = store.DirectIO
	}
	raw, err := dir.Create(RawName(segment), mode)
	if err != nil {
		return nil, err
	}
	return &Writer{
		dir:     dir,
		segment: segment,
		dim:     dim,
		direct:  direct,
		raw:     raw,
		created: []string{RawName(segment)},
		buf:     make([]byte, dim*4),
	}, nil
}

// Append writes v as ordinal ord, which must equal Count().
func (w *Writer) Append(ord int, v []float32) error {
	if w.done {
		return ErrFinished
	}
	if ord != w.count {
		return ErrOrdinalOutOfOrder
	}
	if len(v) != w.dim {
		return &ErrWrongDimension{Expected: w.dim, Actual: len(v)}
	}
	for i, x := range v {
		binary.LittleEndian.PutUint32(w.buf[i*4:], math.Float32bits(x))
	}
	if _, err := w.raw.Write(w.buf); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of appended vectors.
func (w *Writer) Count() int { return w.count }

// Direct reports whether the raw file uses the direct-I/O layout.
func (w *Writer) Direct() bool { return w.direct }

// WriteQuantized closes the raw file and writes one record per code.
func (w *Writer) WriteQuantized(codes []quantization.Code) error {
	if w.done {
		return ErrFinished
	}
	if len(codes) != w.count {
		return ErrOrdinalOutOfOrder
	}
	if err := w.closeRaw(); err != nil {
		return err
	}

	out, err := w.dir.Create(QuantizedName(w.segment), store.Heap)
	if err != nil {
		return err
	}
	w.created = append(w.created, QuantizedName(w.segment))

	var rec []byte
	for _, c := range codes {
		rec = quantization.MarshalCode(rec[:0], c)
		if _, err := out.Write(rec); err != nil {
			return errors.Join(err, out.Close())
		}
	}
	return out.Close()
}

func (w *Writer) closeRaw() error {
	if w.raw == nil {
		return nil
	}
	err := w.raw.Close()
	w.raw = nil
	return err
}

// Finish closes all files.
func (w *Writer) Finish() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.closeRaw()
}

// Abort closes and deletes every file the writer created.
func (w *Writer) Abort() error {
	w.done = true
	err := w.closeRaw()
	for _, name := range w.created {
		if derr := w.dir.Delete(name); derr != nil && !errors.Is(derr, os.ErrNotExist) {
			err = errors.Join(err, derr)
		}
	}
	w.created = nil
	return err
}
