package bqhnsw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/conv"
	"github.com/hupe1980/bqhnsw/internal/hnsw"
	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/internal/scorer"
	"github.com/hupe1980/bqhnsw/internal/vectorstore"
	"github.com/hupe1980/bqhnsw/store"
)

type writerState uint8

const (
	writerOpen writerState = iota
	writerSealed
	writerAborted
)

// Writer accumulates the vectors of one segment and writes its files on Seal.
// Vectors must be added densely in ordinal order starting at 0. A Writer is
// not safe for concurrent use.
type Writer struct {
	format  *Format
	dir     store.Directory
	segment string
	dim     int
	sim     distance.Similarity

	vectors *vectorstore.Writer
	raw     [][]float32
	state   writerState

	// Graph construction parallelism; set by Merge.
	workers int
	exec    Executor
}

// NewWriter starts a segment named segment in dir. The raw vectors use the
// direct-I/O layout when the format's storage mode is DirectIO.
func (f *Format) NewWriter(dir store.Directory, segment string, dim int, sim distance.Similarity) (*Writer, error) {
	if dim <= 0 {
		return nil, &InvalidDimensionError{Expected: 1, Actual: dim}
	}
	if !sim.Valid() {
		return nil, fmt.Errorf("unknown similarity %s", sim)
	}
	if segment == "" {
		return nil, errors.New("segment name must not be empty")
	}

	vectors, err := vectorstore.NewWriter(dir, segment, dim, f.opts.storageMode == store.DirectIO)
	if err != nil {
		return nil, translateError(err)
	}

	return &Writer{
		format:  f,
		dir:     dir,
		segment: segment,
		dim:     dim,
		sim:     sim,
		vectors: vectors,
		workers: 1,
	}, nil
}

// Segment returns the segment name.
func (w *Writer) Segment() string { return w.segment }

// Dimension returns the vector dimension.
func (w *Writer) Dimension() int { return w.dim }

// Similarity returns the segment similarity.
func (w *Writer) Similarity() distance.Similarity { return w.sim }

// Len returns the number of vectors added so far.
func (w *Writer) Len() int { return len(w.raw) }

// Add appends v as ordinal ord, which must equal Len(). The vector is copied.
func (w *Writer) Add(ctx context.Context, ord int, v []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.state != writerOpen {
		return ErrWriterSealed
	}
	if len(v) != w.dim {
		return &InvalidDimensionError{Expected: w.dim, Actual: len(v)}
	}
	if ord != len(w.raw) {
		return fmt.Errorf("%w: got %d, want %d", ErrOrdinalOutOfOrder, ord, len(w.raw))
	}
	if _, err := conv.IntToUint32(ord); err != nil {
		return fmt.Errorf("%w: %w", ErrOrdinalOutOfOrder, err)
	}

	if err := w.vectors.Append(ord, v); err != nil {
		return translateError(err)
	}
	w.raw = append(w.raw, slices.Clone(v))
	return nil
}

// Seal trains the quantizer, writes the codes, builds and writes the graph,
// and finally publishes the metadata file. On failure every file of the
// segment is removed and the writer is unusable.
func (w *Writer) Seal(ctx context.Context) error {
	if w.state != writerOpen {
		return ErrWriterSealed
	}

	start := time.Now()
	err := w.seal(ctx)
	elapsed := time.Since(start)

	if err != nil {
		err = translateError(err)
		if aerr := w.abort(); aerr != nil {
			err = errors.Join(err, aerr)
		}
	} else {
		w.state = writerSealed
		w.raw = nil
	}

	w.format.opts.logger.LogSeal(ctx, w.segment, w.vectors.Count(), elapsed, err)
	w.format.opts.metricsCollector.RecordSeal(w.vectors.Count(), elapsed, err)

	return err
}

func (w *Writer) seal(ctx context.Context) error {
	if len(w.raw) == 0 {
		return ErrEmptySegment
	}

	q, err := quantization.Train(w.raw, w.sim)
	if err != nil {
		return err
	}

	codes := make([]quantization.Code, len(w.raw))
	for i, v := range w.raw {
		if codes[i], err = q.Quantize(v); err != nil {
			return err
		}
	}
	if err := w.vectors.WriteQuantized(codes); err != nil {
		return err
	}

	qs := scorer.New(q, &scorer.MemoryVectors{Raw: w.raw, Codes: codes}, w.format.opts.kernel)
	supplier := scorer.NewSupplier(qs)

	builder, err := hnsw.NewBuilder(len(w.raw), hnsw.SupplierFunc(func(ord uint32) (hnsw.Scorer, error) {
		s, err := supplier.ScorerFor(ord)
		if err != nil {
			return nil, err
		}
		return s, nil
	}), w.format.hnswOptions())
	if err != nil {
		return err
	}

	ords := make([]uint32, len(w.raw))
	for i := range ords {
		ords[i] = uint32(i)
	}
	if err := builder.InsertParallel(ctx, ords, w.workers, w.exec); err != nil {
		return err
	}

	graph, err := builder.Seal()
	if err != nil {
		return err
	}

	gm, err := w.writeGraph(graph)
	if err != nil {
		return err
	}

	if err := w.vectors.Finish(); err != nil {
		return err
	}

	meta := &segmentMeta{
		ID:             uuid.New(),
		MaxConnections: w.format.opts.maxConnections,
		BeamWidth:      w.format.opts.beamWidth,
		Similarity:     w.sim,
		Dimension:      w.dim,
		Count:          len(w.raw),
		RawDirect:      w.vectors.Direct(),
		Centroid:       q.Centroid(),
		Graph:          gm,
	}
	return writeMeta(w.dir, w.segment, meta)
}

func (w *Writer) writeGraph(g *hnsw.Graph) (hnsw.GraphMeta, error) {
	out, err := w.dir.Create(graphName(w.segment), store.Heap)
	if err != nil {
		return hnsw.GraphMeta{}, err
	}
	gm, _, err := hnsw.Encode(g, out)
	if err != nil {
		return hnsw.GraphMeta{}, errors.Join(err, out.Close())
	}
	return gm, out.Close()
}

// writeMeta writes the metadata last, so a segment is either fully visible
// or absent.
func writeMeta(dir store.Directory, segment string, meta *segmentMeta) error {
	return commitFile(dir, metaName(segment), func(w io.Writer) error {
		_, err := meta.WriteTo(w)
		return err
	})
}

// commitFile writes name under a temporary name and renames it into place.
func commitFile(dir store.Directory, name string, write func(io.Writer) error) error {
	tmp := name + ".tmp"
	out, err := dir.Create(tmp, store.Heap)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		return errors.Join(err, out.Close(), dir.Delete(tmp))
	}
	if err := out.Close(); err != nil {
		return errors.Join(err, dir.Delete(tmp))
	}
	if err := dir.Rename(tmp, name); err != nil {
		return errors.Join(err, dir.Delete(tmp))
	}
	return nil
}

// Abort discards the writer and removes every file it created.
func (w *Writer) Abort() error {
	if w.state == writerSealed {
		return ErrWriterSealed
	}
	if w.state == writerAborted {
		return nil
	}
	return w.abort()
}

func (w *Writer) abort() error {
	w.state = writerAborted
	w.raw = nil
	err := w.vectors.Abort()
	for _, name := range []string{graphName(w.segment), metaName(w.segment) + ".tmp", metaName(w.segment)} {
		if derr := w.dir.Delete(name); derr != nil && !isNotExist(derr) {
			err = errors.Join(err, derr)
		}
	}
	return err
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
