package bqhnsw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/hnsw"
	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/internal/scorer"
	"github.com/hupe1980/bqhnsw/internal/searcher"
	"github.com/hupe1980/bqhnsw/internal/vectorstore"
	"github.com/hupe1980/bqhnsw/store"
)

// Result is a single search hit.
type Result struct {
	// Ordinal is the segment-local ordinal of the vector.
	Ordinal int `json:"ordinal"`
	// Score is the normalized similarity, higher is better.
	Score float32 `json:"score"`
}

// QuantizedCode is the 1-bit code of a stored vector with its correction
// scalars.
type QuantizedCode struct {
	Bits          []uint64
	Norm          float32
	DotCorrection float32
	CentroidDot   float32
}

// LevelStats describes one level of a segment graph.
type LevelStats struct {
	Level          int `json:"level"`
	Nodes          int `json:"nodes"`
	Connections    int `json:"connections"`
	MaxConnections int `json:"max_connections"`
}

// SegmentInfo summarizes an open segment.
type SegmentInfo struct {
	ID             uuid.UUID           `json:"id"`
	Segment        string              `json:"segment"`
	Similarity     distance.Similarity `json:"similarity"`
	Dimension      int                 `json:"dimension"`
	Count          int                 `json:"count"`
	MaxConnections int                 `json:"max_connections"`
	BeamWidth      int                 `json:"beam_width"`
	RawMode        store.AccessMode    `json:"raw_mode"`
	EntryPoint     int                 `json:"entry_point"`
	Levels         []LevelStats        `json:"levels"`
}

// Reader serves searches over one sealed segment. It is safe for concurrent
// use; Close waits for in-flight searches.
type Reader struct {
	format  *Format
	segment string
	meta    *segmentMeta

	vectors *vectorstore.Reader
	graphIn store.Input
	graph   *hnsw.OffHeapGraph
	scorer  *scorer.QuantizedScorer

	mu     sync.RWMutex
	closed bool
}

// NewReader opens a sealed segment with the format's storage mode. A mode the
// directory cannot serve yields an *UnsupportedStorageModeError.
func (f *Format) NewReader(dir store.Directory, segment string) (*Reader, error) {
	ctx := context.Background()

	rawMode, err := store.Resolve(dir, f.opts.storageMode)
	if err != nil {
		err = translateError(err)
		f.opts.logger.LogOpen(ctx, segment, f.opts.storageMode.String(), err)
		return nil, err
	}

	r, err := f.openReader(dir, segment, rawMode)
	f.opts.logger.LogOpen(ctx, segment, rawMode.String(), err)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (f *Format) openReader(dir store.Directory, segment string, rawMode store.AccessMode) (*Reader, error) {
	meta, err := readMeta(dir, segment)
	if err != nil {
		return nil, err
	}

	blockMode := store.Heap
	if rawMode != store.Heap {
		blockMode = store.ResolveBlock(dir)
	}

	q := quantization.NewBinaryQuantizer(meta.Centroid, meta.Similarity)

	vectors, err := vectorstore.Open(dir, segment, vectorstore.Config{
		Dimension:     meta.Dimension,
		Count:         meta.Count,
		Words:         q.Words(),
		RawMode:       rawMode,
		QuantizedMode: blockMode,
	})
	if err != nil {
		return nil, translateError(err)
	}

	graphIn, data, err := openGraph(dir, segment, blockMode)
	if err != nil {
		return nil, errors.Join(translateError(err), vectors.Close())
	}

	graph, err := hnsw.Decode(meta.Graph, data)
	if err != nil {
		return nil, errors.Join(translateError(err), vectors.Close(), graphIn.Close())
	}

	return &Reader{
		format:  f,
		segment: segment,
		meta:    meta,
		vectors: vectors,
		graphIn: graphIn,
		graph:   graph,
		scorer:  scorer.New(q, vectors, f.opts.kernel),
	}, nil
}

func readMeta(dir store.Directory, segment string) (*segmentMeta, error) {
	in, err := dir.Open(metaName(segment), store.Heap)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", segment, translateError(err))
	}
	defer in.Close()

	data, ok := in.Bytes()
	if !ok {
		if data, err = readAll(in); err != nil {
			return nil, translateError(err)
		}
	}
	return decodeSegmentMeta(data)
}

// openGraph returns the graph block bytes, backed by the input when it is
// memory resident.
func openGraph(dir store.Directory, segment string, mode store.AccessMode) (store.Input, []byte, error) {
	in, err := dir.Open(graphName(segment), mode)
	if err != nil {
		return nil, nil, err
	}
	if data, ok := in.Bytes(); ok {
		return in, data, nil
	}
	data, err := readAll(in)
	if err != nil {
		return nil, nil, errors.Join(err, in.Close())
	}
	return in, data, nil
}

func readAll(in store.Input) ([]byte, error) {
	return io.ReadAll(io.NewSectionReader(in, 0, in.Size()))
}

// Search returns the k best vectors for query, ordered by score descending.
// sim must equal the segment similarity.
func (r *Reader) Search(ctx context.Context, query []float32, k int, sim distance.Similarity, opts ...SearchOption) ([]Result, error) {
	start := time.Now()
	results, visited, err := r.search(ctx, query, k, sim, opts)
	elapsed := time.Since(start)

	r.format.opts.logger.LogSearch(ctx, k, len(results), visited, err)
	r.format.opts.metricsCollector.RecordSearch(k, visited, elapsed, err)

	return results, err
}

func (r *Reader) search(ctx context.Context, query []float32, k int, sim distance.Similarity, optFns []SearchOption) ([]Result, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, 0, ErrReaderClosed
	}
	if k <= 0 {
		return nil, 0, ErrInvalidK
	}
	if len(query) != r.meta.Dimension {
		return nil, 0, &InvalidDimensionError{Expected: r.meta.Dimension, Actual: len(query)}
	}

	qs, err := r.scorer.Query(query, sim)
	if err != nil {
		return nil, 0, translateError(err)
	}

	var so searchOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&so)
		}
	}

	if r.meta.Count == 1 {
		if so.filter != nil && !so.filter.Contains(0) {
			return []Result{}, 0, nil
		}
		score, err := qs.Exact(0)
		if err != nil {
			return nil, 1, translateError(err)
		}
		return []Result{{Ordinal: 0, Score: score}}, 1, nil
	}

	candidates := k
	if so.rerank > 0 {
		candidates = max(k, so.rerank)
	}
	beam := so.beamWidth
	if beam <= 0 {
		beam = r.format.searchBeamWidth()
	}

	items, stats, err := hnsw.Search(ctx, r.graph, qs, hnsw.SearchParams{
		K:           candidates,
		BeamWidth:   max(beam, candidates),
		VisitBudget: so.visitBudget,
		Filter:      so.filter,
	})
	if err != nil {
		return nil, stats.Visited, translateError(err)
	}

	if so.rerank > 0 {
		if items, err = qs.Rerank(items); err != nil {
			return nil, stats.Visited, translateError(err)
		}
	}

	return toResults(items, k), stats.Visited, nil
}

func toResults(items []searcher.Item, k int) []Result {
	n := min(len(items), k)
	results := make([]Result, n)
	for i := range n {
		results[i] = Result{Ordinal: int(items[i].Node), Score: items[i].Score}
	}
	return results
}

// Vector returns a copy of the raw vector of ord.
func (r *Reader) Vector(ord int) ([]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrReaderClosed
	}
	v, err := r.vectors.ReadRaw(ord, nil)
	if err != nil {
		return nil, translateError(err)
	}
	return slices.Clone(v), nil
}

// QuantizedCode returns the stored code of ord.
func (r *Reader) QuantizedCode(ord int) (QuantizedCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return QuantizedCode{}, ErrReaderClosed
	}
	var c quantization.Code
	if err := r.vectors.ReadQuantized(ord, &c); err != nil {
		return QuantizedCode{}, translateError(err)
	}
	return QuantizedCode{
		Bits:          c.Bits,
		Norm:          c.Norm,
		DotCorrection: c.DotCorrection,
		CentroidDot:   c.CentroidDot,
	}, nil
}

// Len returns the number of vectors in the segment.
func (r *Reader) Len() int { return r.meta.Count }

// Dimension returns the vector dimension.
func (r *Reader) Dimension() int { return r.meta.Dimension }

// Similarity returns the similarity the segment was built with.
func (r *Reader) Similarity() distance.Similarity { return r.meta.Similarity }

// SegmentID returns the unique ID assigned at seal time.
func (r *Reader) SegmentID() uuid.UUID { return r.meta.ID }

// Segment returns the segment name.
func (r *Reader) Segment() string { return r.segment }

// RawMode returns the access mode of the raw vectors.
func (r *Reader) RawMode() store.AccessMode { return r.vectors.RawMode() }

// Info summarizes the segment, including per-level graph statistics.
func (r *Reader) Info() (*SegmentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrReaderClosed
	}
	stats, err := r.graph.Stats()
	if err != nil {
		return nil, translateError(err)
	}

	entry, _ := r.graph.EntryPoint()
	info := &SegmentInfo{
		ID:             r.meta.ID,
		Segment:        r.segment,
		Similarity:     r.meta.Similarity,
		Dimension:      r.meta.Dimension,
		Count:          r.meta.Count,
		MaxConnections: r.meta.MaxConnections,
		BeamWidth:      r.meta.BeamWidth,
		RawMode:        r.vectors.RawMode(),
		EntryPoint:     int(entry),
		Levels:         make([]LevelStats, len(stats)),
	}
	for i, st := range stats {
		info.Levels[i] = LevelStats(st)
	}
	return info, nil
}

// Close releases the segment files. It is idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.vectors != nil {
		err = errors.Join(err, r.vectors.Close())
	}
	if r.graphIn != nil {
		err = errors.Join(err, r.graphIn.Close())
	}
	return err
}
