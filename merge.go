package bqhnsw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/conv"
	"github.com/hupe1980/bqhnsw/store"
)

// MergeSource is a segment whose live vectors can be copied into a new one.
// *Reader implements it.
type MergeSource interface {
	Len() int
	Dimension() int
	Similarity() distance.Similarity
	Vector(ord int) ([]float32, error)
}

// MergeInput pairs a source with its deleted ordinals. A nil Deleted keeps
// every vector.
type MergeInput struct {
	Source  MergeSource
	Deleted *roaring.Bitmap
}

// MergeStats describes a completed merge.
type MergeStats struct {
	Sources  int
	Vectors  int
	Skipped  int
	Duration time.Duration
	// DocMaps[i][ord] is the new ordinal of ord from input i, or -1 when it
	// was deleted.
	DocMaps [][]int
}

// Merge writes the live vectors of inputs, in input order, into a new
// segment and builds a fresh graph over them. With more than one merge
// worker the graph is built concurrently on the format's executor. The
// merge holds a background slot of the resource controller. On failure no
// file of the new segment remains.
func (f *Format) Merge(ctx context.Context, dir store.Directory, segment string, inputs []MergeInput) (*MergeStats, error) {
	start := time.Now()
	stats, err := f.merge(ctx, dir, segment, inputs)
	elapsed := time.Since(start)

	vectors := 0
	if stats != nil {
		stats.Duration = elapsed
		vectors = stats.Vectors
	}
	f.opts.logger.LogMerge(ctx, segment, len(inputs), vectors, err)
	f.opts.metricsCollector.RecordMerge(len(inputs), vectors, elapsed, err)

	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (f *Format) merge(ctx context.Context, dir store.Directory, segment string, inputs []MergeInput) (*MergeStats, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptySegment
	}

	dim := inputs[0].Source.Dimension()
	sim := inputs[0].Source.Similarity()
	for _, in := range inputs[1:] {
		if in.Source.Dimension() != dim {
			return nil, &InvalidDimensionError{Expected: dim, Actual: in.Source.Dimension()}
		}
		if in.Source.Similarity() != sim {
			return nil, &SimilarityMismatchError{Segment: sim, Requested: in.Source.Similarity()}
		}
	}

	if err := f.opts.resources.AcquireBackground(ctx); err != nil {
		return nil, fmt.Errorf("acquire merge slot: %w", err)
	}
	defer f.opts.resources.ReleaseBackground()

	w, err := f.NewWriter(dir, segment, dim, sim)
	if err != nil {
		return nil, err
	}
	w.workers = f.opts.numMergeWorkers
	w.exec = f.opts.mergeExecutor

	stats := &MergeStats{
		Sources: len(inputs),
		DocMaps: make([][]int, len(inputs)),
	}

	next := 0
	for i, in := range inputs {
		docMap := make([]int, in.Source.Len())
		for ord := range docMap {
			ord32, err := conv.IntToUint32(ord)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("merge source %d: %w", i, err), w.Abort())
			}
			if in.Deleted != nil && in.Deleted.Contains(ord32) {
				docMap[ord] = -1
				stats.Skipped++
				continue
			}
			v, err := in.Source.Vector(ord)
			if err == nil {
				err = w.Add(ctx, next, v)
			}
			if err != nil {
				return nil, errors.Join(fmt.Errorf("merge source %d ordinal %d: %w", i, ord, err), w.Abort())
			}
			docMap[ord] = next
			next++
		}
		stats.DocMaps[i] = docMap
	}

	if err := w.Seal(ctx); err != nil {
		return nil, err
	}

	stats.Vectors = next
	return stats, nil
}
