package bqhnsw

import (
	"fmt"

	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/hnsw"
	"github.com/hupe1980/bqhnsw/internal/simd"
)

const (
	formatName     = "HnswBinaryQuantizedVectorsFormat"
	flatFormatName = "BinaryQuantizedVectorsFormat"
	flatScorerName = "BinaryFlatVectorsScorer"
)

// Format is a configured HNSW + binary quantization vector index format. It
// creates writers, opens readers, merges segments and reports off-heap usage.
// A Format is immutable and safe for concurrent use.
type Format struct {
	opts options
}

// New creates a Format. Every invalid parameter is reported as an
// *InvalidConfigurationError.
func New(optFns ...Option) (*Format, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}

	o.kernel = simd.Active()
	if o.kernelName != "" {
		k, ok := simd.ByName(o.kernelName)
		if !ok {
			return nil, &InvalidConfigurationError{Parameter: "scoreDelegate", Value: o.kernelName, Reason: "unknown delegate"}
		}
		o.kernel = k
	}

	return &Format{opts: o}, nil
}

func (o *options) validate() error {
	if o.maxConnections <= 0 || o.maxConnections > MaxMaxConnections {
		return &InvalidConfigurationError{
			Parameter: "maxConnections",
			Value:     o.maxConnections,
			Reason:    fmt.Sprintf("must be in (0, %d]", MaxMaxConnections),
		}
	}
	if o.beamWidth <= 0 || o.beamWidth > MaxBeamWidth {
		return &InvalidConfigurationError{
			Parameter: "beamWidth",
			Value:     o.beamWidth,
			Reason:    fmt.Sprintf("must be in (0, %d]", MaxBeamWidth),
		}
	}
	if o.numMergeWorkers < 1 {
		return &InvalidConfigurationError{Parameter: "numMergeWorkers", Value: o.numMergeWorkers, Reason: "must be at least 1"}
	}
	if o.numMergeWorkers == 1 && o.mergeExecutor != nil {
		return &InvalidConfigurationError{
			Parameter: "mergeExecutor",
			Value:     o.mergeExecutor,
			Reason:    "no executor allowed with a single merge worker",
		}
	}
	if o.numMergeWorkers > 1 && o.mergeExecutor == nil {
		return &InvalidConfigurationError{
			Parameter: "mergeExecutor",
			Value:     nil,
			Reason:    fmt.Sprintf("required with %d merge workers", o.numMergeWorkers),
		}
	}
	if o.searchBeamWidth < 0 || o.searchBeamWidth > MaxBeamWidth {
		return &InvalidConfigurationError{
			Parameter: "searchBeamWidth",
			Value:     o.searchBeamWidth,
			Reason:    fmt.Sprintf("must be in [0, %d]", MaxBeamWidth),
		}
	}
	if o.levelProbability <= 0 || o.levelProbability >= 1 {
		return &InvalidConfigurationError{Parameter: "levelProbability", Value: o.levelProbability, Reason: "must be in (0, 1)"}
	}
	return nil
}

// MaxConnections returns the configured per-node connection cap.
func (f *Format) MaxConnections() int { return f.opts.maxConnections }

// BeamWidth returns the configured construction beam width.
func (f *Format) BeamWidth() int { return f.opts.beamWidth }

// NumMergeWorkers returns the configured merge parallelism.
func (f *Format) NumMergeWorkers() int { return f.opts.numMergeWorkers }

// ScoreDelegate returns the name of the exact-score delegate.
func (f *Format) ScoreDelegate() string { return f.opts.kernel.Name() }

// String renders the diagnostic descriptor of the format.
func (f *Format) String() string {
	return fmt.Sprintf(
		"%s(name=%s, maxConn=%d, beamWidth=%d, flatVectorFormat=%s(name=%s, flatVectorScorer=%s(nonQuantizedDelegate=%s())))",
		formatName, formatName, f.opts.maxConnections, f.opts.beamWidth,
		flatFormatName, flatFormatName, flatScorerName, f.opts.kernel.ScorerName(),
	)
}

// Similarities returns every similarity function segments can be built with.
func (f *Format) Similarities() []distance.Similarity {
	return distance.Similarities()
}

func (f *Format) hnswOptions() hnsw.Options {
	return hnsw.Options{
		M:                f.opts.maxConnections,
		BeamWidth:        f.opts.beamWidth,
		LevelProbability: f.opts.levelProbability,
		Seed:             f.opts.seed,
		Logger:           f.opts.logger.Logger,
	}
}

func (f *Format) searchBeamWidth() int {
	if f.opts.searchBeamWidth > 0 {
		return f.opts.searchBeamWidth
	}
	return f.opts.beamWidth
}

// Off-heap accounting keys.
const (
	OffHeapGraphKey     = "vex"
	OffHeapQuantizedKey = "veb"
	OffHeapRawKey       = "vec"
)

// OffHeapSize reports the bytes a reader keeps outside the Go heap or in
// long-lived buffers, per storage component.
type OffHeapSize struct {
	Graph     int64
	Quantized int64
	// Raw is only meaningful when RawResident is true.
	Raw         int64
	RawResident bool
}

// Map renders the sizes keyed by file extension. The raw key is present only
// when the raw vectors are resident.
func (s OffHeapSize) Map() map[string]int64 {
	m := map[string]int64{
		OffHeapGraphKey:     s.Graph,
		OffHeapQuantizedKey: s.Quantized,
	}
	if s.RawResident {
		m[OffHeapRawKey] = s.Raw
	}
	return m
}

// Total returns the sum of all reported components.
func (s OffHeapSize) Total() int64 {
	total := s.Graph + s.Quantized
	if s.RawResident {
		total += s.Raw
	}
	return total
}

// OffHeapByteSize reports the storage components held by r. Raw vectors read
// with direct I/O are not resident and are omitted.
func (f *Format) OffHeapByteSize(r *Reader) OffHeapSize {
	size := OffHeapSize{
		Graph:       r.meta.Graph.Length,
		Quantized:   r.vectors.QuantizedBytes(),
		RawResident: r.vectors.RawResident(),
	}
	if size.RawResident {
		size.Raw = r.vectors.RawBytes()
	}
	return size
}
