package scorer

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/internal/searcher"
	"github.com/hupe1980/bqhnsw/internal/simd"
)

// Vectors is the storage a scorer reads from.
type Vectors interface {
	Len() int
	Dimension() int
	ReadRaw(ord int, dst []float32) ([]float32, error)
	ReadQuantized(ord int, dst *quantization.Code) error
}

// ErrSimilarityMismatch is returned when a query asks for a similarity other
// than the one the segment was built with.
type ErrSimilarityMismatch struct {
	Segment   distance.Similarity
	Requested distance.Similarity
}

func (e *ErrSimilarityMismatch) Error() string {
	return fmt.Sprintf("scorer: segment uses %s, query requested %s", e.Segment, e.Requested)
}

// QuantizedScorer combines approximate and exact scoring over one segment.
// It is safe for concurrent use.
type QuantizedScorer struct {
	quantizer *quantization.BinaryQuantizer
	vectors   Vectors
	sim       distance.Similarity
	kernel    simd.Kernel
}

// New creates a scorer. A nil kernel selects the process-wide delegate.
func New(q *quantization.BinaryQuantizer, vectors Vectors, kernel simd.Kernel) *QuantizedScorer {
	if kernel == nil {
		kernel = simd.Active()
	}
	return &QuantizedScorer{
		quantizer: q,
		vectors:   vectors,
		sim:       q.Similarity(),
		kernel:    kernel,
	}
}

// Similarity returns the segment similarity.
func (s *QuantizedScorer) Similarity() distance.Similarity { return s.sim }

// Kernel returns the exact-score delegate.
func (s *QuantizedScorer) Kernel() simd.Kernel { return s.kernel }

// ApproximateScore returns the normalized score estimated from codes.
func (s *QuantizedScorer) ApproximateScore(qc *quantization.QueryCode, code quantization.Code) float32 {
	return s.quantizer.EstimateScore(qc, code)
}

// ExactScore returns the normalized score of q and v.
func (s *QuantizedScorer) ExactScore(q, v []float32) float32 {
	return s.sim.Score(s.sim.Raw(s.kernel, q, v))
}

// Query binds q for scoring with similarity sim.
func (s *QuantizedScorer) Query(q []float32, sim distance.Similarity) (*QueryScorer, error) {
	if sim != s.sim {
		return nil, &ErrSimilarityMismatch{Segment: s.sim, Requested: sim}
	}
	qc, err := s.quantizer.QuantizeQuery(q)
	if err != nil {
		return nil, err
	}
	return &QueryScorer{parent: s, query: q, qc: &qc}, nil
}

// QueryScorer scores ordinals against one bound query. It holds scratch
// buffers and must not be shared between goroutines.
type QueryScorer struct {
	parent *QuantizedScorer
	query  []float32
	qc     *quantization.QueryCode
	code   quantization.Code
	raw    []float32
}

// Query returns the bound query vector.
func (qs *QueryScorer) Query() []float32 { return qs.query }

// Score returns the approximate score of ord.
func (qs *QueryScorer) Score(ord uint32) (float32, error) {
	if err := qs.parent.vectors.ReadQuantized(int(ord), &qs.code); err != nil {
		return 0, err
	}
	return qs.parent.quantizer.EstimateScore(qs.qc, qs.code), nil
}

// Exact returns the exact score of ord.
func (qs *QueryScorer) Exact(ord uint32) (float32, error) {
	v, err := qs.parent.vectors.ReadRaw(int(ord), qs.raw)
	if err != nil {
		return 0, err
	}
	qs.raw = v
	return qs.parent.ExactScore(qs.query, v), nil
}

// Rerank replaces each candidate's score with its exact score and sorts the
// list best-first in place. Reranking twice yields the same order.
func (qs *QueryScorer) Rerank(candidates []searcher.Item) ([]searcher.Item, error) {
	for i := range candidates {
		score, err := qs.Exact(candidates[i].Node)
		if err != nil {
			return nil, err
		}
		candidates[i].Score = score
	}
	searcher.SortItems(candidates)
	return candidates, nil
}

// Supplier hands out build-time scorers where every node is scored against
// the quantized form of another node's raw vector. Query codes are computed
// once per node and cached. It is safe for concurrent use.
type Supplier struct {
	scorer *QuantizedScorer
	codes  []atomic.Pointer[quantization.QueryCode]
}

// NewSupplier creates a supplier over the scorer's vectors.
func NewSupplier(s *QuantizedScorer) *Supplier {
	return &Supplier{
		scorer: s,
		codes:  make([]atomic.Pointer[quantization.QueryCode], s.vectors.Len()),
	}
}

// Len returns the number of nodes.
func (sp *Supplier) Len() int { return len(sp.codes) }

// ScorerFor returns a scorer whose query is the raw vector of ord.
func (sp *Supplier) ScorerFor(ord uint32) (*QueryScorer, error) {
	qc := sp.codes[ord].Load()
	v, err := sp.scorer.vectors.ReadRaw(int(ord), nil)
	if err != nil {
		return nil, err
	}
	if qc == nil {
		code, err := sp.scorer.quantizer.QuantizeQuery(v)
		if err != nil {
			return nil, err
		}
		qc = &code
		sp.codes[ord].Store(qc)
	}
	return &QueryScorer{parent: sp.scorer, query: v, qc: qc}, nil
}

type errOutOfRange int

func (e errOutOfRange) Error() string {
	return fmt.Sprintf("scorer: ordinal %d out of range", int(e))
}
