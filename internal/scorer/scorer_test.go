package scorer

import (
	"sync"
	"testing"

	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/internal/quantization"
	"github.com/hupe1980/bqhnsw/internal/searcher"
	"github.com/hupe1980/bqhnsw/internal/simd"
	"github.com/hupe1980/bqhnsw/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScorer(t *testing.T, vecs [][]float32, sim distance.Similarity) *QuantizedScorer {
	t.Helper()
	q, err := quantization.Train(vecs, sim)
	require.NoError(t, err)

	codes := make([]quantization.Code, len(vecs))
	for i, v := range vecs {
		codes[i], err = q.Quantize(v)
		require.NoError(t, err)
	}
	return New(q, &MemoryVectors{Raw: vecs, Codes: codes}, nil)
}

func TestQuery_SimilarityMismatch(t *testing.T) {
	vecs := testutil.NewRNG(1).UnitVectors(10, 8)
	s := newScorer(t, vecs, distance.DotProduct)

	_, err := s.Query(vecs[0], distance.Euclidean)
	var mismatch *ErrSimilarityMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, distance.DotProduct, mismatch.Segment)
	assert.Equal(t, distance.Euclidean, mismatch.Requested)

	_, err = s.Query(make([]float32, 7), distance.DotProduct)
	var dimErr *quantization.ErrInvalidDimension
	assert.ErrorAs(t, err, &dimErr)
}

func TestExactMatchesCompare(t *testing.T) {
	vecs := testutil.NewRNG(2).GaussianVectors(20, 16)
	for _, sim := range distance.Similarities() {
		s := newScorer(t, vecs, sim)
		qs, err := s.Query(vecs[3], sim)
		require.NoError(t, err)

		for i, v := range vecs {
			got, err := qs.Exact(uint32(i))
			require.NoError(t, err)
			assert.InDelta(t, sim.Compare(vecs[3], v), got, 1e-5, "similarity %s ord %d", sim, i)
		}
	}
}

func TestExactUsesKernel(t *testing.T) {
	vecs := testutil.NewRNG(3).GaussianVectors(5, 32)
	generic, ok := simd.ByName("generic")
	require.True(t, ok)

	q, err := quantization.Train(vecs, distance.Euclidean)
	require.NoError(t, err)
	s := New(q, &MemoryVectors{Raw: vecs}, generic)
	assert.Equal(t, "generic", s.Kernel().Name())
	assert.InDelta(t, distance.Euclidean.Compare(vecs[0], vecs[1]), s.ExactScore(vecs[0], vecs[1]), 1e-5)
}

func TestRerankIdempotent(t *testing.T) {
	vecs := testutil.NewRNG(4).UnitVectors(50, 24)
	s := newScorer(t, vecs, distance.Cosine)
	qs, err := s.Query(vecs[7], distance.Cosine)
	require.NoError(t, err)

	cands := make([]searcher.Item, 0, len(vecs))
	for i := range vecs {
		score, err := qs.Score(uint32(i))
		require.NoError(t, err)
		cands = append(cands, searcher.Item{Node: uint32(i), Score: score})
	}

	once, err := qs.Rerank(cands)
	require.NoError(t, err)
	first := append([]searcher.Item(nil), once...)

	twice, err := qs.Rerank(once)
	require.NoError(t, err)
	assert.Equal(t, first, twice)
	assert.Equal(t, uint32(7), twice[0].Node)

	for i := 1; i < len(twice); i++ {
		assert.False(t, searcher.Better(twice[i], twice[i-1]))
	}
}

func TestApproximateRanksSelfHigh(t *testing.T) {
	vecs := testutil.NewRNG(5).UnitVectors(100, 128)
	s := newScorer(t, vecs, distance.DotProduct)
	qs, err := s.Query(vecs[0], distance.DotProduct)
	require.NoError(t, err)

	self, err := qs.Score(0)
	require.NoError(t, err)
	better := 0
	for i := 1; i < len(vecs); i++ {
		score, err := qs.Score(uint32(i))
		require.NoError(t, err)
		if score > self {
			better++
		}
	}
	assert.Zero(t, better)
}

func TestSupplierConcurrent(t *testing.T) {
	vecs := testutil.NewRNG(6).GaussianVectors(30, 16)
	s := newScorer(t, vecs, distance.Euclidean)
	sp := NewSupplier(s)
	require.Equal(t, 30, sp.Len())

	var wg sync.WaitGroup
	results := make([]float32, 8)
	for w := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qs, err := sp.ScorerFor(3)
			if err != nil {
				return
			}
			results[w], _ = qs.Score(4)
		}()
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}

	qs, err := sp.ScorerFor(3)
	require.NoError(t, err)
	assert.Equal(t, vecs[3], qs.Query())
}
