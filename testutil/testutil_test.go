package testutil

import (
	"math"
	"testing"

	"github.com/hupe1980/bqhnsw/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformRangeVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformRangeVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(-1.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	require.Len(t, v, 8)
	for _, vec := range v {
		var sum float64
		for _, x := range vec {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	}
}

func TestDeterministicSeed(t *testing.T) {
	a := NewRNG(7).GaussianVectors(4, 16)
	b := NewRNG(7).GaussianVectors(4, 16)
	assert.Equal(t, a, b)
}

func TestBruteForceAndRecall(t *testing.T) {
	vecs := [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}, {-1, 0}}
	truth := BruteForce(vecs, []float32{1, 0}, 2, distance.DotProduct)
	require.Len(t, truth, 2)
	assert.Equal(t, 0, truth[0].Ordinal)
	assert.Equal(t, 2, truth[1].Ordinal)

	assert.Equal(t, 1.0, ComputeRecall(truth, []int{2, 0}))
	assert.Equal(t, 0.5, ComputeRecall(truth, []int{0, 3}))
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
}
