package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityNamesRoundTrip(t *testing.T) {
	all := Similarities()
	require.Len(t, all, 4)
	for _, s := range all {
		parsed, err := ParseSimilarity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)

		text, err := s.MarshalText()
		require.NoError(t, err)
		var back Similarity
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}

	_, err := ParseSimilarity("manhattan")
	assert.Error(t, err)
	assert.False(t, Similarity(9).Valid())
	assert.Equal(t, "Unknown(9)", Similarity(9).String())
}

func TestScoreTransforms(t *testing.T) {
	assert.InDelta(t, 1.0, Euclidean.Score(0), 1e-7)
	assert.InDelta(t, 0.2, Euclidean.Score(4), 1e-7)

	assert.InDelta(t, 1.0, DotProduct.Score(1), 1e-7)
	assert.InDelta(t, 0.5, DotProduct.Score(0), 1e-7)
	assert.InDelta(t, 0.0, DotProduct.Score(-3), 1e-7)

	assert.InDelta(t, 0.25, Cosine.Score(-0.5), 1e-7)

	assert.InDelta(t, 0.5, MaximumInnerProduct.Score(-1), 1e-7)
	assert.InDelta(t, 4.0, MaximumInnerProduct.Score(3), 1e-7)
}

func TestCompare(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 2, 0}

	assert.InDelta(t, 1.0/6.0, Euclidean.Compare(a, b), 1e-6)
	assert.InDelta(t, 0.5, DotProduct.Compare(a, b), 1e-6)
	assert.InDelta(t, 0.5, Cosine.Compare(a, b), 1e-6)
	assert.InDelta(t, 1.0, Cosine.Compare(b, []float32{0, 5, 0}), 1e-6)
	assert.InDelta(t, 1.0, MaximumInnerProduct.Compare(a, b), 1e-6)

	// zero vectors have no direction
	assert.InDelta(t, 0.5, Cosine.Compare(a, []float32{0, 0, 0}), 1e-6)
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, ok := NormalizeL2Copy([]float32{0, 0})
	assert.False(t, ok)
	assert.False(t, NormalizeL2InPlace(nil))
}
