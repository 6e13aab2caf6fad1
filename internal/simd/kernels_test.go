package simd

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randVec(r *rand.Rand, n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestKernelsAgree(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, dim := range []int{1, 3, 4, 17, 64, 129, 768} {
		a, b := randVec(r, dim), randVec(r, dim)

		var wantDot, wantL2 float64
		for i := range a {
			wantDot += float64(a[i]) * float64(b[i])
			d := float64(a[i]) - float64(b[i])
			wantL2 += d * d
		}

		for _, k := range append(Available(), vekKernel{}) {
			tol := 1e-3 * math.Max(1, math.Abs(wantL2))
			assert.InDelta(t, wantDot, float64(k.Dot(a, b)), 1e-3*math.Max(1, math.Abs(wantDot)), "%s dot dim=%d", k.Name(), dim)
			assert.InDelta(t, wantL2, float64(k.SquaredL2(a, b)), tol, "%s l2 dim=%d", k.Name(), dim)
			assert.InDelta(t, math.Sqrt(float64(k.Dot(a, a))), float64(k.Norm(a)), 1e-3, "%s norm dim=%d", k.Name(), dim)
		}
	}
}

func TestByName(t *testing.T) {
	k, ok := ByName(" Generic ")
	require.True(t, ok)
	assert.Equal(t, "generic", k.Name())
	assert.Equal(t, "DefaultFlatVectorScorer", k.ScorerName())

	k, ok = ByName("vek")
	require.True(t, ok)
	assert.Equal(t, "AcceleratedFlatVectorScorer", k.ScorerName())

	_, ok = ByName("avx9000")
	assert.False(t, ok)
}

func TestOverride(t *testing.T) {
	prev := active
	prevOverride := hasOverride
	defer func() {
		active = prev
		hasOverride = prevOverride
	}()

	initKernel("generic")
	assert.True(t, IsOverridden())
	assert.Equal(t, "generic", Active().Name())

	initKernel("nonsense")
	assert.False(t, IsOverridden())
	assert.Equal(t, selectBest().Name(), Active().Name())

	initKernel("vek")
	if Accelerated() {
		assert.Equal(t, "vek", Active().Name())
	} else {
		assert.Equal(t, "generic", Active().Name())
	}
}
