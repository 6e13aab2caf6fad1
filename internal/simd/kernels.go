package simd

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Kernel computes full-precision comparisons between two float32 vectors of
// equal length. Implementations must be safe for concurrent use.
type Kernel interface {
	// Name is the short kernel name ("generic", "vek").
	Name() string
	// ScorerName is the descriptor name reported in diagnostics.
	ScorerName() string
	Dot(a, b []float32) float32
	SquaredL2(a, b []float32) float32
	Norm(a []float32) float32
}

type genericKernel struct{}

func (genericKernel) Name() string       { return "generic" }
func (genericKernel) ScorerName() string { return "DefaultFlatVectorScorer" }

func (genericKernel) Dot(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	b = b[:n]
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return s0 + s1 + s2 + s3
}

func (genericKernel) SquaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32
	n := len(a)
	b = b[:n]
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

func (k genericKernel) Norm(a []float32) float32 {
	return float32(math.Sqrt(float64(k.Dot(a, a))))
}

type vekKernel struct{}

func (vekKernel) Name() string       { return "vek" }
func (vekKernel) ScorerName() string { return "AcceleratedFlatVectorScorer" }

func (vekKernel) Dot(a, b []float32) float32 {
	return vek32.Dot(a, b[:len(a)])
}

// SquaredL2 squares vek's Euclidean distance; vek has no squared variant.
func (vekKernel) SquaredL2(a, b []float32) float32 {
	d := vek32.Distance(a, b[:len(a)])
	return d * d
}

func (vekKernel) Norm(a []float32) float32 {
	return vek32.Norm(a)
}
