package scorer

import (
	"github.com/hupe1980/bqhnsw/internal/quantization"
)

// MemoryVectors serves vectors and codes held in memory, as during a build.
type MemoryVectors struct {
	Raw   [][]float32
	Codes []quantization.Code
}

// Len implements Vectors.
func (m *MemoryVectors) Len() int { return len(m.Raw) }

// Dimension implements Vectors.
func (m *MemoryVectors) Dimension() int {
	if len(m.Raw) == 0 {
		return 0
	}
	return len(m.Raw[0])
}

// ReadRaw implements Vectors. The result aliases the stored vector.
func (m *MemoryVectors) ReadRaw(ord int, _ []float32) ([]float32, error) {
	if ord < 0 || ord >= len(m.Raw) {
		return nil, errOutOfRange(ord)
	}
	return m.Raw[ord], nil
}

// ReadQuantized implements Vectors.
func (m *MemoryVectors) ReadQuantized(ord int, dst *quantization.Code) error {
	if ord < 0 || ord >= len(m.Codes) {
		return errOutOfRange(ord)
	}
	*dst = m.Codes[ord]
	return nil
}
