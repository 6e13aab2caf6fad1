package quantization

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTrainingSet is returned when Train is called without vectors.
	ErrEmptyTrainingSet = errors.New("quantization: empty training set")
	// ErrInvalidRecord is returned when an encoded record has the wrong size.
	ErrInvalidRecord = errors.New("quantization: invalid record length")
)

// ErrInvalidDimension indicates a vector whose length does not match the
// quantizer dimension.
type ErrInvalidDimension struct {
	Expected int
	Actual   int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("quantization: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Corrections are the per-vector scalars that turn a bit-level comparison
// into a similarity estimate.
type Corrections struct {
	Norm          float32
	DotCorrection float32
	CentroidDot   float32
}

// Code is the quantized form of a stored vector.
type Code struct {
	Bits []uint64
	Corrections
}

// Equal reports whether two codes are bit-for-bit identical.
func (c Code) Equal(o Code) bool {
	if len(c.Bits) != len(o.Bits) || c.Corrections != o.Corrections {
		return false
	}
	for i := range c.Bits {
		if c.Bits[i] != o.Bits[i] {
			return false
		}
	}
	return true
}

// QueryPlanes is the number of bits per query dimension.
const QueryPlanes = 4

// QueryCode is the asymmetric quantized form of a query.
type QueryCode struct {
	// Planes[j] holds bit j of every 4-bit query component.
	Planes [QueryPlanes][]uint64
	// Lower and Step reconstruct a component as Lower + Step*q.
	Lower float32
	Step  float32
	// Sum is the sum of all 4-bit components.
	Sum uint32
	// Norm is ‖q − c‖.
	Norm float32
	// CentroidDot is ⟨q, c⟩.
	CentroidDot float32
}
