package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/bqhnsw/internal/simd"
)

// Similarity is the similarity function a segment is built with.
type Similarity uint8

const (
	Euclidean Similarity = iota
	DotProduct
	Cosine
	MaximumInnerProduct
)

var similarityNames = [...]string{
	Euclidean:           "euclidean",
	DotProduct:          "dot_product",
	Cosine:              "cosine",
	MaximumInnerProduct: "max_inner_product",
}

// Similarities returns every supported similarity function in ordinal order.
func Similarities() []Similarity {
	return []Similarity{Euclidean, DotProduct, Cosine, MaximumInnerProduct}
}

// Valid reports whether s is a known similarity.
func (s Similarity) Valid() bool {
	return int(s) < len(similarityNames)
}

func (s Similarity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Unknown(%d)", s)
	}
	return similarityNames[s]
}

// ParseSimilarity parses a similarity name. Matching is case-insensitive and
// also accepts the short aliases "l2", "dot", "mip".
func ParseSimilarity(name string) (Similarity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "euclidean", "l2":
		return Euclidean, nil
	case "dot_product", "dot":
		return DotProduct, nil
	case "cosine":
		return Cosine, nil
	case "max_inner_product", "maximum_inner_product", "mip":
		return MaximumInnerProduct, nil
	default:
		return 0, fmt.Errorf("distance: unknown similarity %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Similarity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("distance: unknown similarity %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Similarity) UnmarshalText(text []byte) error {
	v, err := ParseSimilarity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// NeedsNormalization reports whether vectors are L2-normalized before
// quantization.
func (s Similarity) NeedsNormalization() bool {
	return s == Cosine
}

// Score maps a raw value to the normalized score. For Euclidean raw is the
// squared distance; otherwise it is the (cosine) inner product.
func (s Similarity) Score(raw float32) float32 {
	switch s {
	case Euclidean:
		return 1 / (1 + raw)
	case DotProduct, Cosine:
		return max((1+raw)/2, 0)
	case MaximumInnerProduct:
		if raw < 0 {
			return 1 / (1 - raw)
		}
		return raw + 1
	default:
		return 0
	}
}

// Raw computes the raw value of s for a and b with kernel k.
func (s Similarity) Raw(k simd.Kernel, a, b []float32) float32 {
	switch s {
	case Euclidean:
		return k.SquaredL2(a, b)
	case Cosine:
		na, nb := k.Norm(a), k.Norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return k.Dot(a, b) / (na * nb)
	default:
		return k.Dot(a, b)
	}
}

// Compare returns the exact normalized score of a and b using the kernel
// selected at process start. a and b must have equal length.
func (s Similarity) Compare(a, b []float32) float32 {
	return s.Score(s.Raw(simd.Active(), a, b))
}

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	return simd.Active().Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	return simd.Active().SquaredL2(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := simd.Active().Norm(v)
	if norm == 0 || math.IsNaN(float64(norm)) {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
