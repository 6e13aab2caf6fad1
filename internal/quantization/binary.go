package quantization

import (
	"encoding/binary"
	"math"
	"math/bits"
	"slices"

	"github.com/hupe1980/bqhnsw/distance"
	"gonum.org/v1/gonum/stat"
)

// MaxSampleSize caps the number of vectors used to compute the centroid.
const MaxSampleSize = 25_000

// correctionBytes is the encoded size of Corrections.
const correctionBytes = 12

// BinaryQuantizer converts float vectors into 1-bit codes relative to a fixed
// centroid. It is immutable after construction and safe for concurrent use.
type BinaryQuantizer struct {
	dimension  int
	words      int
	similarity distance.Similarity
	centroid   []float32
	invSqrtDim float32
}

// NewBinaryQuantizer creates a quantizer from persisted parameters.
func NewBinaryQuantizer(centroid []float32, sim distance.Similarity) *BinaryQuantizer {
	dim := len(centroid)
	return &BinaryQuantizer{
		dimension:  dim,
		words:      (dim + 63) / 64,
		similarity: sim,
		centroid:   slices.Clone(centroid),
		invSqrtDim: float32(1 / math.Sqrt(float64(max(dim, 1)))),
	}
}

// Train computes the centroid from vectors and returns a quantizer for them.
// At most MaxSampleSize vectors are sampled, evenly strided.
func Train(vectors [][]float32, sim distance.Similarity) (*BinaryQuantizer, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, &ErrInvalidDimension{Expected: 1, Actual: 0}
	}

	sample := vectors
	if len(vectors) > MaxSampleSize {
		stride := len(vectors) / MaxSampleSize
		sample = make([][]float32, 0, MaxSampleSize)
		for i := 0; i < len(vectors) && len(sample) < MaxSampleSize; i += stride {
			sample = append(sample, vectors[i])
		}
	}

	rows := make([][]float32, len(sample))
	for i, v := range sample {
		if len(v) != dim {
			return nil, &ErrInvalidDimension{Expected: dim, Actual: len(v)}
		}
		rows[i] = v
		if sim.NeedsNormalization() {
			if n, ok := distance.NormalizeL2Copy(v); ok {
				rows[i] = n
			}
		}
	}

	centroid := make([]float32, dim)
	col := make([]float64, len(rows))
	for j := range dim {
		for i, v := range rows {
			col[i] = float64(v[j])
		}
		centroid[j] = float32(stat.Mean(col, nil))
	}
	return NewBinaryQuantizer(centroid, sim), nil
}

// Dimension returns the vector dimension.
func (q *BinaryQuantizer) Dimension() int { return q.dimension }

// Similarity returns the similarity the quantizer estimates.
func (q *BinaryQuantizer) Similarity() distance.Similarity { return q.similarity }

// Centroid returns a copy of the centroid.
func (q *BinaryQuantizer) Centroid() []float32 { return slices.Clone(q.centroid) }

// Words returns the number of uint64 words per code.
func (q *BinaryQuantizer) Words() int { return q.words }

// CodeBytes returns the size of the packed bits.
func (q *BinaryQuantizer) CodeBytes() int { return q.words * 8 }

// RecordSize returns the encoded size of one code including corrections.
func (q *BinaryQuantizer) RecordSize() int { return q.words*8 + correctionBytes }

func (q *BinaryQuantizer) prepare(v []float32) ([]float32, error) {
	if len(v) != q.dimension {
		return nil, &ErrInvalidDimension{Expected: q.dimension, Actual: len(v)}
	}
	if q.similarity.NeedsNormalization() {
		if n, ok := distance.NormalizeL2Copy(v); ok {
			return n, nil
		}
	}
	return v, nil
}

// Quantize returns the code of v. It is a pure function of v and the centroid.
func (q *BinaryQuantizer) Quantize(v []float32) (Code, error) {
	v, err := q.prepare(v)
	if err != nil {
		return Code{}, err
	}

	code := Code{Bits: make([]uint64, q.words)}
	var normSq, absSum, centroidDot float64
	for i, x := range v {
		r := float64(x) - float64(q.centroid[i])
		if r > 0 {
			code.Bits[i>>6] |= 1 << (uint(i) & 63)
		}
		normSq += r * r
		absSum += math.Abs(r)
		centroidDot += float64(q.centroid[i]) * r
	}

	norm := math.Sqrt(normSq)
	code.Norm = float32(norm)
	code.CentroidDot = float32(centroidDot)
	code.DotCorrection = 1
	if norm > 0 {
		code.DotCorrection = float32(absSum / (math.Sqrt(float64(q.dimension)) * norm))
	}
	return code, nil
}

// QuantizeQuery returns the asymmetric 4-bit form of query.
func (q *BinaryQuantizer) QuantizeQuery(query []float32) (QueryCode, error) {
	query, err := q.prepare(query)
	if err != nil {
		return QueryCode{}, err
	}

	var qc QueryCode
	for j := range qc.Planes {
		qc.Planes[j] = make([]uint64, q.words)
	}

	lower, upper := float32(math.Inf(1)), float32(math.Inf(-1))
	var normSq, centroidDot float64
	for i, x := range query {
		r := x - q.centroid[i]
		lower = min(lower, r)
		upper = max(upper, r)
		normSq += float64(r) * float64(r)
		centroidDot += float64(x) * float64(q.centroid[i])
	}
	qc.Lower = lower
	qc.Norm = float32(math.Sqrt(normSq))
	qc.CentroidDot = float32(centroidDot)

	const levels = 1<<QueryPlanes - 1
	if upper > lower {
		qc.Step = (upper - lower) / levels
	}

	for i, x := range query {
		var v uint32
		if qc.Step > 0 {
			f := math.Round(float64((x - q.centroid[i] - lower) / qc.Step))
			v = uint32(min(max(f, 0), levels))
		}
		qc.Sum += v
		word, bit := i>>6, uint(i)&63
		for j := range QueryPlanes {
			qc.Planes[j][word] |= uint64((v>>j)&1) << bit
		}
	}
	return qc, nil
}

// EstimateInnerProduct estimates ⟨q − c, v − c⟩.
func (q *BinaryQuantizer) EstimateInnerProduct(qc *QueryCode, code Code) float32 {
	if code.Norm == 0 || code.DotCorrection == 0 {
		return 0
	}
	var ones, weighted uint64
	for w, b := range code.Bits {
		ones += uint64(bits.OnesCount64(b))
		for j := range QueryPlanes {
			weighted += uint64(bits.OnesCount64(qc.Planes[j][w]&b)) << j
		}
	}
	setSum := qc.Lower*float32(ones) + qc.Step*float32(weighted)
	allSum := qc.Lower*float32(q.dimension) + qc.Step*float32(qc.Sum)
	projected := (2*setSum - allSum) * q.invSqrtDim
	return projected * code.Norm / code.DotCorrection
}

// EstimateRaw estimates the raw similarity value between the query and a
// stored code: squared distance for Euclidean, inner product otherwise.
func (q *BinaryQuantizer) EstimateRaw(qc *QueryCode, code Code) float32 {
	ip := q.EstimateInnerProduct(qc, code)
	if q.similarity == distance.Euclidean {
		return max(qc.Norm*qc.Norm+code.Norm*code.Norm-2*ip, 0)
	}
	return ip + code.CentroidDot + qc.CentroidDot
}

// EstimateScore estimates the normalized similarity score.
func (q *BinaryQuantizer) EstimateScore(qc *QueryCode, code Code) float32 {
	return q.similarity.Score(q.EstimateRaw(qc, code))
}

// MarshalCode appends the encoded record of code to dst.
func MarshalCode(dst []byte, code Code) []byte {
	for _, w := range code.Bits {
		dst = binary.LittleEndian.AppendUint64(dst, w)
	}
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(code.Norm))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(code.DotCorrection))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(code.CentroidDot))
	return dst
}

// UnmarshalCode decodes a record into dst, reusing dst.Bits when possible.
func UnmarshalCode(dst *Code, src []byte, words int) error {
	if len(src) != words*8+correctionBytes {
		return ErrInvalidRecord
	}
	if cap(dst.Bits) < words {
		dst.Bits = make([]uint64, words)
	}
	dst.Bits = dst.Bits[:words]
	for i := range words {
		dst.Bits[i] = binary.LittleEndian.Uint64(src[i*8:])
	}
	off := words * 8
	dst.Norm = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
	dst.DotCorrection = math.Float32frombits(binary.LittleEndian.Uint32(src[off+4:]))
	dst.CentroidDot = math.Float32frombits(binary.LittleEndian.Uint32(src[off+8:]))
	return nil
}
