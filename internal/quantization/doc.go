// Package quantization implements 1-bit binary quantization with scalar
// corrections.
//
// A stored vector v is centered on the segment centroid c and reduced to the
// sign of each residual component, packed 64 bits per word. Three correction
// scalars are kept per vector:
//
//   - Norm: ‖v − c‖
//   - DotCorrection: ⟨x̄, r̂⟩ where x̄ = (2b − 1)/√D and r̂ = (v − c)/‖v − c‖
//   - CentroidDot: ⟨c, v − c⟩
//
// Queries are quantized asymmetrically to 4 bits per dimension and stored as
// bit-planes, so the inner product with a stored code reduces to AND and
// popcount per plane. The estimator
//
//	⟨q − c, v − c⟩ ≈ ⟨q − c, x̄⟩ · Norm / DotCorrection
//
// is then converted to the raw value of the segment similarity.
//
// Reference: Gao & Long, "RaBitQ: Quantizing High-Dimensional Vectors with a
// Theoretical Error Bound for Approximate Nearest Neighbor Search", SIGMOD 2024.
package quantization
