// Package distance defines the similarity functions an index segment can be
// built with and the exact comparisons behind them.
//
// Every similarity maps its raw value (squared distance, dot product, cosine)
// to a normalized, non-negative score where higher is better:
//
//   - Euclidean: 1 / (1 + d²)
//   - DotProduct, Cosine: max((1 + x) / 2, 0)
//   - MaximumInnerProduct: x < 0 ? 1 / (1 - x) : x + 1
//
// DotProduct assumes unit-length vectors; MaximumInnerProduct does not.
package distance
