// Package vectorstore stores a segment's raw vectors and quantized codes.
//
// # File Format
//
// Raw vectors live in <segment>.vec as contiguous little-endian float32
// arrays in ordinal order:
//
//	+-------------------+
//	|  vector 0         |  dim * 4 bytes
//	+-------------------+
//	|  ...              |
//	+-------------------+
//	|  zero padding     |  only for direct-I/O layout, up to a 4096 multiple
//	+-------------------+
//
// Quantized codes live in <segment>.veb as fixed-size records:
//
//	+-------------------+-----------------------------------------+
//	|  bits             |  ceil(dim/64) * 8 bytes                 |
//	|  corrections      |  3 * float32 (norm, dot, centroid dot)  |
//	+-------------------+-----------------------------------------+
//
// # Access Modes
//
// Heap and memory-mapped inputs are served zero-copy when the host is little
// endian. Direct-I/O inputs copy each vector out of an aligned block buffer.
// Quantized codes are never read with direct I/O.
package vectorstore
