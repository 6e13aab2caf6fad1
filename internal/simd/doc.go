// Package simd provides the exact-score kernels used for full-precision
// vector comparisons.
//
// Two kernels exist:
//
//   - generic: portable Go loops
//   - vek: accelerated float32 kernels from github.com/viterin/vek
//
// The active kernel is chosen once at process start by CPU feature
// detection (github.com/klauspost/cpuid/v2). Set BQHNSW_SIMD=generic or
// BQHNSW_SIMD=vek to override the choice; an override naming a kernel the
// CPU cannot run is ignored.
//
// Callers depend only on the Kernel interface. All kernels return the same
// values within floating-point tolerance, so the choice never affects the
// persisted index format.
package simd
