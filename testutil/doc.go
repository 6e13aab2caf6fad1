// Package testutil provides testing utilities for bqhnsw.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(500, 64)   // L2-normalized
//	vecs = rng.GaussianVectors(500, 64) // standard normal
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForce(vecs, query, k, distance.DotProduct)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
