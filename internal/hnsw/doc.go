// Package hnsw implements Hierarchical Navigable Small World graphs over
// dense integer ordinals.
//
// # Features
//
//   - Deterministic node levels (splitmix64 of seed and ordinal)
//   - 1024 sharded locks for concurrent merge insertion
//   - Entry point installed by CAS on a packed (level, ordinal) word
//   - Diversity heuristic for neighbor selection and overflow pruning
//   - Compact on-disk adjacency (uvarint delta lists), decoded lazily
//
// # Parameters
//
//   - M: max connections per node on upper levels, 2*M on level 0 (default: 16)
//   - BeamWidth: construction queue size (default: 100)
//   - LevelProbability: promotion probability per level (default: 1/e)
//
// Scores are similarities: higher is better. Equal scores rank the lower
// ordinal first, which keeps single-worker builds reproducible.
//
// # Reference
//
// Malkov & Yashunin, "Efficient and robust approximate nearest neighbor search
// using Hierarchical Navigable Small World graphs", IEEE TPAMI 2018.
package hnsw
