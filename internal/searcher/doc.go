// Package searcher provides the pooled scratch state for graph search.
//
// The Searcher struct owns all reusable resources needed for a query:
//   - Priority queues (exploration candidates, bounded results)
//   - Visited sets (bitsets with a dirty list)
//   - Result buffers
//
// Searchers are pooled process-wide via Get and Put.
package searcher
