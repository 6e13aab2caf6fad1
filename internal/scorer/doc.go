// Package scorer scores graph nodes against a query.
//
// A QuantizedScorer pairs a segment's binary quantizer with its vectors.
// Queries are bound once with Query, after which Score estimates the
// similarity of any ordinal from its code and Exact computes the true score
// from the raw vector through the exact-score delegate. Rerank rescores a
// candidate list exactly.
//
// During graph construction a Supplier hands out one QueryScorer per node,
// using the node's own raw vector as the query.
package scorer
