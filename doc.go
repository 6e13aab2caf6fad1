// Package bqhnsw implements an on-disk approximate nearest neighbor index
// format: an HNSW graph navigated with 1-bit binary quantized vectors and
// refined with exact scores over the raw float32 vectors.
//
// A segment is written once by a Writer and read by any number of Readers.
// Segments are immutable; Merge combines several into a new one.
//
// # Quick Start
//
//	f, _ := bqhnsw.New(bqhnsw.WithMaxConnections(16), bqhnsw.WithBeamWidth(100))
//	dir, _ := store.NewFSDirectory("./index")
//
//	w, _ := f.NewWriter(dir, "seg-0001", 128, distance.DotProduct)
//	for i, v := range vectors {
//	    _ = w.Add(ctx, i, v)
//	}
//	_ = w.Seal(ctx)
//
//	r, _ := f.NewReader(dir, "seg-0001")
//	defer r.Close()
//	results, _ := r.Search(ctx, query, 10, distance.DotProduct, bqhnsw.WithRerank(50))
//
// # Segment Files
//
// Each segment consists of four files sharing the segment name:
//
//	seg.vec  raw float32 vectors (block padded in direct-I/O mode)
//	seg.veb  binary quantized codes with per-vector corrections
//	seg.vex  the HNSW graph, level by level
//	seg.vem  metadata, written last; its presence marks a complete segment
//
// # Storage Modes
//
// Readers access the raw vectors through the storage mode set with
// WithStorageMode:
//
//   - store.Auto picks heap or mmap from the directory's capabilities
//   - store.Heap loads the files into memory
//   - store.Mmap maps the files read-only
//   - store.DirectIO reads raw vectors with O_DIRECT, keeping them out of the
//     page cache; quantized codes and the graph stay resident
//
// Opening a segment in a mode the directory cannot serve fails with
// *UnsupportedStorageModeError.
//
// # Searching
//
// The graph is navigated with asymmetric estimates between a 4-bit query
// code and the 1-bit vector codes. WithRerank rescores the best candidates
// exactly; WithVisitBudget bounds the work of a search; WithFilter restricts
// the results to a roaring bitmap of ordinals.
//
// # Archives
//
// Publish uploads a sealed segment to a blobstore.BlobStore and Fetch
// downloads it into a local directory. Both write the metadata last. A
// blobstore.Registry makes publication publish-once:
//
//	bs, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("segments/"))
//	_, err := f.Publish(ctx, dir, "seg-0001", bqblob.Compressed(bs, bqblob.CodecZstd),
//	    bqhnsw.WithRegistry(s3.NewDDBRegistry(ddb, "bqhnsw-segments", "s3://my-bucket/segments")))
//
// # Observability
//
// Operations log through *Logger (log/slog) and report to a
// MetricsCollector; package prom provides a Prometheus collector.
package bqhnsw
