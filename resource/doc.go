// Package resource governs the shared budgets of an index process.
//
// A Controller manages three resource types:
//
//   - Memory: bytes held by heap-resident segment blocks (non-blocking, fail-fast)
//   - Concurrency: slots for background merges
//   - IO: a token bucket for archive uploads and downloads
//
// Memory reservations fail immediately with ErrMemoryLimitExceeded:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if err := rc.AcquireMemory(size); err != nil {
//	    // open the block memory-mapped instead, or fail
//	}
//	defer rc.ReleaseMemory(size)
//
// All methods are safe for concurrent use, and all of them are no-ops on a
// nil *Controller.
package resource
