package bqhnsw

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the prom
// package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordSeal is called after each Writer.Seal.
	// count is the number of vectors in the segment.
	RecordSeal(count int, duration time.Duration, err error)

	// RecordSearch is called after each search.
	// k is the number of neighbors requested and visited the number of
	// nodes scored.
	RecordSearch(k, visited int, duration time.Duration, err error)

	// RecordMerge is called after each merge.
	// vectors is the number of live vectors written to the new segment.
	RecordMerge(sources, vectors int, duration time.Duration, err error)

	// RecordPublish is called after each archive upload or download.
	RecordPublish(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSeal(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordMerge(int, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordPublish(int64, time.Duration, error)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SealCount        atomic.Int64
	SealErrors       atomic.Int64
	SealVectors      atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	SearchVisited    atomic.Int64
	MergeCount       atomic.Int64
	MergeErrors      atomic.Int64
	MergeVectors     atomic.Int64
	PublishCount     atomic.Int64
	PublishErrors    atomic.Int64
	PublishBytes     atomic.Int64
}

// RecordSeal implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSeal(count int, _ time.Duration, err error) {
	b.SealCount.Add(1)
	if err != nil {
		b.SealErrors.Add(1)
		return
	}
	b.SealVectors.Add(int64(count))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_, visited int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	b.SearchVisited.Add(int64(visited))
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(_, vectors int, _ time.Duration, err error) {
	b.MergeCount.Add(1)
	if err != nil {
		b.MergeErrors.Add(1)
		return
	}
	b.MergeVectors.Add(int64(vectors))
}

// RecordPublish implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPublish(bytes int64, _ time.Duration, err error) {
	b.PublishCount.Add(1)
	if err != nil {
		b.PublishErrors.Add(1)
		return
	}
	b.PublishBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SealCount:      b.SealCount.Load(),
		SealErrors:     b.SealErrors.Load(),
		SealVectors:    b.SealVectors.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		SearchVisited:  b.SearchVisited.Load(),
		MergeCount:     b.MergeCount.Load(),
		MergeErrors:    b.MergeErrors.Load(),
		MergeVectors:   b.MergeVectors.Load(),
		PublishCount:   b.PublishCount.Load(),
		PublishErrors:  b.PublishErrors.Load(),
		PublishBytes:   b.PublishBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SealCount      int64
	SealErrors     int64
	SealVectors    int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	SearchVisited  int64
	MergeCount     int64
	MergeErrors    int64
	MergeVectors   int64
	PublishCount   int64
	PublishErrors  int64
	PublishBytes   int64
}
