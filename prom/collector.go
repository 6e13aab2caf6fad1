// Package prom exports format metrics to Prometheus.
package prom

import (
	"time"

	"github.com/hupe1980/bqhnsw"
	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120}

// Collector implements bqhnsw.MetricsCollector with Prometheus counters,
// histograms and gauges.
type Collector struct {
	seals         *prometheus.CounterVec
	sealDuration  prometheus.Histogram
	sealVectors   prometheus.Counter
	searches      *prometheus.CounterVec
	searchLatency prometheus.Histogram
	searchVisited prometheus.Histogram
	merges        *prometheus.CounterVec
	mergeDuration prometheus.Histogram
	lastMergeSize prometheus.Gauge
	transfers     *prometheus.CounterVec
	transferBytes prometheus.Counter
}

var _ bqhnsw.MetricsCollector = (*Collector)(nil)

// New creates a collector and registers its metrics on reg. namespace
// prefixes every metric name; it defaults to "bqhnsw".
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if namespace == "" {
		namespace = "bqhnsw"
	}

	c := &Collector{
		seals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seals_total",
			Help:      "Total number of segment seals",
		}, []string{"status"}),
		sealDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seal_duration_seconds",
			Help:      "Duration of segment seals in seconds",
			Buckets:   latencyBuckets,
		}),
		sealVectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sealed_vectors_total",
			Help:      "Total number of vectors written by seals",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches",
		}, []string{"status"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches in seconds",
			Buckets:   latencyBuckets,
		}),
		searchVisited: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_visited_nodes",
			Help:      "Number of graph nodes scored per search",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 12),
		}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Total number of merges",
		}, []string{"status"}),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Duration of merges in seconds",
			Buckets:   latencyBuckets,
		}),
		lastMergeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_merge_vectors",
			Help:      "Number of live vectors written by the most recent merge",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_transfers_total",
			Help:      "Total number of segment publishes and fetches",
		}, []string{"status"}),
		transferBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_transfer_bytes_total",
			Help:      "Total bytes moved by segment publishes and fetches",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.seals, c.sealDuration, c.sealVectors,
		c.searches, c.searchLatency, c.searchVisited,
		c.merges, c.mergeDuration, c.lastMergeSize,
		c.transfers, c.transferBytes,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSeal implements bqhnsw.MetricsCollector.
func (c *Collector) RecordSeal(count int, d time.Duration, err error) {
	c.seals.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.sealDuration.Observe(d.Seconds())
	c.sealVectors.Add(float64(count))
}

// RecordSearch implements bqhnsw.MetricsCollector.
func (c *Collector) RecordSearch(_, visited int, d time.Duration, err error) {
	c.searches.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.searchLatency.Observe(d.Seconds())
	c.searchVisited.Observe(float64(visited))
}

// RecordMerge implements bqhnsw.MetricsCollector.
func (c *Collector) RecordMerge(_, vectors int, d time.Duration, err error) {
	c.merges.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.mergeDuration.Observe(d.Seconds())
	c.lastMergeSize.Set(float64(vectors))
}

// RecordPublish implements bqhnsw.MetricsCollector.
func (c *Collector) RecordPublish(bytes int64, _ time.Duration, err error) {
	c.transfers.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	c.transferBytes.Add(float64(bytes))
}
