package bqhnsw

import (
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bqhnsw/internal/hnsw"
	"github.com/hupe1980/bqhnsw/internal/simd"
	"github.com/hupe1980/bqhnsw/resource"
	"github.com/hupe1980/bqhnsw/store"
)

const (
	// DefaultMaxConnections is the default number of connections per node.
	DefaultMaxConnections = hnsw.DefaultM

	// DefaultBeamWidth is the default construction beam width.
	DefaultBeamWidth = hnsw.DefaultBeamWidth

	// MaxMaxConnections is the largest accepted maxConnections.
	MaxMaxConnections = hnsw.MaxM

	// MaxBeamWidth is the largest accepted beam width.
	MaxBeamWidth = hnsw.MaxBeamWidth

	// DefaultNumMergeWorkers is the default merge parallelism.
	DefaultNumMergeWorkers = 1

	// DefaultSeed seeds node level assignment.
	DefaultSeed = 42
)

// Executor runs merge tasks. *errgroup.Group satisfies it.
type Executor interface {
	Go(func() error)
}

type options struct {
	maxConnections   int
	beamWidth        int
	numMergeWorkers  int
	mergeExecutor    Executor
	storageMode      store.AccessMode
	searchBeamWidth  int
	levelProbability float64
	seed             int64
	kernel           simd.Kernel
	kernelName       string
	resources        *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Format.
type Option func(*options)

// WithMaxConnections sets the per-node connection cap on upper levels.
// Level 0 allows twice as many. Must be in (0, 512].
func WithMaxConnections(m int) Option {
	return func(o *options) {
		o.maxConnections = m
	}
}

// WithBeamWidth sets the construction beam width. Must be in (0, 3200].
func WithBeamWidth(beamWidth int) Option {
	return func(o *options) {
		o.beamWidth = beamWidth
	}
}

// WithMergeWorkers sets merge parallelism. An executor is required iff
// workers > 1.
//
// Example:
//
//	var eg errgroup.Group
//	f, _ := bqhnsw.New(bqhnsw.WithMergeWorkers(4, &eg))
func WithMergeWorkers(workers int, exec Executor) Option {
	return func(o *options) {
		o.numMergeWorkers = workers
		o.mergeExecutor = exec
	}
}

// WithStorageMode selects how readers access segment files.
// Auto (the default) picks heap or mmap from the directory's capabilities.
func WithStorageMode(mode store.AccessMode) Option {
	return func(o *options) {
		o.storageMode = mode
	}
}

// WithDefaultSearchBeamWidth sets the level-0 beam width used by searches that
// do not pass WithSearchBeamWidth. If 0, the construction beam width is used.
func WithDefaultSearchBeamWidth(beamWidth int) Option {
	return func(o *options) {
		o.searchBeamWidth = beamWidth
	}
}

// WithLevelProbability sets the per-level promotion probability.
// Default: 1/e.
func WithLevelProbability(p float64) Option {
	return func(o *options) {
		o.levelProbability = p
	}
}

// WithSeed sets the seed for node level assignment. Builds with equal seeds
// and inputs produce identical graphs when using a single worker.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithScoreDelegate forces the exact-score delegate by name ("generic" or
// "vek"). By default the delegate chosen at process start is used.
func WithScoreDelegate(name string) Option {
	return func(o *options) {
		o.kernelName = name
	}
}

// WithResourceController shares a resource controller for merge slots and
// archive IO throttling.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &bqhnsw.BasicMetricsCollector{}
//	f, _ := bqhnsw.New(bqhnsw.WithMetricsCollector(metrics))
//	// ... build and search ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := bqhnsw.NewJSONLogger(slog.LevelInfo)
//	f, _ := bqhnsw.New(bqhnsw.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxConnections:   DefaultMaxConnections,
		beamWidth:        DefaultBeamWidth,
		numMergeWorkers:  DefaultNumMergeWorkers,
		storageMode:      store.Auto,
		levelProbability: hnsw.DefaultLevelProbability,
		seed:             DefaultSeed,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	visitBudget int
	rerank      int
	beamWidth   int
	filter      *roaring.Bitmap
}

// WithVisitBudget caps the number of nodes scored by a search. When the budget
// runs out the best results found so far are returned. 0 means unlimited.
func WithVisitBudget(n int) SearchOption {
	return func(o *searchOptions) {
		o.visitBudget = n
	}
}

// WithRerank rescores the best n approximate candidates with exact scores
// before truncating to k. n below k is raised to k.
func WithRerank(n int) SearchOption {
	return func(o *searchOptions) {
		o.rerank = n
	}
}

// WithSearchBeamWidth overrides the level-0 beam width for one search.
func WithSearchBeamWidth(beamWidth int) SearchOption {
	return func(o *searchOptions) {
		o.beamWidth = beamWidth
	}
}

// WithFilter restricts results to ordinals in the bitmap. Other nodes are
// still traversed.
func WithFilter(filter *roaring.Bitmap) SearchOption {
	return func(o *searchOptions) {
		o.filter = filter
	}
}
