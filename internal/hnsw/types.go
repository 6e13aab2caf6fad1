package hnsw

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

const (
	// DefaultM is the default number of connections per node on upper levels.
	DefaultM = 16

	// DefaultBeamWidth is the default size of the construction candidate queue.
	DefaultBeamWidth = 100

	// MaxM is the largest accepted M.
	MaxM = 512

	// MaxBeamWidth is the largest accepted beam width.
	MaxBeamWidth = 3200

	// mmax0Multiplier is the multiplier for calculating maximum connections at level 0.
	mmax0Multiplier = 2

	lockShards = 1024
	lockMask   = lockShards - 1
)

// DefaultLevelProbability is the default promotion probability, 1/e.
var DefaultLevelProbability = 1 / math.E

var (
	// ErrSealed is returned when inserting into a sealed builder.
	ErrSealed = errors.New("hnsw: builder is sealed")
	// ErrIncomplete is returned when sealing before every ordinal was inserted.
	ErrIncomplete = errors.New("hnsw: not every ordinal was inserted")
	// ErrEmpty is returned when building or sealing an empty graph.
	ErrEmpty = errors.New("hnsw: empty graph")
	// ErrCorrupt is returned when graph bytes or metadata fail validation.
	ErrCorrupt = errors.New("hnsw: corrupt graph")
)

// ErrOrdinal indicates an ordinal that is out of range or already inserted.
type ErrOrdinal struct {
	Ord    uint32
	Reason string
}

func (e *ErrOrdinal) Error() string {
	return fmt.Sprintf("hnsw: ordinal %d %s", e.Ord, e.Reason)
}

// Options configures a Builder.
type Options struct {
	M                int
	BeamWidth        int
	LevelProbability float64
	Seed             int64
	Logger           *slog.Logger
}

// DefaultOptions contains the default options for a Builder.
var DefaultOptions = Options{
	M:                DefaultM,
	BeamWidth:        DefaultBeamWidth,
	LevelProbability: DefaultLevelProbability,
	Seed:             42,
}

func (o Options) validate() error {
	if o.M <= 0 || o.M > MaxM {
		return fmt.Errorf("hnsw: M must be in (0, %d], got %d", MaxM, o.M)
	}
	if o.BeamWidth <= 0 || o.BeamWidth > MaxBeamWidth {
		return fmt.Errorf("hnsw: beam width must be in (0, %d], got %d", MaxBeamWidth, o.BeamWidth)
	}
	if o.LevelProbability <= 0 || o.LevelProbability >= 1 {
		return fmt.Errorf("hnsw: level probability must be in (0, 1), got %g", o.LevelProbability)
	}
	return nil
}

// Scorer scores ordinals against a bound query. Implementations may hold
// scratch state and are used by one goroutine at a time.
type Scorer interface {
	Score(ord uint32) (float32, error)
}

// Supplier returns a scorer whose query is the vector of ord.
// It must be safe for concurrent use.
type Supplier interface {
	ScorerFor(ord uint32) (Scorer, error)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc func(ord uint32) (Scorer, error)

// ScorerFor implements Supplier.
func (f SupplierFunc) ScorerFor(ord uint32) (Scorer, error) { return f(ord) }

// Executor runs tasks. *errgroup.Group satisfies it.
type Executor interface {
	Go(func() error)
}

// View is read access to a graph's adjacency.
type View interface {
	// Len returns the number of nodes.
	Len() int
	// NumLevels returns the number of levels, at least 1 for a non-empty graph.
	NumLevels() int
	// EntryPoint returns the entry node and its level.
	EntryPoint() (ord uint32, level int)
	// Neighbors appends the neighbors of ord on level to dst.
	Neighbors(level int, ord uint32, dst []uint32) ([]uint32, error)
}

// LevelStats describes one level of a graph.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	MaxConnections int
}
