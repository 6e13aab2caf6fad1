package hnsw

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/hupe1980/bqhnsw/internal/searcher"
)

// Builder states.
const (
	stateEmpty int32 = iota
	stateBuilding
	stateSealed
)

// insertBatch is the number of ordinals a parallel worker claims at once.
const insertBatch = 32

// Neighbor is an edge to Ord with the score it was linked with.
type Neighbor struct {
	Ord   uint32
	Score float32
}

// Builder constructs a graph over a fixed number of ordinals.
//
// Insert may be called from several goroutines at once. Neighbor lists are
// guarded by sharded locks and the entry point is updated with a CAS, so no
// lock is held across a whole insertion.
type Builder struct {
	opts     Options
	n        int
	supplier Supplier
	logger   *slog.Logger

	// levels holds the precomputed top level of every ordinal.
	levels   []uint8
	maxLevel int

	// conns[ord][level] is the neighbor list of ord, ordered best-first.
	conns    [][][]Neighbor
	inserted []atomic.Bool
	count    atomic.Int64

	// entry packs (level+1)<<32 | ord. Zero means no entry point yet.
	entry atomic.Uint64
	state atomic.Int32

	shardedLocks [lockShards]sync.RWMutex
}

// NewBuilder creates a builder for ordinals 0..n-1 scored by supplier.
func NewBuilder(n int, supplier Supplier, opts Options) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrEmpty
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	b := &Builder{
		opts:     opts,
		n:        n,
		supplier: supplier,
		logger:   logger,
		levels:   make([]uint8, n),
		maxLevel: maxLevels(n, opts.LevelProbability) - 1,
		conns:    make([][][]Neighbor, n),
		inserted: make([]atomic.Bool, n),
	}

	for ord := range n {
		b.levels[ord] = uint8(levelFor(opts.Seed, uint32(ord), opts.LevelProbability, b.maxLevel+1))
	}

	return b, nil
}

func packEntry(ord uint32, level int) uint64 {
	return uint64(level+1)<<32 | uint64(ord)
}

func unpackEntry(v uint64) (uint32, int) {
	return uint32(v), int(v>>32) - 1
}

func (b *Builder) lock(ord uint32) *sync.RWMutex {
	return &b.shardedLocks[ord&lockMask]
}

func (b *Builder) maxConns(level int) int {
	if level == 0 {
		return b.opts.M * mmax0Multiplier
	}
	return b.opts.M
}

// Len returns the number of ordinals the builder was created for.
func (b *Builder) Len() int { return b.n }

// Inserted returns the number of ordinals inserted so far.
func (b *Builder) Inserted() int { return int(b.count.Load()) }

// NumLevels returns the number of levels in use.
func (b *Builder) NumLevels() int {
	_, level := unpackEntry(b.entry.Load())
	return level + 1
}

// EntryPoint returns the current entry point.
func (b *Builder) EntryPoint() (uint32, int) {
	return unpackEntry(b.entry.Load())
}

// Neighbors appends the current neighbors of ord on level to dst.
func (b *Builder) Neighbors(level int, ord uint32, dst []uint32) ([]uint32, error) {
	if int(ord) >= b.n {
		return dst, &ErrOrdinal{Ord: ord, Reason: "out of range"}
	}
	mu := b.lock(ord)
	mu.RLock()
	if lv := b.conns[ord]; level < len(lv) {
		for _, c := range lv[level] {
			dst = append(dst, c.Ord)
		}
	}
	mu.RUnlock()
	return dst, nil
}

// Insert links ord into the graph.
func (b *Builder) Insert(ctx context.Context, ord uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.state.Load() == stateSealed {
		return ErrSealed
	}
	if int(ord) >= b.n {
		return &ErrOrdinal{Ord: ord, Reason: "out of range"}
	}
	if b.inserted[ord].Swap(true) {
		return &ErrOrdinal{Ord: ord, Reason: "already inserted"}
	}
	b.state.CompareAndSwap(stateEmpty, stateBuilding)

	if err := b.insert(ord); err != nil {
		return err
	}
	b.count.Add(1)
	return nil
}

func (b *Builder) insert(ord uint32) error {
	level := int(b.levels[ord])

	mu := b.lock(ord)
	mu.Lock()
	b.conns[ord] = make([][]Neighbor, level+1)
	mu.Unlock()

	ep := b.entry.Load()
	if ep == 0 {
		if b.entry.CompareAndSwap(0, packEntry(ord, level)) {
			return nil
		}
		ep = b.entry.Load()
	}
	epOrd, epLevel := unpackEntry(ep)

	sc, err := b.supplier.ScorerFor(ord)
	if err != nil {
		return err
	}

	s := searcher.Get()
	defer searcher.Put(s)
	s.Visited.EnsureCapacity(b.n)

	t := traversal{s: s, v: b, sc: sc, self: ord, hasSelf: true}

	curr, err := t.score(epOrd)
	if err != nil {
		return err
	}

	// 1. Greedy descent from the entry level down to level+1
	for l := epLevel; l > level; l-- {
		if curr, _, err = t.greedy(curr, l); err != nil {
			return err
		}
	}

	// 2. Search and link from min(level, epLevel) down to 0
	for l := min(level, epLevel); l >= 0; l-- {
		if _, err := t.searchLayer(curr, l, b.opts.BeamWidth); err != nil {
			return err
		}
		s.Sorted = s.Results.AppendSorted(s.Sorted[:0])
		if len(s.Sorted) > 0 {
			curr = s.Sorted[0]
		}

		selected, err := b.selectDiverse(s.Sorted, b.maxConns(l))
		if err != nil {
			return err
		}

		// The published list is mutated in place by concurrent links, so
		// it must not share a backing array with selected.
		mu.Lock()
		b.conns[ord][l] = slices.Clone(selected)
		mu.Unlock()

		for _, nb := range selected {
			if err := b.link(nb.Ord, ord, l, nb.Score); err != nil {
				return err
			}
		}
	}

	b.raiseEntry(ord, level)
	return nil
}

// raiseEntry installs ord as entry point if level is strictly above the
// installed one.
func (b *Builder) raiseEntry(ord uint32, level int) {
	for {
		old := b.entry.Load()
		if _, oldLevel := unpackEntry(old); level <= oldLevel {
			return
		}
		if b.entry.CompareAndSwap(old, packEntry(ord, level)) {
			b.logger.Debug("hnsw entry point raised", "ord", ord, "level", level)
			return
		}
	}
}

// selectDiverse picks up to m candidates best-first, discarding a candidate C
// when an already selected neighbor S scores strictly higher against C than
// the new node does.
func (b *Builder) selectDiverse(candidates []searcher.Item, m int) ([]Neighbor, error) {
	selected := make([]Neighbor, 0, min(m, len(candidates)))
	scorers := make([]Scorer, 0, cap(selected))

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		diverse := true
		for _, sc := range scorers {
			score, err := sc.Score(c.Node)
			if err != nil {
				return nil, err
			}
			if score > c.Score {
				diverse = false
				break
			}
		}
		if !diverse {
			continue
		}

		sc, err := b.supplier.ScorerFor(c.Node)
		if err != nil {
			return nil, err
		}
		selected = append(selected, Neighbor{Ord: c.Node, Score: c.Score})
		scorers = append(scorers, sc)
	}

	return selected, nil
}

// link adds the reciprocal edge target -> src on level, pruning target's list
// back to capacity when it overflows.
func (b *Builder) link(target, src uint32, level int, score float32) error {
	mu := b.lock(target)
	mu.Lock()
	defer mu.Unlock()

	lv := b.conns[target]
	if level >= len(lv) {
		return nil
	}
	conns := lv[level]

	for _, c := range conns {
		if c.Ord == src {
			return nil
		}
	}

	edge := Neighbor{Ord: src, Score: score}
	pos, _ := slices.BinarySearchFunc(conns, edge, compareNeighbors)
	conns = slices.Insert(conns, pos, edge)

	if len(conns) > b.maxConns(level) {
		evict, err := b.evictionIndex(conns)
		if err != nil {
			return err
		}
		conns = slices.Delete(conns, evict, evict+1)
	}

	lv[level] = conns
	return nil
}

// evictionIndex returns the edge to drop from an overflowing best-first list:
// the worst edge i for which a better edge j scores strictly higher against
// i than the owner does, or the worst edge if every edge is diverse.
func (b *Builder) evictionIndex(conns []Neighbor) (int, error) {
	worst := len(conns) - 1
	scorers := make([]Scorer, worst)

	for i := worst; i > 0; i-- {
		for j := range i {
			if scorers[j] == nil {
				sc, err := b.supplier.ScorerFor(conns[j].Ord)
				if err != nil {
					return 0, err
				}
				scorers[j] = sc
			}
			score, err := scorers[j].Score(conns[i].Ord)
			if err != nil {
				return 0, err
			}
			if score > conns[i].Score {
				return i, nil
			}
		}
	}

	return worst, nil
}

func compareNeighbors(a, b Neighbor) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.Ord < b.Ord:
		return -1
	case a.Ord > b.Ord:
		return 1
	default:
		return 0
	}
}

// InsertParallel inserts ords using workers tasks submitted to exec. With
// fewer than two workers or a nil executor the ordinals are inserted in order
// on the calling goroutine. Worker failures are aggregated.
func (b *Builder) InsertParallel(ctx context.Context, ords []uint32, workers int, exec Executor) error {
	if workers <= 1 || exec == nil {
		for _, ord := range ords {
			if err := b.Insert(ctx, ord); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		next   atomic.Int64
		failed atomic.Bool
		wg     sync.WaitGroup
		mu     sync.Mutex
		merr   *multierror.Error
	)

	for range workers {
		wg.Add(1)
		exec.Go(func() error {
			defer wg.Done()
			for !failed.Load() {
				start := int(next.Add(insertBatch)) - insertBatch
				if start >= len(ords) {
					return nil
				}
				for _, ord := range ords[start:min(start+insertBatch, len(ords))] {
					if err := b.Insert(ctx, ord); err != nil {
						failed.Store(true)
						mu.Lock()
						merr = multierror.Append(merr, err)
						mu.Unlock()
						return err
					}
				}
			}
			return nil
		})
	}
	wg.Wait()

	return merr.ErrorOrNil()
}

// Seal freezes the builder into an immutable Graph. Every ordinal must have
// been inserted.
func (b *Builder) Seal() (*Graph, error) {
	if b.count.Load() == 0 {
		return nil, ErrEmpty
	}
	if int(b.count.Load()) != b.n {
		return nil, ErrIncomplete
	}
	if !b.state.CompareAndSwap(stateBuilding, stateSealed) {
		return nil, ErrSealed
	}

	epOrd, epLevel := unpackEntry(b.entry.Load())
	numLevels := epLevel + 1

	g := &Graph{
		n:          b.n,
		m:          b.opts.M,
		entry:      epOrd,
		levelNodes: make([][]uint32, numLevels),
		adj:        make([][][]uint32, numLevels),
	}

	for l := range numLevels {
		var nodes []uint32
		if l > 0 {
			for ord, top := range b.levels {
				if int(top) >= l {
					nodes = append(nodes, uint32(ord))
				}
			}
			g.levelNodes[l] = nodes
		}

		count := b.n
		if l > 0 {
			count = len(nodes)
		}
		adj := make([][]uint32, count)
		for i := range count {
			ord := uint32(i)
			if l > 0 {
				ord = nodes[i]
			}
			list := make([]uint32, 0, len(b.conns[ord][l]))
			for _, c := range b.conns[ord][l] {
				list = append(list, c.Ord)
			}
			slices.Sort(list)
			adj[i] = list
		}
		g.adj[l] = adj
	}

	b.logger.Debug("hnsw graph sealed", "nodes", b.n, "levels", numLevels, "entry", epOrd)

	return g, nil
}
