package hnsw

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type exactScorer struct {
	q    []float32
	vecs [][]float32
	sim  distance.Similarity
}

func (s exactScorer) Score(ord uint32) (float32, error) {
	return s.sim.Compare(s.q, s.vecs[ord]), nil
}

func exactSupplier(vecs [][]float32, sim distance.Similarity) Supplier {
	return SupplierFunc(func(ord uint32) (Scorer, error) {
		return exactScorer{q: vecs[ord], vecs: vecs, sim: sim}, nil
	})
}

func testOptions() Options {
	opts := DefaultOptions
	opts.M = 8
	opts.BeamWidth = 64
	return opts
}

func buildGraph(t *testing.T, vecs [][]float32, opts Options) *Graph {
	t.Helper()

	b, err := NewBuilder(len(vecs), exactSupplier(vecs, distance.Euclidean), opts)
	require.NoError(t, err)

	for i := range vecs {
		require.NoError(t, b.Insert(context.Background(), uint32(i)))
	}

	g, err := b.Seal()
	require.NoError(t, err)
	return g
}

func searchOrds(t *testing.T, v View, vecs [][]float32, q []float32, p SearchParams) []int {
	t.Helper()

	items, _, err := Search(context.Background(), v, exactScorer{q: q, vecs: vecs, sim: distance.Euclidean}, p)
	require.NoError(t, err)

	ords := make([]int, len(items))
	for i, it := range items {
		ords[i] = int(it.Node)
	}
	return ords
}

func assertGraphInvariants(t *testing.T, g *Graph) {
	t.Helper()

	for l := range g.NumLevels() {
		nodes := g.LevelNodes(l)
		if l > 0 {
			assert.True(t, isSubset(nodes, g.LevelNodes(l-1)), "level %d not contained in level %d", l, l-1)
		}

		limit := g.M()
		if l == 0 {
			limit *= mmax0Multiplier
		}

		for _, ord := range nodes {
			nbs, err := g.Neighbors(l, ord, nil)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(nbs), limit, "node %d level %d", ord, l)

			for _, nb := range nbs {
				assert.NotEqual(t, ord, nb, "self loop at node %d", ord)
				if l > 0 {
					_, err := g.Neighbors(l, nb, nil)
					assert.NoError(t, err, "neighbor %d of %d not on level %d", nb, ord, l)
				}
			}
		}
	}

	entry, top := g.EntryPoint()
	assert.Equal(t, g.NumLevels()-1, top)
	_, err := g.Neighbors(top, entry, nil)
	assert.NoError(t, err)
}

func TestLevels(t *testing.T) {
	p := DefaultLevelProbability

	assert.Equal(t, 1, maxLevels(0, p))
	assert.Equal(t, 1, maxLevels(1, p))
	assert.Equal(t, 7, maxLevels(1000, p))

	assert.Equal(t, levelFor(7, 123, p, 10), levelFor(7, 123, p, 10))

	const n = 100000
	promoted := 0
	for ord := range n {
		level := levelFor(42, uint32(ord), p, 10)
		require.GreaterOrEqual(t, level, 0)
		require.Less(t, level, 10)
		if level > 0 {
			promoted++
		}
	}
	assert.InDelta(t, p, float64(promoted)/n, 0.01)

	for ord := range 1000 {
		assert.Zero(t, levelFor(42, uint32(ord), p, 1))
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero M", func(o *Options) { o.M = 0 }},
		{"M too large", func(o *Options) { o.M = MaxM + 1 }},
		{"zero beam width", func(o *Options) { o.BeamWidth = 0 }},
		{"beam width too large", func(o *Options) { o.BeamWidth = MaxBeamWidth + 1 }},
		{"probability one", func(o *Options) { o.LevelProbability = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions
			tt.mutate(&opts)
			_, err := NewBuilder(10, exactSupplier(nil, distance.Euclidean), opts)
			assert.Error(t, err)
		})
	}
}

func TestBuildAndSearchRecall(t *testing.T) {
	rng := testutil.NewRNG(1)
	vecs := rng.UniformRangeVectors(1000, 16)
	g := buildGraph(t, vecs, testOptions())

	assertGraphInvariants(t, g)

	queries := rng.UniformRangeVectors(50, 16)
	var recall float64
	for _, q := range queries {
		truth := testutil.BruteForce(vecs, q, 10, distance.Euclidean)
		got := searchOrds(t, g, vecs, q, SearchParams{K: 10, BeamWidth: 100})
		require.Len(t, got, 10)
		recall += testutil.ComputeRecall(truth, got)
	}
	assert.GreaterOrEqual(t, recall/float64(len(queries)), 0.9)
}

func TestBuilderDeterministic(t *testing.T) {
	vecs := testutil.NewRNG(2).GaussianVectors(300, 8)

	a := buildGraph(t, vecs, testOptions())
	b := buildGraph(t, vecs, testOptions())

	assert.Equal(t, a.levelNodes, b.levelNodes)
	assert.Equal(t, a.adj, b.adj)
	assert.Equal(t, a.entry, b.entry)
}

func TestInsertParallel(t *testing.T) {
	rng := testutil.NewRNG(3)
	vecs := rng.UniformRangeVectors(800, 16)

	b, err := NewBuilder(len(vecs), exactSupplier(vecs, distance.Euclidean), testOptions())
	require.NoError(t, err)

	ords := make([]uint32, len(vecs))
	for i := range ords {
		ords[i] = uint32(i)
	}

	var eg errgroup.Group
	require.NoError(t, b.InsertParallel(context.Background(), ords, 4, &eg))
	require.NoError(t, eg.Wait())
	assert.Equal(t, len(vecs), b.Inserted())

	g, err := b.Seal()
	require.NoError(t, err)
	assertGraphInvariants(t, g)

	var recall float64
	queries := rng.UniformRangeVectors(20, 16)
	for _, q := range queries {
		truth := testutil.BruteForce(vecs, q, 10, distance.Euclidean)
		recall += testutil.ComputeRecall(truth, searchOrds(t, g, vecs, q, SearchParams{K: 10, BeamWidth: 100}))
	}
	assert.GreaterOrEqual(t, recall/float64(len(queries)), 0.85)
}

func TestInsertParallelNeighborLists(t *testing.T) {
	// Small M keeps lists at capacity, so most links insert and evict in
	// place while their owners are still linking.
	vecs := testutil.NewRNG(13).GaussianVectors(600, 8)

	opts := testOptions()
	opts.M = 2
	opts.BeamWidth = 16

	for range 4 {
		b, err := NewBuilder(len(vecs), exactSupplier(vecs, distance.Euclidean), opts)
		require.NoError(t, err)

		ords := make([]uint32, len(vecs))
		for i := range ords {
			ords[i] = uint32(i)
		}

		var eg errgroup.Group
		require.NoError(t, b.InsertParallel(context.Background(), ords, 8, &eg))

		g, err := b.Seal()
		require.NoError(t, err)
		assertGraphInvariants(t, g)

		for l := range g.NumLevels() {
			for _, ord := range g.LevelNodes(l) {
				nbs, err := g.Neighbors(l, ord, nil)
				require.NoError(t, err)

				seen := make(map[uint32]struct{}, len(nbs))
				for _, nb := range nbs {
					_, dup := seen[nb]
					require.False(t, dup, "duplicate neighbor %d of %d on level %d", nb, ord, l)
					seen[nb] = struct{}{}
				}
			}
		}
	}
}

func TestInsertParallelAggregatesErrors(t *testing.T) {
	vecs := testutil.NewRNG(4).UniformRangeVectors(100, 4)
	errScore := errors.New("score failed")

	supplier := SupplierFunc(func(ord uint32) (Scorer, error) {
		if ord == 50 {
			return nil, errScore
		}
		return exactScorer{q: vecs[ord], vecs: vecs, sim: distance.Euclidean}, nil
	})

	b, err := NewBuilder(len(vecs), supplier, testOptions())
	require.NoError(t, err)

	ords := make([]uint32, len(vecs))
	for i := range ords {
		ords[i] = uint32(i)
	}

	var eg errgroup.Group
	err = b.InsertParallel(context.Background(), ords, 3, &eg)
	require.ErrorIs(t, err, errScore)
	_ = eg.Wait()

	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestInsertErrors(t *testing.T) {
	vecs := testutil.NewRNG(5).UniformRangeVectors(2, 4)
	b, err := NewBuilder(len(vecs), exactSupplier(vecs, distance.Euclidean), testOptions())
	require.NoError(t, err)

	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrEmpty)

	var ordErr *ErrOrdinal
	assert.ErrorAs(t, b.Insert(context.Background(), 2), &ordErr)

	require.NoError(t, b.Insert(context.Background(), 0))
	assert.ErrorAs(t, b.Insert(context.Background(), 0), &ordErr)
	assert.Equal(t, uint32(0), ordErr.Ord)

	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, b.Insert(context.Background(), 1))
	_, err = b.Seal()
	require.NoError(t, err)

	assert.ErrorIs(t, b.Insert(context.Background(), 1), ErrSealed)
	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrSealed)

	_, err = NewBuilder(0, exactSupplier(nil, distance.Euclidean), testOptions())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSingleNode(t *testing.T) {
	vecs := [][]float32{{1, 2, 3}}
	g := buildGraph(t, vecs, testOptions())

	assert.Equal(t, 1, g.NumLevels())
	entry, level := g.EntryPoint()
	assert.Equal(t, uint32(0), entry)
	assert.Zero(t, level)

	nbs, err := g.Neighbors(0, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, nbs)

	var buf bytes.Buffer
	meta, n, err := Encode(g, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, buf.Len())

	off, err := Decode(meta, buf.Bytes())
	require.NoError(t, err)

	items, stats, err := Search(context.Background(), off, exactScorer{q: []float32{1, 2, 4}, vecs: vecs, sim: distance.Euclidean}, SearchParams{K: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint32(0), items[0].Node)
	assert.InDelta(t, 0.5, items[0].Score, 1e-6)
	assert.Equal(t, 1, stats.Visited)
}

func TestSearchBudget(t *testing.T) {
	rng := testutil.NewRNG(6)
	vecs := rng.UniformRangeVectors(500, 8)
	g := buildGraph(t, vecs, testOptions())

	q := rng.UniformRangeVectors(1, 8)[0]
	items, stats, err := Search(context.Background(), g, exactScorer{q: q, vecs: vecs, sim: distance.Euclidean}, SearchParams{K: 10, BeamWidth: 100, VisitBudget: 5})
	require.NoError(t, err)
	assert.True(t, stats.BudgetExhausted)
	assert.LessOrEqual(t, stats.Visited, 5)
	assert.NotEmpty(t, items)

	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Score, items[i].Score)
	}

	_, stats, err = Search(context.Background(), g, exactScorer{q: q, vecs: vecs, sim: distance.Euclidean}, SearchParams{K: 10, BeamWidth: 100})
	require.NoError(t, err)
	assert.False(t, stats.BudgetExhausted)
	assert.Greater(t, stats.Visited, 5)
}

func TestSearchFilter(t *testing.T) {
	rng := testutil.NewRNG(7)
	vecs := rng.UniformRangeVectors(400, 8)
	g := buildGraph(t, vecs, testOptions())

	filter := roaring.New()
	for i := uint32(0); i < uint32(len(vecs)); i += 2 {
		filter.Add(i)
	}

	q := rng.UniformRangeVectors(1, 8)[0]
	got := searchOrds(t, g, vecs, q, SearchParams{K: 10, BeamWidth: 50, Filter: filter})
	require.Len(t, got, 10)
	for _, ord := range got {
		assert.Zero(t, ord%2, "ordinal %d outside filter", ord)
	}
}

func TestSearchEdgeCases(t *testing.T) {
	vecs := testutil.NewRNG(8).UniformRangeVectors(10, 4)
	g := buildGraph(t, vecs, testOptions())
	sc := exactScorer{q: vecs[0], vecs: vecs, sim: distance.Euclidean}

	items, _, err := Search(context.Background(), g, sc, SearchParams{K: 0})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, _, err = Search(context.Background(), g, sc, SearchParams{K: 50})
	require.NoError(t, err)
	assert.Len(t, items, len(vecs))
	assert.Equal(t, uint32(0), items[0].Node)
	assert.InDelta(t, 1.0, items[0].Score, 1e-6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Search(ctx, g, sc, SearchParams{K: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCodecRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(9)
	vecs := rng.UniformRangeVectors(600, 8)
	g := buildGraph(t, vecs, testOptions())

	var buf bytes.Buffer
	meta, n, err := Encode(g, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	decoded, err := DecodeGraphMeta(meta.AppendBinary(nil))
	require.NoError(t, err)
	assert.Equal(t, meta, decoded)

	off, err := Decode(decoded, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, g.Len(), off.Len())
	assert.Equal(t, g.NumLevels(), off.NumLevels())

	for l := range g.NumLevels() {
		for _, ord := range g.LevelNodes(l) {
			want, err := g.Neighbors(l, ord, nil)
			require.NoError(t, err)
			got, err := off.Neighbors(l, ord, nil)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}

	stats, err := off.Stats()
	require.NoError(t, err)
	assert.Equal(t, g.Stats(), stats)

	q := rng.UniformRangeVectors(1, 8)[0]
	p := SearchParams{K: 5, BeamWidth: 40}
	assert.Equal(t, searchOrds(t, g, vecs, q, p), searchOrds(t, off, vecs, q, p))
}

func TestDecodeCorrupt(t *testing.T) {
	vecs := testutil.NewRNG(10).UniformRangeVectors(200, 4)
	g := buildGraph(t, vecs, testOptions())

	var buf bytes.Buffer
	meta, _, err := Encode(g, &buf)
	require.NoError(t, err)
	raw := meta.AppendBinary(nil)

	_, err = DecodeGraphMeta(raw[:len(raw)/2])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeGraphMeta(append(raw, 0))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeGraphMeta(nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(meta, buf.Bytes()[1:])
	assert.ErrorIs(t, err, ErrCorrupt)

	// A neighbor count larger than the graph is rejected lazily.
	data := bytes.Clone(buf.Bytes())
	data[meta.Offsets[0][0]] = 0xff
	data[meta.Offsets[0][0]+1] = 0xff
	off, err := Decode(meta, data)
	require.NoError(t, err)
	_, err = off.Neighbors(0, 0, nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGraphStats(t *testing.T) {
	vecs := testutil.NewRNG(11).UniformRangeVectors(300, 4)
	g := buildGraph(t, vecs, testOptions())

	stats := g.Stats()
	require.Len(t, stats, g.NumLevels())
	assert.Equal(t, 300, stats[0].Nodes)
	assert.LessOrEqual(t, stats[0].MaxConnections, 16)
	for l := 1; l < len(stats); l++ {
		assert.LessOrEqual(t, stats[l].Nodes, stats[l-1].Nodes)
		assert.LessOrEqual(t, stats[l].MaxConnections, 8)
	}
	assert.Greater(t, stats[0].Connections, 0)
}
