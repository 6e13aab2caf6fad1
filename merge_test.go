package bqhnsw

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/store"
	"github.com/hupe1980/bqhnsw/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMerge(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(20)
	a := rng.UnitVectors(100, 16)
	b := rng.UnitVectors(80, 16)

	f, err := New()
	require.NoError(t, err)

	dir := store.NewMemoryDirectory()
	buildSegment(t, f, dir, "a", a, distance.DotProduct)
	buildSegment(t, f, dir, "b", b, distance.DotProduct)

	ra, err := f.NewReader(dir, "a")
	require.NoError(t, err)
	defer ra.Close()
	rb, err := f.NewReader(dir, "b")
	require.NoError(t, err)
	defer rb.Close()

	stats, err := f.Merge(ctx, dir, "ab", []MergeInput{
		{Source: ra, Deleted: roaring.BitmapOf(0, 5, 99)},
		{Source: rb},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sources)
	assert.Equal(t, 177, stats.Vectors)
	assert.Equal(t, 3, stats.Skipped)

	require.Len(t, stats.DocMaps, 2)
	assert.Equal(t, -1, stats.DocMaps[0][0])
	assert.Equal(t, 0, stats.DocMaps[0][1])
	assert.Equal(t, -1, stats.DocMaps[0][5])
	assert.Equal(t, -1, stats.DocMaps[0][99])
	assert.Equal(t, 97, stats.DocMaps[1][0])
	assert.Equal(t, 176, stats.DocMaps[1][79])

	merged, err := f.NewReader(dir, "ab")
	require.NoError(t, err)
	defer merged.Close()
	assert.Equal(t, 177, merged.Len())

	for src, vectors := range [][][]float32{a, b} {
		for ord, newOrd := range stats.DocMaps[src] {
			if newOrd < 0 {
				continue
			}
			v, err := merged.Vector(newOrd)
			require.NoError(t, err)
			assert.Equal(t, vectors[ord], v)
		}
	}

	results, err := merged.Search(ctx, b[10], 1, distance.DotProduct, WithRerank(10))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stats.DocMaps[1][10], results[0].Ordinal)
}

func TestMerge_Parallel(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(21)
	vectors := rng.UnitVectors(500, 64)

	var eg errgroup.Group
	f, err := New(WithMergeWorkers(4, &eg))
	require.NoError(t, err)

	dir := store.NewMemoryDirectory()
	buildSegment(t, f, dir, "a", vectors[:250], distance.DotProduct)
	buildSegment(t, f, dir, "b", vectors[250:], distance.DotProduct)

	ra, err := f.NewReader(dir, "a")
	require.NoError(t, err)
	defer ra.Close()
	rb, err := f.NewReader(dir, "b")
	require.NoError(t, err)
	defer rb.Close()

	stats, err := f.Merge(ctx, dir, "ab", []MergeInput{{Source: ra}, {Source: rb}})
	require.NoError(t, err)
	assert.Equal(t, 500, stats.Vectors)

	merged, err := f.NewReader(dir, "ab")
	require.NoError(t, err)
	defer merged.Close()

	info, err := merged.Info()
	require.NoError(t, err)
	for _, lv := range info.Levels {
		limit := f.MaxConnections()
		if lv.Level == 0 {
			limit *= 2
		}
		assert.LessOrEqual(t, lv.MaxConnections, limit, "level %d", lv.Level)
	}

	const queries = 50
	hits := 0
	for _, q := range rng.UnitVectors(queries, 64) {
		results, err := merged.Search(ctx, q, 1, distance.DotProduct, WithRerank(50))
		require.NoError(t, err)
		require.Len(t, results, 1)

		if results[0].Ordinal == testutil.BruteForce(vectors, q, 1, distance.DotProduct)[0].Ordinal {
			hits++
		}
	}
	assert.GreaterOrEqual(t, hits, queries*9/10, "top-1 hits %d/%d", hits, queries)
}

func TestMerge_Errors(t *testing.T) {
	ctx := context.Background()

	f, err := New()
	require.NoError(t, err)

	dir := store.NewMemoryDirectory()
	buildSegment(t, f, dir, "dot", testutil.NewRNG(22).UnitVectors(10, 8), distance.DotProduct)
	buildSegment(t, f, dir, "l2", testutil.NewRNG(23).UnitVectors(10, 8), distance.Euclidean)
	buildSegment(t, f, dir, "wide", testutil.NewRNG(24).UnitVectors(10, 16), distance.DotProduct)

	open := func(name string) *Reader {
		r, err := f.NewReader(dir, name)
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		return r
	}
	dot, l2, wide := open("dot"), open("l2"), open("wide")

	_, err = f.Merge(ctx, dir, "out", nil)
	assert.ErrorIs(t, err, ErrEmptySegment)

	_, err = f.Merge(ctx, dir, "out", []MergeInput{{Source: dot}, {Source: wide}})
	var dimErr *InvalidDimensionError
	assert.ErrorAs(t, err, &dimErr)

	_, err = f.Merge(ctx, dir, "out", []MergeInput{{Source: dot}, {Source: l2}})
	var simErr *SimilarityMismatchError
	assert.ErrorAs(t, err, &simErr)

	all := roaring.New()
	all.AddRange(0, 10)
	_, err = f.Merge(ctx, dir, "out", []MergeInput{{Source: dot, Deleted: all}})
	assert.ErrorIs(t, err, ErrEmptySegment)

	files, err := dir.List()
	require.NoError(t, err)
	for _, name := range files {
		assert.NotContains(t, name, "out")
	}
}
