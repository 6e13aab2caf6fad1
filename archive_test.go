package bqhnsw

import (
	"context"
	"testing"

	"github.com/hupe1980/bqhnsw/blobstore"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/hupe1980/bqhnsw/store"
	"github.com/hupe1980/bqhnsw/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFetch(t *testing.T) {
	ctx := context.Background()
	vectors := testutil.NewRNG(30).UnitVectors(120, 16)

	for _, codec := range []blobstore.Codec{blobstore.CodecNone, blobstore.CodecLZ4, blobstore.CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			metrics := &BasicMetricsCollector{}
			f, err := New(WithMetricsCollector(metrics))
			require.NoError(t, err)

			src := store.NewMemoryDirectory()
			buildSegment(t, f, src, "seg", vectors, distance.DotProduct)

			raw := blobstore.NewMemoryStore()
			bs := blobstore.Compressed(raw, codec)

			published, err := f.Publish(ctx, src, "seg", bs, WithArchivePrefix("v1"))
			require.NoError(t, err)
			assert.Equal(t, 4, published.Files)
			assert.Positive(t, published.Bytes)

			keys, err := raw.List(ctx, "v1/seg/")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"v1/seg/seg.vec", "v1/seg/seg.veb", "v1/seg/seg.vex", "v1/seg/seg.vem"}, keys)

			dst := store.NewMemoryDirectory()
			fetched, err := f.Fetch(ctx, bs, "seg", dst, WithArchivePrefix("v1"))
			require.NoError(t, err)
			assert.Equal(t, published.ID, fetched.ID)
			assert.Equal(t, published.Bytes, fetched.Bytes)

			for _, name := range []string{"seg.vec", "seg.veb", "seg.vex", "seg.vem"} {
				assert.Equal(t, src.FileSize(name), dst.FileSize(name), name)
			}

			r, err := f.NewReader(dst, "seg")
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, published.ID, r.SegmentID())

			results, err := r.Search(ctx, vectors[7], 1, distance.DotProduct, WithRerank(10))
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, 7, results[0].Ordinal)

			assert.Equal(t, int64(2), metrics.GetStats().PublishCount)
		})
	}
}

func TestPublish_Registry(t *testing.T) {
	ctx := context.Background()

	f, err := New()
	require.NoError(t, err)

	src := store.NewMemoryDirectory()
	buildSegment(t, f, src, "seg", testutil.NewRNG(31).UnitVectors(20, 8), distance.Euclidean)

	bs := blobstore.NewMemoryStore()
	registry := blobstore.NewMemoryRegistry()

	stats, err := f.Publish(ctx, src, "seg", bs, WithRegistry(registry))
	require.NoError(t, err)

	id, err := registry.Lookup(ctx, "seg")
	require.NoError(t, err)
	assert.Equal(t, stats.ID.String(), id)

	_, err = f.Publish(ctx, src, "seg", bs, WithRegistry(registry))
	assert.ErrorIs(t, err, blobstore.ErrAlreadyExists)

	dst := store.NewMemoryDirectory()
	_, err = f.Fetch(ctx, bs, "seg", dst, WithRegistry(registry))
	require.NoError(t, err)

	t.Run("UnregisteredSegment", func(t *testing.T) {
		_, err := f.Fetch(ctx, bs, "seg", store.NewMemoryDirectory(), WithRegistry(blobstore.NewMemoryRegistry()))
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("IDMismatch", func(t *testing.T) {
		other := blobstore.NewMemoryRegistry()
		require.NoError(t, other.Register(ctx, "seg", "00000000-0000-0000-0000-000000000000"))

		dst := store.NewMemoryDirectory()
		_, err := f.Fetch(ctx, bs, "seg", dst, WithRegistry(other))
		assert.ErrorIs(t, err, ErrCorruptSegment)

		files, err := dst.List()
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestFetch_Missing(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	dst := store.NewMemoryDirectory()
	_, err = f.Fetch(context.Background(), blobstore.NewMemoryStore(), "missing", dst)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	files, err := dst.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFetch_MissingDataRemovesPartialFiles(t *testing.T) {
	ctx := context.Background()

	f, err := New()
	require.NoError(t, err)

	src := store.NewMemoryDirectory()
	buildSegment(t, f, src, "seg", testutil.NewRNG(32).UnitVectors(20, 8), distance.DotProduct)

	bs := blobstore.NewMemoryStore()
	_, err = f.Publish(ctx, src, "seg", bs)
	require.NoError(t, err)
	require.NoError(t, bs.Delete(ctx, "seg/seg.vex"))

	dst := store.NewMemoryDirectory()
	_, err = f.Fetch(ctx, bs, "seg", dst)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	files, err := dst.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFetch_KeepsExistingFiles(t *testing.T) {
	ctx := context.Background()

	f, err := New()
	require.NoError(t, err)

	src := store.NewMemoryDirectory()
	buildSegment(t, f, src, "seg", testutil.NewRNG(33).UnitVectors(20, 8), distance.DotProduct)

	bs := blobstore.NewMemoryStore()
	_, err = f.Publish(ctx, src, "seg", bs)
	require.NoError(t, err)

	_, err = f.Fetch(ctx, bs, "seg", src)
	assert.ErrorIs(t, err, store.ErrExists)

	r, err := f.NewReader(src, "seg")
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestPublish_MissingSegment(t *testing.T) {
	f, err := New()
	require.NoError(t, err)

	_, err = f.Publish(context.Background(), store.NewMemoryDirectory(), "missing", blobstore.NewMemoryStore())
	assert.Error(t, err)
}
