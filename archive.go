package bqhnsw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/bqhnsw/blobstore"
	"github.com/hupe1980/bqhnsw/internal/vectorstore"
	"github.com/hupe1980/bqhnsw/resource"
	"github.com/hupe1980/bqhnsw/store"
)

// ArchiveOption configures Publish and Fetch.
type ArchiveOption func(*archiveOptions)

type archiveOptions struct {
	prefix   string
	registry blobstore.Registry
}

// WithArchivePrefix places segments under prefix in the blob store.
func WithArchivePrefix(prefix string) ArchiveOption {
	return func(o *archiveOptions) {
		o.prefix = prefix
	}
}

// WithRegistry records published segments in r. Publish refuses to publish a
// segment name twice; Fetch checks the archived segment against the
// registered ID.
func WithRegistry(r blobstore.Registry) ArchiveOption {
	return func(o *archiveOptions) {
		o.registry = r
	}
}

func applyArchiveOptions(optFns []ArchiveOption) archiveOptions {
	var o archiveOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// ArchiveStats describes a finished Publish or Fetch.
type ArchiveStats struct {
	Segment  string
	ID       uuid.UUID
	Files    int
	Bytes    int64
	Duration time.Duration
}

// dataFiles lists the files of a segment that precede its metadata.
func dataFiles(segment string) []string {
	return []string{
		vectorstore.RawName(segment),
		vectorstore.QuantizedName(segment),
		graphName(segment),
	}
}

func archiveKey(prefix, segment, name string) string {
	return path.Join(prefix, segment, name)
}

// Publish uploads a sealed segment to bs under <prefix>/<segment>/. Data files
// are uploaded first and the metadata last, so readers of the archive never
// see metadata without data. Uploads are throttled by the resource
// controller.
func (f *Format) Publish(ctx context.Context, dir store.Directory, segment string, bs blobstore.BlobStore, opts ...ArchiveOption) (*ArchiveStats, error) {
	start := time.Now()

	stats, err := f.publish(ctx, dir, segment, bs, applyArchiveOptions(opts))

	var n int64
	if stats != nil {
		n = stats.Bytes
		stats.Duration = time.Since(start)
	}
	f.opts.logger.LogPublish(ctx, "publish", segment, n, err)
	f.opts.metricsCollector.RecordPublish(n, time.Since(start), err)

	return stats, err
}

func (f *Format) publish(ctx context.Context, dir store.Directory, segment string, bs blobstore.BlobStore, o archiveOptions) (*ArchiveStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := readMeta(dir, segment)
	if err != nil {
		return nil, translateError(err)
	}

	if o.registry != nil {
		id, err := o.registry.Lookup(ctx, segment)
		if err == nil {
			return nil, fmt.Errorf("segment %s registered as %s: %w", segment, id, blobstore.ErrAlreadyExists)
		}
		if !errors.Is(err, blobstore.ErrNotFound) {
			return nil, err
		}
	}

	stats := &ArchiveStats{Segment: segment, ID: meta.ID}

	for _, name := range dataFiles(segment) {
		n, err := f.upload(ctx, dir, name, bs, archiveKey(o.prefix, segment, name))
		if err != nil {
			return stats, fmt.Errorf("upload %s: %w", name, err)
		}
		stats.Files++
		stats.Bytes += n
	}

	in, err := dir.Open(metaName(segment), store.Heap)
	if err != nil {
		return stats, err
	}
	data, _ := in.Bytes()
	err = bs.Put(ctx, archiveKey(o.prefix, segment, metaName(segment)), data)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return stats, fmt.Errorf("upload %s: %w", metaName(segment), err)
	}
	stats.Files++
	stats.Bytes += int64(len(data))

	if o.registry != nil {
		if err := o.registry.Register(ctx, segment, meta.ID.String()); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// upload streams one local file into a new blob.
func (f *Format) upload(ctx context.Context, dir store.Directory, name string, bs blobstore.BlobStore, key string) (int64, error) {
	in, err := dir.Open(name, store.ResolveBlock(dir))
	if err != nil {
		return 0, translateError(err)
	}
	defer func() { _ = in.Close() }()

	wb, err := bs.Create(ctx, key)
	if err != nil {
		return 0, err
	}

	w := resource.NewRateLimitedWriter(ctx, wb, f.opts.resources)
	n, err := io.Copy(w, io.NewSectionReader(in, 0, in.Size()))
	if err != nil {
		return n, errors.Join(err, discardBlob(ctx, bs, key, wb))
	}
	return n, wb.Close()
}

// discardBlob drops a partially written blob.
func discardBlob(ctx context.Context, bs blobstore.BlobStore, key string, wb blobstore.WritableBlob) error {
	if a, ok := wb.(interface{ Abort() error }); ok {
		return a.Abort()
	}
	return errors.Join(wb.Close(), bs.Delete(ctx, key))
}

// Fetch downloads a published segment from bs into dir. Data files are
// written first and the metadata last, so the segment becomes visible in dir
// only when complete. A segment without archived metadata yields an error
// wrapping blobstore.ErrNotFound.
func (f *Format) Fetch(ctx context.Context, bs blobstore.BlobStore, segment string, dir store.Directory, opts ...ArchiveOption) (*ArchiveStats, error) {
	start := time.Now()

	stats, err := f.fetch(ctx, bs, segment, dir, applyArchiveOptions(opts))

	var n int64
	if stats != nil {
		n = stats.Bytes
		stats.Duration = time.Since(start)
	}
	f.opts.logger.LogPublish(ctx, "fetch", segment, n, err)
	f.opts.metricsCollector.RecordPublish(n, time.Since(start), err)

	return stats, err
}

func (f *Format) fetch(ctx context.Context, bs blobstore.BlobStore, segment string, dir store.Directory, o archiveOptions) (stats *ArchiveStats, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mb, err := bs.Open(ctx, archiveKey(o.prefix, segment, metaName(segment)))
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", segment, err)
	}
	metaData, err := blobstore.ReadAll(ctx, mb)
	if cerr := mb.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	meta, err := decodeSegmentMeta(metaData)
	if err != nil {
		return nil, err
	}

	if o.registry != nil {
		id, err := o.registry.Lookup(ctx, segment)
		if err != nil {
			return nil, err
		}
		if id != meta.ID.String() {
			return nil, fmt.Errorf("%w: segment %s: archive holds %s, registry holds %s", ErrCorruptSegment, segment, meta.ID, id)
		}
	}

	stats = &ArchiveStats{Segment: segment, ID: meta.ID}

	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, name := range written {
			if derr := dir.Delete(name); derr != nil && !isNotExist(derr) {
				err = errors.Join(err, derr)
			}
		}
	}()

	for _, name := range dataFiles(segment) {
		n, err := f.download(ctx, bs, archiveKey(o.prefix, segment, name), dir, name)
		if !errors.Is(err, store.ErrExists) {
			written = append(written, name)
		}
		if err != nil {
			return stats, fmt.Errorf("download %s: %w", name, err)
		}
		if name == graphName(segment) && n < meta.Graph.Length {
			return stats, fmt.Errorf("%w: %s is %d bytes, metadata expects %d", ErrCorruptSegment, name, n, meta.Graph.Length)
		}
		stats.Files++
		stats.Bytes += n
	}

	if err := commitFile(dir, metaName(segment), func(w io.Writer) error {
		_, err := w.Write(metaData)
		return err
	}); err != nil {
		return stats, err
	}
	stats.Files++
	stats.Bytes += int64(len(metaData))

	return stats, nil
}

// download copies one blob into a new local file. The file is created before
// the blob is opened, so store.ErrExists always means dir already held it.
func (f *Format) download(ctx context.Context, bs blobstore.BlobStore, key string, dir store.Directory, name string) (int64, error) {
	out, err := dir.Create(name, store.Heap)
	if err != nil {
		return 0, err
	}

	b, err := bs.Open(ctx, key)
	if err != nil {
		return 0, errors.Join(err, out.Close())
	}
	defer func() { _ = b.Close() }()

	if b.Size() == 0 {
		return 0, out.Close()
	}

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return 0, errors.Join(err, out.Close())
	}
	defer func() { _ = rc.Close() }()

	n, err := io.Copy(out, resource.NewRateLimitedReader(ctx, rc, f.opts.resources))
	if err != nil {
		return n, errors.Join(err, out.Close())
	}
	if n != b.Size() {
		return n, errors.Join(fmt.Errorf("%w: short blob %s: %d of %d bytes", ErrCorruptSegment, key, n, b.Size()), out.Close())
	}
	return n, out.Close()
}
