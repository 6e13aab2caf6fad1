package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/bqhnsw/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client is the subset of the MinIO API used by Store. NewStore adapts a
// *minio.Client to it.
type Client interface {
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	// GetObjectRange reads the inclusive byte range [start, end].
	GetObjectRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

type minioClient struct {
	*minio.Client
}

func (c minioClient) GetObjectRange(ctx context.Context, bucket, key string, start, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, err
	}
	return c.GetObject(ctx, bucket, key, opts)
}

// Store implements blobstore.BlobStore for MinIO and S3-compatible storage.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	partSize uint64
}

var _ blobstore.BlobStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPartSize sets the part size used for streaming uploads. Zero lets the
// client pick one.
func WithPartSize(n uint64) Option {
	return func(s *Store) {
		s.partSize = n
	}
}

// New connects to endpoint with static credentials and returns a store for
// bucket.
func New(endpoint, accessKey, secretKey, bucket, rootPrefix string, secure bool, optFns ...Option) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return NewStore(client, bucket, rootPrefix, optFns...), nil
}

// NewStore creates a new MinIO blob store.
// rootPrefix is prepended to all keys (e.g. "segments/").
func NewStore(client *minio.Client, bucket, rootPrefix string, optFns ...Option) *Store {
	return NewStoreWithClient(minioClient{client}, bucket, rootPrefix, optFns...)
}

// NewStoreWithClient creates a store over any Client implementation.
func NewStoreWithClient(client Client, bucket, rootPrefix string, optFns ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Open opens an existing blob for ranged reads.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("minio: %s: %w", key, blobstore.ErrNotFound)
		}
		return nil, err
	}

	return &minioBlob{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   info.Size,
	}, nil
}

// Put writes a small blob in a single request.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		SendContentMd5: true,
	})
	return err
}

// Create starts a streaming upload. The object appears on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	key := s.key(name)
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(ctx)

	blob := &minioWritableBlob{
		pw:     pw,
		done:   make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, key, pr, -1, minio.PutObjectOptions{
			PartSize: s.partSize,
		})
		_ = pr.CloseWithError(err)
		blob.done <- err
	}()

	return blob, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all blob names with the given prefix, relative to the root
// prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		fullPrefix += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	slices.Sort(names)
	return names, nil
}

// minioBlob implements blobstore.Blob with ranged GETs.
type minioBlob struct {
	client Client
	bucket string
	key    string
	size   int64
}

func (b *minioBlob) Size() int64 {
	return b.size
}

func (b *minioBlob) get(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.client.GetObjectRange(ctx, b.bucket, b.key, start, end)
}

func (b *minioBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := min(off+int64(len(p)), b.size) - 1
	obj, err := b.get(ctx, off, end)
	if err != nil {
		return 0, err
	}
	defer func() { _ = obj.Close() }()

	want := int(end - off + 1)
	n, err := io.ReadFull(obj, p[:want])
	if err != nil {
		return n, err
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *minioBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= b.size {
		return nil, io.EOF
	}
	return b.get(ctx, off, min(off+length, b.size)-1)
}

func (b *minioBlob) Close() error {
	return nil
}

// minioWritableBlob pipes writes into a background PutObject.
type minioWritableBlob struct {
	pw       *io.PipeWriter
	done     chan error
	cancel   context.CancelFunc
	finished atomic.Bool
}

func (b *minioWritableBlob) Write(p []byte) (int, error) {
	if b.finished.Load() {
		return 0, io.ErrClosedPipe
	}
	return b.pw.Write(p)
}

func (b *minioWritableBlob) Close() error {
	if !b.finished.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	defer b.cancel()
	if err := b.pw.Close(); err != nil {
		return err
	}
	return <-b.done
}

// Abort cancels the upload; nothing becomes visible.
func (b *minioWritableBlob) Abort() error {
	if !b.finished.CompareAndSwap(false, true) {
		return nil
	}
	_ = b.pw.CloseWithError(context.Canceled)
	b.cancel()
	<-b.done
	return nil
}

func (b *minioWritableBlob) Sync() error {
	return nil
}
