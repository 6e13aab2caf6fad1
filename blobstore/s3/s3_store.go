package s3

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/bqhnsw/blobstore"
)

// Store implements blobstore.BlobStore for S3.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
}

var _ blobstore.BlobStore = (*Store)(nil)

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	prefix string
	region string
	upload UploadConfig
}

// WithPrefix sets the root prefix prepended to all keys (e.g. "segments/").
func WithPrefix(prefix string) Option {
	return func(o *storeOptions) {
		o.prefix = prefix
	}
}

// WithRegion overrides the region resolved from the default configuration.
func WithRegion(region string) Option {
	return func(o *storeOptions) {
		o.region = region
	}
}

// WithUploadConfig overrides the multipart upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(o *storeOptions) {
		o.upload = cfg
	}
}

// New creates a store for bucket using the default AWS configuration chain
// (environment, shared config, instance role).
func New(ctx context.Context, bucket string, optFns ...Option) (*Store, error) {
	opts := storeOptions{upload: DefaultUploadConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	return NewStore(s3.NewFromConfig(cfg), bucket, opts.prefix, WithUploadConfig(opts.upload)), nil
}

// NewStore creates a new S3 blob store.
// rootPrefix is prepended to all keys (e.g. "my-index/").
func NewStore(client Client, bucket, rootPrefix string, optFns ...Option) *Store {
	opts := storeOptions{upload: DefaultUploadConfig()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   rootPrefix,
		upload:   opts.upload,
		uploader: newUploader(client, opts.upload),
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open opens a blob for ranged reads.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return openBlob(ctx, s.client, s.bucket, s.key(name))
}

// Create starts a streaming multipart upload. The object appears on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return newStreamingWritableBlob(ctx, s.uploader, s.bucket, s.key(name), s.upload.EnableChecksum), nil
}

// Put writes a small blob in a single request with a CRC32C checksum.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return putWithChecksum(ctx, s.client, s.bucket, s.key(name), data)
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all blobs with the given prefix, relative to the root prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		fullPrefix += "/"
	}
	return listObjects(ctx, s.client, s.bucket, fullPrefix, s.prefix)
}
