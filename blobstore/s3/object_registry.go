package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/bqhnsw/blobstore"
)

// ObjectRegistry implements blobstore.Registry with one marker object per
// segment, created with a conditional write (If-None-Match: *). It needs no
// table, only a bucket that supports conditional writes (S3 general purpose
// buckets and S3 Express One Zone directory buckets both do).
type ObjectRegistry struct {
	client Client
	bucket string
	prefix string
}

var _ blobstore.Registry = (*ObjectRegistry)(nil)

// NewObjectRegistry creates a registry that stores markers under
// <rootPrefix>/<segment>.
func NewObjectRegistry(client Client, bucket, rootPrefix string) *ObjectRegistry {
	return &ObjectRegistry{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (r *ObjectRegistry) key(segment string) string {
	return path.Join(r.prefix, segment)
}

// Register implements blobstore.Registry.
func (r *ObjectRegistry) Register(ctx context.Context, segment, id string) error {
	data := []byte(id)
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(r.key(segment)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "PreconditionFailed", "ConditionalRequestConflict":
				return fmt.Errorf("segment %s: %w", segment, blobstore.ErrAlreadyExists)
			}
		}
		return err
	}
	return nil
}

// Lookup implements blobstore.Registry.
func (r *ObjectRegistry) Lookup(ctx context.Context, segment string) (string, error) {
	resp, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(segment)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("segment %s: %w", segment, blobstore.ErrNotFound)
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	id, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(id), nil
}
