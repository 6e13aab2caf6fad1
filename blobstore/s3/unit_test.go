package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/bqhnsw/blobstore"
	"github.com/hupe1980/bqhnsw/internal/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3Client struct {
	mock.Mock
}

var _ Client = (*MockS3Client)(nil)

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.AbortMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func TestStore_Open(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/foo"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(context.Background(), "foo")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("Success", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/bar"
		})).Return(&s3.HeadObjectOutput{
			ContentLength: aws.Int64(100),
		}, nil).Once()

		blob, err := store.Open(context.Background(), "bar")
		require.NoError(t, err)
		assert.Equal(t, int64(100), blob.Size())
	})

	mockClient.AssertExpectations(t)
}

func TestStore_Delete(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Key == "prefix/gone"
	})).Return(nil, &types.NoSuchKey{}).Once()

	assert.NoError(t, store.Delete(context.Background(), "del"))
	assert.NoError(t, store.Delete(context.Background(), "gone"))
	mockClient.AssertExpectations(t)
}

func TestStore_Put(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Key == "prefix/seg/seg.vem" &&
			aws.ToInt64(input.ContentLength) == 4 &&
			aws.ToString(input.ChecksumCRC32C) == hash.Base64CRC32C([]byte("meta"))
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "seg/seg.vem", []byte("meta")))
	mockClient.AssertExpectations(t)
}

func TestStore_List(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix/")

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return *input.Bucket == "test-bucket" && *input.Prefix == "prefix"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("prefix/file1")},
			{Key: aws.String("prefix/dir/file2")},
		},
	}, nil).Once()

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/file2", "file1"}, keys)
}

func TestStore_List_Pagination(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix/")

	// Page 1
	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("prefix/1")}},
	}, nil).Once()

	// Page 2
	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken != nil && *input.ContinuationToken == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("prefix/2")}},
	}, nil).Once()

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, keys)
}

func TestBlob_ReadAt(t *testing.T) {
	mockClient := new(MockS3Client)
	blob := &s3Blob{
		client: mockClient,
		bucket: "b",
		key:    "k",
		size:   10,
	}

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Bucket == "b" && *input.Key == "k" && *input.Range == "bytes=0-4"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("hello")),
	}, nil).Once()

	buf := make([]byte, 5)
	n, err := blob.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	t.Run("Tail", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Range == "bytes=8-9"
		})).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(strings.NewReader("ld")),
		}, nil).Once()

		buf := make([]byte, 5)
		n, err := blob.ReadAt(context.Background(), buf, 8)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 2, n)
		assert.Equal(t, "ld", string(buf[:n]))
	})

	t.Run("PastEnd", func(t *testing.T) {
		_, err := blob.ReadAt(context.Background(), buf, 10)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestBlob_ReadRange(t *testing.T) {
	mockClient := new(MockS3Client)
	blob := &s3Blob{
		client: mockClient,
		bucket: "b",
		key:    "k",
		size:   10,
	}

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Bucket == "b" && *input.Key == "k" && *input.Range == "bytes=2-6"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("llo W")),
	}, nil).Once()

	r, err := blob.ReadRange(context.Background(), 2, 5)
	require.NoError(t, err)
	defer r.Close()

	buf, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "llo W", string(buf))
}

func TestBlob_CanceledContext(t *testing.T) {
	blob := &s3Blob{client: new(MockS3Client), bucket: "b", key: "k", size: 10}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := blob.ReadAt(ctx, make([]byte, 4), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Create(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	// A body smaller than one part is sent with a single PutObject.
	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/new"
	})).Run(func(args mock.Arguments) {
		input := args.Get(1).(*s3.PutObjectInput)
		_, _ = io.ReadAll(input.Body)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	wb, err := store.Create(context.Background(), "new")
	require.NoError(t, err)

	_, err = wb.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	_, err = wb.Write([]byte("more"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	mockClient.AssertExpectations(t)
}

func TestObjectRegistry(t *testing.T) {
	ctx := context.Background()
	mockClient := new(MockS3Client)
	registry := NewObjectRegistry(mockClient, "test-bucket", "registry")

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Key == "registry/seg-1" && aws.ToString(input.IfNoneMatch) == "*"
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	require.NoError(t, registry.Register(ctx, "seg-1", "id-1"))

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Key == "registry/seg-1"
	})).Return(nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}).Once()
	err := registry.Register(ctx, "seg-1", "id-2")
	assert.ErrorIs(t, err, blobstore.ErrAlreadyExists)

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Key == "registry/seg-1"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader("id-1")),
	}, nil).Once()
	id, err := registry.Lookup(ctx, "seg-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Key == "registry/missing"
	})).Return(nil, &types.NoSuchKey{}).Once()
	_, err = registry.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	mockClient.AssertExpectations(t)
}
