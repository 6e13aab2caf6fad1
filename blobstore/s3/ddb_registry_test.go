package s3

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/bqhnsw/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // segment -> item
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func (m *mockDDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := params.Item[attrSegment].(*types.AttributeValueMemberS).Value

	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(segment)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := params.Key[attrSegment].(*types.AttributeValueMemberS).Value
	if item, ok := m.items[key]; ok {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func TestDDBRegistry_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	registry := NewDDBRegistry(newMockDDBClient(), "bqhnsw-segments", "s3://test-bucket/test")

	require.NoError(t, registry.Register(ctx, "seg-0001", "id-1"))

	id, err := registry.Lookup(ctx, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
}

func TestDDBRegistry_PublishOnce(t *testing.T) {
	ctx := context.Background()
	registry := NewDDBRegistry(newMockDDBClient(), "bqhnsw-segments", "s3://test-bucket/test")

	require.NoError(t, registry.Register(ctx, "seg-0001", "id-1"))

	err := registry.Register(ctx, "seg-0001", "id-2")
	require.ErrorIs(t, err, blobstore.ErrAlreadyExists)

	id, err := registry.Lookup(ctx, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
}

func TestDDBRegistry_ConcurrentRegister(t *testing.T) {
	ctx := context.Background()
	registry := NewDDBRegistry(newMockDDBClient(), "bqhnsw-segments", "s3://test-bucket/test")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := registry.Register(ctx, "seg-0001", fmt.Sprintf("id-%d", id))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, blobstore.ErrAlreadyExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 4, conflicts)
}

func TestDDBRegistry_NotFound(t *testing.T) {
	registry := NewDDBRegistry(newMockDDBClient(), "bqhnsw-segments", "")

	_, err := registry.Lookup(context.Background(), "seg-0001")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDDBRegistry_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	registry1 := NewDDBRegistry(ddb, "bqhnsw-segments", "s3://bucket-a/path")
	registry2 := NewDDBRegistry(ddb, "bqhnsw-segments", "s3://bucket-b/path")

	require.NoError(t, registry1.Register(ctx, "seg-0001", "id-a"))
	require.NoError(t, registry2.Register(ctx, "seg-0001", "id-b"))

	id, err := registry1.Lookup(ctx, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, "id-a", id)

	id, err = registry2.Lookup(ctx, "seg-0001")
	require.NoError(t, err)
	assert.Equal(t, "id-b", id)
}
