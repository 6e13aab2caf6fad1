package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/bqhnsw/blobstore"
)

// DDBRegistry implements blobstore.Registry on a DynamoDB table. A
// conditional PutItem makes registration publish-once across concurrent
// publishers.
//
// Table schema:
//   - Partition key: segment (string) - the namespaced segment name
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name bqhnsw-segments \
//	  --attribute-definitions AttributeName=segment,AttributeType=S \
//	  --key-schema AttributeName=segment,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DDBRegistry struct {
	client    DDBClient
	tableName string
	namespace string
}

var (
	_ blobstore.Registry = (*DDBRegistry)(nil)
	_ DDBClient          = (*dynamodb.Client)(nil)
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

const (
	attrSegment     = "segment"
	attrSegmentID   = "segment_id"
	attrPublishedAt = "published_at"
)

// NewDynamoDBClient creates a DynamoDB client from the default AWS
// configuration chain. An empty region keeps the configured one.
func NewDynamoDBClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// NewDDBRegistry creates a registry on tableName. namespace is prefixed to
// every segment name, so several indexes can share a table; it is usually
// the archive prefix, e.g. "s3://bucket/prefix".
func NewDDBRegistry(client DDBClient, tableName, namespace string) *DDBRegistry {
	return &DDBRegistry{
		client:    client,
		tableName: tableName,
		namespace: namespace,
	}
}

func (r *DDBRegistry) key(segment string) string {
	if r.namespace == "" {
		return segment
	}
	return r.namespace + "/" + segment
}

// Register implements blobstore.Registry.
func (r *DDBRegistry) Register(ctx context.Context, segment, id string) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			attrSegment:     &types.AttributeValueMemberS{Value: r.key(segment)},
			attrSegmentID:   &types.AttributeValueMemberS{Value: id},
			attrPublishedAt: &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(" + attrSegment + ")"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("segment %s: %w", segment, blobstore.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to register segment in DynamoDB: %w", err)
	}
	return nil
}

// Lookup implements blobstore.Registry.
func (r *DDBRegistry) Lookup(ctx context.Context, segment string) (string, error) {
	resp, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			attrSegment: &types.AttributeValueMemberS{Value: r.key(segment)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Item) == 0 {
		return "", fmt.Errorf("segment %s: %w", segment, blobstore.ErrNotFound)
	}

	idAttr, ok := resp.Item[attrSegmentID].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("invalid segment_id attribute in DynamoDB")
	}
	return idAttr.Value, nil
}
