package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI defines the interface for DynamoDB operations
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CacheItem is the stored shape of a cached tree. Data holds the JSON
// encoded roots.
type CacheItem struct {
	Key       string `dynamodbav:"key"`
	Data      string `dynamodbav:"data"`
	Timestamp int64  `dynamodbav:"timestamp"`
	TTL       int64  `dynamodbav:"ttl"`
}

// DynamoDBCache implements CacheProvider using DynamoDB
type DynamoDBCache struct {
	client    DynamoDBAPI
	tableName string
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewDynamoDBCache creates a new DynamoDB cache provider
func NewDynamoDBCache(ctx context.Context, tableName string, logger *slog.Logger) (*DynamoDBCache, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	c := NewDynamoDBCacheWithClient(dynamodb.NewFromConfig(cfg), tableName)
	if logger != nil {
		c.logger = logger
	}
	return c, nil
}

// NewDynamoDBCacheWithClient creates a new DynamoDB cache provider with a custom client
func NewDynamoDBCacheWithClient(client DynamoDBAPI, tableName string) *DynamoDBCache {
	return &DynamoDBCache{
		client:    client,
		tableName: tableName,
		cacheTTL:  DefaultTTL,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
}

// Initialize creates the DynamoDB table if it doesn't exist
func (c *DynamoDBCache) Initialize(ctx context.Context) error {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("key"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("key"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	return err
}

func (c *DynamoDBCache) itemKey(workspaceID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: treeKey(workspaceID)},
	}
}

// GetTree retrieves the tree from DynamoDB cache if available
func (c *DynamoDBCache) GetTree(ctx context.Context, workspaceID string) ([]*models.TreeNode, bool) {
	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.itemKey(workspaceID),
	})
	if err != nil {
		c.logger.Warn("dynamodb cache get", "workspace_id", workspaceID, "error", err)
		return nil, false
	}
	if result.Item == nil {
		return nil, false
	}

	var item CacheItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false
	}

	if c.now().Unix() > item.TTL {
		// Expired items are removed eagerly; DynamoDB's own TTL sweep is lazy.
		c.Invalidate(ctx, workspaceID)
		return nil, false
	}

	var tree []*models.TreeNode
	if err := json.Unmarshal([]byte(item.Data), &tree); err != nil {
		return nil, false
	}
	return tree, true
}

// SetTree stores the tree in DynamoDB cache
func (c *DynamoDBCache) SetTree(ctx context.Context, workspaceID string, tree []*models.TreeNode) {
	data, err := json.Marshal(tree)
	if err != nil {
		c.Invalidate(ctx, workspaceID)
		return
	}

	now := c.now()
	av, err := attributevalue.MarshalMap(CacheItem{
		Key:       treeKey(workspaceID),
		Data:      string(data),
		Timestamp: now.Unix(),
		TTL:       now.Add(c.cacheTTL).Unix(),
	})
	if err != nil {
		c.Invalidate(ctx, workspaceID)
		return
	}

	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      av,
	}); err != nil {
		c.logger.Warn("dynamodb cache put", "workspace_id", workspaceID, "error", err)
		c.Invalidate(ctx, workspaceID)
	}
}

// Invalidate removes the tree of a workspace from DynamoDB cache
func (c *DynamoDBCache) Invalidate(ctx context.Context, workspaceID string) {
	if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.itemKey(workspaceID),
	}); err != nil {
		c.logger.Warn("dynamodb cache invalidate", "workspace_id", workspaceID, "error", err)
	}
}

// SetCacheTTL sets the cache time-to-live duration
func (c *DynamoDBCache) SetCacheTTL(ttl time.Duration) {
	c.cacheTTL = ttl
}
