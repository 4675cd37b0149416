package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func sampleTree() []*models.TreeNode {
	method, url := "GET", "https://api.example.com"
	root := &models.TreeNode{ID: "root", Type: models.NodeFolder, Name: "Root", Version: 1, Children: []*models.TreeNode{}}
	root.AddChild(&models.TreeNode{
		ID:       "req",
		ParentID: models.StringPtr("root"),
		Type:     models.NodeRequest,
		Name:     "List",
		Version:  2,
		Method:   &method,
		URLRaw:   &url,
		Children: []*models.TreeNode{},
	})
	return []*models.TreeNode{root}
}

func testCacheProvider(t *testing.T, provider CacheProvider) {
	ctx := context.Background()
	tree := sampleTree()

	// Test SetTree and GetTree
	provider.SetTree(ctx, "ws-1", tree)
	cachedTree, found := provider.GetTree(ctx, "ws-1")
	assert.True(t, found)
	assert.Equal(t, tree, cachedTree)

	// Workspaces are cached independently
	_, found = provider.GetTree(ctx, "ws-2")
	assert.False(t, found)

	// Test cache invalidation
	provider.Invalidate(ctx, "ws-1")
	_, found = provider.GetTree(ctx, "ws-1")
	assert.False(t, found)
}

func TestMemoryCache(t *testing.T) {
	memoryCache := NewMemoryCache()
	assert.NoError(t, memoryCache.Initialize(context.Background()))

	testCacheProvider(t, memoryCache)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	memoryCache := NewMemoryCache()
	memoryCache.now = func() time.Time { return now }
	memoryCache.SetCacheTTL(time.Second)

	memoryCache.SetTree(ctx, "ws-1", sampleTree())
	_, found := memoryCache.GetTree(ctx, "ws-1")
	assert.True(t, found)

	now = now.Add(2 * time.Second)
	_, found = memoryCache.GetTree(ctx, "ws-1")
	assert.False(t, found)
}

func TestDynamoDBCache(t *testing.T) {
	// Create DynamoDB cache provider with mock client
	mockClient := NewMockDynamoDBClient()
	dynamoCache := NewDynamoDBCacheWithClient(mockClient, "RequestTreeCache")
	assert.NoError(t, dynamoCache.Initialize(context.Background()))

	testCacheProvider(t, dynamoCache)
}

func TestDynamoDBCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mockClient := NewMockDynamoDBClient()
	dynamoCache := NewDynamoDBCacheWithClient(mockClient, "RequestTreeCache")
	assert.NoError(t, dynamoCache.Initialize(ctx))

	dynamoCache.SetTree(ctx, "ws-1", sampleTree())
	assert.Equal(t, 1, mockClient.ItemCount("RequestTreeCache"))

	// Expired items are treated as misses and removed
	mockClient.SetTTL("RequestTreeCache", treeKey("ws-1"), time.Now().Add(-time.Minute).Unix())
	_, found := dynamoCache.GetTree(ctx, "ws-1")
	assert.False(t, found)
	assert.Equal(t, 0, mockClient.ItemCount("RequestTreeCache"))
}

func TestDynamoDBCachePutFailure(t *testing.T) {
	ctx := context.Background()
	mockClient := NewMockDynamoDBClient()
	dynamoCache := NewDynamoDBCacheWithClient(mockClient, "RequestTreeCache")
	assert.NoError(t, dynamoCache.Initialize(ctx))

	mockClient.FailPuts = true
	dynamoCache.SetTree(ctx, "ws-1", sampleTree())
	_, found := dynamoCache.GetTree(ctx, "ws-1")
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisCache := NewRedisCacheFromClient(client, WithPrefix("test:"))
	defer redisCache.Close()
	assert.NoError(t, redisCache.Initialize(context.Background()))

	testCacheProvider(t, redisCache)
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	redisCache := NewRedisCache(mr.Addr(), WithPrefix("test:"))
	defer redisCache.Close()
	redisCache.SetCacheTTL(time.Second)

	redisCache.SetTree(ctx, "ws-1", sampleTree())
	assert.True(t, mr.Exists("test:"+treeKey("ws-1")))

	mr.FastForward(2 * time.Second)
	_, found := redisCache.GetTree(ctx, "ws-1")
	assert.False(t, found)
}

func TestMockCache(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCache()
	assert.NoError(t, mockCache.Initialize(ctx))

	// Test basic functionality
	testCacheProvider(t, mockCache)

	get, set, invalidate := mockCache.Calls()
	assert.Greater(t, get, 0, "GetTree should have been called")
	assert.Equal(t, 1, set, "SetTree should have been called once")
	assert.Equal(t, 1, invalidate, "Invalidate should have been called once")

	// Test failure mode
	mockCache.ShouldFail = true
	assert.ErrorIs(t, mockCache.Initialize(ctx), ErrCacheInitialization)
	mockCache.SetTree(ctx, "ws-1", sampleTree())
	tree, found := mockCache.GetTree(ctx, "ws-1")
	assert.Nil(t, tree, "GetTree should return nil when ShouldFail is true")
	assert.False(t, found, "GetTree should return false when ShouldFail is true")
}

func TestInvalidator(t *testing.T) {
	ctx := context.Background()
	memoryCache := NewMemoryCache()
	memoryCache.SetTree(ctx, "ws-1", sampleTree())
	memoryCache.SetTree(ctx, "ws-2", sampleTree())

	inv := NewInvalidator(memoryCache)
	inv.Publish(ctx, notify.Event{Type: notify.NodeCreated, WorkspaceID: "ws-1", NodeID: "n"})

	_, found := memoryCache.GetTree(ctx, "ws-1")
	assert.False(t, found)
	_, found = memoryCache.GetTree(ctx, "ws-2")
	assert.True(t, found)
}

func TestNoCache(t *testing.T) {
	ctx := context.Background()
	var provider CacheProvider = NoCache{}
	assert.NoError(t, provider.Initialize(ctx))
	provider.SetTree(ctx, "ws-1", sampleTree())
	_, found := provider.GetTree(ctx, "ws-1")
	assert.False(t, found)
}
