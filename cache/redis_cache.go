package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/models"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements CacheProvider using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type RedisOption func(*RedisCache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// NewRedisCache creates a new Redis cache provider for the given address
func NewRedisCache(addr string, opts ...RedisOption) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: addr}), opts...)
}

// NewRedisCacheFromClient creates a Redis cache provider from an existing client
func NewRedisCacheFromClient(client *redis.Client, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: "request_tree:",
		ttl:    DefaultTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize checks the connection
func (c *RedisCache) Initialize(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) key(workspaceID string) string {
	return c.prefix + treeKey(workspaceID)
}

// GetTree retrieves the tree from cache if available
func (c *RedisCache) GetTree(ctx context.Context, workspaceID string) ([]*models.TreeNode, bool) {
	data, err := c.client.Get(ctx, c.key(workspaceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get", "workspace_id", workspaceID, "error", err)
		}
		return nil, false
	}

	var tree []*models.TreeNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, false
	}
	return tree, true
}

// SetTree stores the tree in cache
func (c *RedisCache) SetTree(ctx context.Context, workspaceID string, tree []*models.TreeNode) {
	data, err := json.Marshal(tree)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(workspaceID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set", "workspace_id", workspaceID, "error", err)
	}
}

// Invalidate removes the tree of a workspace from cache
func (c *RedisCache) Invalidate(ctx context.Context, workspaceID string) {
	if err := c.client.Del(ctx, c.key(workspaceID)).Err(); err != nil {
		c.logger.Warn("cache invalidate", "workspace_id", workspaceID, "error", err)
	}
}

// SetCacheTTL sets the cache time-to-live duration
func (c *RedisCache) SetCacheTTL(ttl time.Duration) {
	c.ttl = ttl
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
