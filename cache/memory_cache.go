package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ammiranda/request_tree/models"
)

// MemoryCache implements CacheProvider using in-memory storage
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[string][]*models.TreeNode
	expiries map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryCache creates a new in-memory cache provider
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data:     make(map[string][]*models.TreeNode),
		expiries: make(map[string]time.Time),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
}

// Initialize performs any necessary setup for the cache provider
func (c *MemoryCache) Initialize(ctx context.Context) error {
	return nil
}

// GetTree retrieves the tree from cache if available
func (c *MemoryCache) GetTree(ctx context.Context, workspaceID string) ([]*models.TreeNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := treeKey(workspaceID)
	expiry, exists := c.expiries[key]
	if !exists || c.now().After(expiry) {
		return nil, false
	}
	tree, ok := c.data[key]
	return tree, ok
}

// SetTree stores the tree in cache
func (c *MemoryCache) SetTree(ctx context.Context, workspaceID string, tree []*models.TreeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := treeKey(workspaceID)
	c.data[key] = tree
	c.expiries[key] = c.now().Add(c.ttl)
}

// Invalidate removes the cached tree of a workspace
func (c *MemoryCache) Invalidate(ctx context.Context, workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := treeKey(workspaceID)
	delete(c.data, key)
	delete(c.expiries, key)
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MemoryCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ttl = ttl
	// Update all existing expiries
	now := c.now()
	for key := range c.data {
		c.expiries[key] = now.Add(ttl)
	}
}
