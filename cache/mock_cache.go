package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ammiranda/request_tree/models"
)

// MockCache is a cache provider that can be used for testing
type MockCache struct {
	mu              sync.RWMutex
	data            map[string][]*models.TreeNode
	ttl             time.Duration
	GetTreeCalls    int
	SetTreeCalls    int
	InvalidateCalls int
	SetTTLCalls     int
	InitCalls       int
	ShouldFail      bool
}

// NewMockCache creates a new mock cache provider
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string][]*models.TreeNode),
		ttl:  DefaultTTL,
	}
}

// Initialize performs any necessary setup for the cache provider
func (c *MockCache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitCalls++
	if c.ShouldFail {
		return ErrCacheInitialization
	}
	return nil
}

// GetTree retrieves the tree from cache if available
func (c *MockCache) GetTree(ctx context.Context, workspaceID string) ([]*models.TreeNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetTreeCalls++
	if c.ShouldFail {
		return nil, false
	}
	tree, ok := c.data[workspaceID]
	return tree, ok
}

// SetTree stores the tree in cache
func (c *MockCache) SetTree(ctx context.Context, workspaceID string, tree []*models.TreeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTreeCalls++
	if c.ShouldFail {
		return
	}
	c.data[workspaceID] = tree
}

// Invalidate removes the cached tree of a workspace
func (c *MockCache) Invalidate(ctx context.Context, workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvalidateCalls++
	delete(c.data, workspaceID)
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MockCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTTLCalls++
	c.ttl = ttl
}

// Calls returns the get, set and invalidate counters.
func (c *MockCache) Calls() (get, set, invalidate int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GetTreeCalls, c.SetTreeCalls, c.InvalidateCalls
}
