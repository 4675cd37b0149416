package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ammiranda/request_tree/models"
	"github.com/ammiranda/request_tree/notify"
)

// DefaultTTL is used when a provider is created without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// ErrCacheInitialization is returned when a provider cannot be set up
var ErrCacheInitialization = errors.New("cache initialization failed")

// CacheProvider defines the interface for cache implementations.
// It provides methods for caching and retrieving the nested tree of a
// workspace.
type CacheProvider interface {
	// GetTree retrieves the cached tree of a workspace if available.
	// Parameters:
	//   - ctx: Context for the operation
	//   - workspaceID: The workspace whose tree is requested
	// Returns:
	//   - The root nodes with their children
	//   - A boolean indicating whether the tree was found in cache
	GetTree(ctx context.Context, workspaceID string) ([]*models.TreeNode, bool)

	// SetTree stores the tree of a workspace in cache.
	// Parameters:
	//   - ctx: Context for the operation
	//   - workspaceID: The workspace the tree belongs to
	//   - tree: The root nodes with their children
	SetTree(ctx context.Context, workspaceID string, tree []*models.TreeNode)

	// Invalidate removes the cached tree of a workspace.
	// This is called whenever the workspace changes.
	Invalidate(ctx context.Context, workspaceID string)

	// SetCacheTTL sets the cache time-to-live duration.
	// Parameters:
	//   - ttl: The duration after which cached data should expire
	SetCacheTTL(ttl time.Duration)

	// Initialize performs any necessary setup for the cache provider.
	// This may include establishing connections, creating tables,
	// or any other initialization required for the cache to function.
	// Returns an error if initialization fails.
	Initialize(ctx context.Context) error
}

// NoCache never stores anything.
type NoCache struct{}

func (NoCache) GetTree(context.Context, string) ([]*models.TreeNode, bool) { return nil, false }
func (NoCache) SetTree(context.Context, string, []*models.TreeNode)        {}
func (NoCache) Invalidate(context.Context, string)                         {}
func (NoCache) SetCacheTTL(time.Duration)                                  {}
func (NoCache) Initialize(context.Context) error                           { return nil }

// Invalidator drops a workspace's cached tree whenever a change event for
// that workspace is published.
type Invalidator struct {
	provider CacheProvider
}

// NewInvalidator creates a notifier bound to a cache provider
func NewInvalidator(provider CacheProvider) *Invalidator {
	return &Invalidator{provider: provider}
}

func (i *Invalidator) Publish(ctx context.Context, e notify.Event) {
	if e.WorkspaceID == "" {
		return
	}
	i.provider.Invalidate(ctx, e.WorkspaceID)
}

func treeKey(workspaceID string) string {
	return "tree:" + workspaceID
}
