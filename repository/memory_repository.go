package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/ammiranda/request_tree/models"
)

// MemoryRepository implements Repository in process memory. It backs tests,
// the lambda entry point and STORE_DRIVER=memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	workspaces map[string]*models.Workspace
	nodes      map[string]*models.Node
}

// NewMemoryRepository creates a new in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		workspaces: make(map[string]*models.Workspace),
		nodes:      make(map[string]*models.Node),
	}
}

// Initialize performs any necessary setup
func (m *MemoryRepository) Initialize(ctx context.Context) error {
	return nil
}

// Cleanup drops all stored data
func (m *MemoryRepository) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces = make(map[string]*models.Workspace)
	m.nodes = make(map[string]*models.Node)
	return nil
}

// CreateWorkspace stores a workspace
func (m *MemoryRepository) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	if ws == nil || ws.ID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ws
	m.workspaces[ws.ID] = &cp
	return nil
}

// GetWorkspace retrieves a workspace by ID
func (m *MemoryRepository) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	cp := *ws
	return &cp, nil
}

// RenameWorkspace updates a workspace name
func (m *MemoryRepository) RenameWorkspace(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return ErrWorkspaceNotFound
	}
	ws.Name = name
	return nil
}

// DeleteWorkspace removes a workspace record
func (m *MemoryRepository) DeleteWorkspace(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[id]; !ok {
		return ErrWorkspaceNotFound
	}
	delete(m.workspaces, id)
	return nil
}

// CreateNode stores a node
func (m *MemoryRepository) CreateNode(ctx context.Context, node *models.Node) error {
	if err := validateNode(node); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = copyNode(node)
	return nil
}

// GetNode retrieves a node by ID
func (m *MemoryRepository) GetNode(ctx context.Context, workspaceID, id string) (*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[id]
	if !ok || node.WorkspaceID != workspaceID {
		return nil, ErrNodeNotFound
	}
	return copyNode(node), nil
}

// ListNodes retrieves all nodes of a workspace
func (m *MemoryRepository) ListNodes(ctx context.Context, workspaceID string) ([]*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*models.Node, 0)
	for _, node := range m.nodes {
		if node.WorkspaceID == workspaceID {
			result = append(result, copyNode(node))
		}
	}
	SortNodes(result)
	return result, nil
}

// ListChildIDs returns the children of the given parents
func (m *MemoryRepository) ListChildIDs(ctx context.Context, workspaceID string, parentIDs []string) ([]string, error) {
	parents := make(map[string]struct{}, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, node := range m.nodes {
		if node.WorkspaceID != workspaceID || node.ParentID == nil {
			continue
		}
		if _, ok := parents[*node.ParentID]; ok {
			ids = append(ids, node.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// MaxSortOrder returns the largest sibling sort order
func (m *MemoryRepository) MaxSortOrder(ctx context.Context, workspaceID string, parentID *string) (int, bool, error) {
	key := ""
	if parentID != nil {
		key = *parentID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	highest, found := 0, false
	for _, node := range m.nodes {
		if node.WorkspaceID != workspaceID || node.ParentKey() != key {
			continue
		}
		if !found || node.SortOrder > highest {
			highest, found = node.SortOrder, true
		}
	}
	return highest, found, nil
}

// FindRootFolder returns the first root folder of a workspace
func (m *MemoryRepository) FindRootFolder(ctx context.Context, workspaceID string) (*models.Node, error) {
	nodes, err := m.ListNodes(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, node := range nodes {
		if node.ParentID == nil && node.Type == models.NodeFolder {
			return node, nil
		}
	}
	return nil, ErrNodeNotFound
}

// PatchNode writes structural fields and bumps the version
func (m *MemoryRepository) PatchNode(ctx context.Context, node *models.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.nodes[node.ID]
	if !ok || stored.WorkspaceID != node.WorkspaceID {
		return ErrNodeNotFound
	}
	stored.Name = node.Name
	stored.ParentID = copyString(node.ParentID)
	stored.SortOrder = node.SortOrder
	stored.UpdatedAt = node.UpdatedAt
	stored.UpdatedBy = copyString(node.UpdatedBy)
	stored.Version++
	node.Version = stored.Version
	node.Name = stored.Name
	return nil
}

// UpdateRequest replaces request content when the version matches
func (m *MemoryRepository) UpdateRequest(ctx context.Context, node *models.Node, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.nodes[node.ID]
	if !ok || stored.WorkspaceID != node.WorkspaceID || stored.Type != models.NodeRequest {
		return ErrNodeNotFound
	}
	if stored.Version != expectedVersion {
		return &VersionMismatchError{Current: stored.Version}
	}
	stored.Request = node.Request.Clone(true)
	stored.UpdatedAt = node.UpdatedAt
	stored.UpdatedBy = copyString(node.UpdatedBy)
	stored.Version++
	node.Version = stored.Version
	return nil
}

// DeleteNodes deletes the given nodes
func (m *MemoryRepository) DeleteNodes(ctx context.Context, workspaceID string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if node, ok := m.nodes[id]; ok && node.WorkspaceID == workspaceID {
			delete(m.nodes, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteWorkspaceNodes deletes every node of a workspace
func (m *MemoryRepository) DeleteWorkspaceNodes(ctx context.Context, workspaceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, node := range m.nodes {
		if node.WorkspaceID == workspaceID {
			delete(m.nodes, id)
			deleted++
		}
	}
	return deleted, nil
}

// SortNodes orders nodes by (parentId, sortOrder, name) with roots first.
func SortNodes(nodes []*models.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if (a.ParentID == nil) != (b.ParentID == nil) {
			return a.ParentID == nil
		}
		if a.ParentKey() != b.ParentKey() {
			return a.ParentKey() < b.ParentKey()
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func copyNode(n *models.Node) *models.Node {
	cp := *n
	cp.ParentID = copyString(n.ParentID)
	cp.UpdatedBy = copyString(n.UpdatedBy)
	cp.Request = n.Request.Clone(true)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
