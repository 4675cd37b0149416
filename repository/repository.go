package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammiranda/request_tree/models"
)

// Repository defines the interface for data access operations.
// It provides methods for managing workspaces and their tree nodes in a
// persistent storage. Every node query is scoped by workspace id.
type Repository interface {
	// Initialize performs any necessary setup for the repository.
	// This may include establishing database connections, running migrations,
	// or any other initialization required for the repository to function.
	// Returns an error if initialization fails.
	Initialize(ctx context.Context) error

	// Cleanup performs any necessary cleanup operations for the repository.
	// This may include closing database connections or any other cleanup
	// required when the repository is no longer needed.
	// Returns an error if cleanup fails.
	Cleanup(ctx context.Context) error

	// CreateWorkspace stores a new workspace.
	// Parameters:
	//   - ctx: Context for the operation
	//   - ws: The workspace to store; ID must be set
	// Returns:
	//   - An error if the operation fails
	CreateWorkspace(ctx context.Context, ws *models.Workspace) error

	// GetWorkspace retrieves a workspace by its ID.
	// Returns:
	//   - ErrWorkspaceNotFound if no workspace exists with the given ID
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)

	// RenameWorkspace changes the display name of a workspace.
	// Returns:
	//   - ErrWorkspaceNotFound if no workspace exists with the given ID
	RenameWorkspace(ctx context.Context, id, name string) error

	// DeleteWorkspace removes the workspace record. Nodes are removed
	// separately with DeleteWorkspaceNodes.
	// Returns:
	//   - ErrWorkspaceNotFound if no workspace exists with the given ID
	DeleteWorkspace(ctx context.Context, id string) error

	// CreateNode stores a new node.
	// Parameters:
	//   - ctx: Context for the operation
	//   - node: The node to store; ID, WorkspaceID and Version must be set
	// Returns:
	//   - ErrInvalidInput if the node is malformed
	//   - Other error if the operation fails
	CreateNode(ctx context.Context, node *models.Node) error

	// GetNode retrieves a node by its ID within a workspace.
	// Parameters:
	//   - ctx: Context for the operation
	//   - workspaceID: The owning workspace
	//   - id: The ID of the node to retrieve
	// Returns:
	//   - A pointer to the Node if found
	//   - ErrNodeNotFound if no node exists with the given ID in the workspace
	//   - Other error if the operation fails
	GetNode(ctx context.Context, workspaceID, id string) (*models.Node, error)

	// ListNodes retrieves every node of a workspace ordered by
	// (parentId, sortOrder, name), root nodes first.
	ListNodes(ctx context.Context, workspaceID string) ([]*models.Node, error)

	// ListChildIDs returns the ids of all nodes whose parent is one of parentIDs.
	ListChildIDs(ctx context.Context, workspaceID string, parentIDs []string) ([]string, error)

	// MaxSortOrder returns the largest sortOrder among the children of
	// parentID (nil for roots). ok is false when there are no siblings.
	MaxSortOrder(ctx context.Context, workspaceID string, parentID *string) (highest int, ok bool, err error)

	// FindRootFolder returns the first FOLDER node without a parent.
	// Returns:
	//   - ErrNodeNotFound if the workspace has no root folder
	FindRootFolder(ctx context.Context, workspaceID string) (*models.Node, error)

	// PatchNode writes the structural fields of a node (name, parent, sort
	// order, audit fields) and increments its version. The new version is
	// written back into node.Version.
	// Returns:
	//   - ErrNodeNotFound if no node exists with the given ID in the workspace
	PatchNode(ctx context.Context, node *models.Node) error

	// UpdateRequest replaces the request content of a REQUEST node if its
	// stored version equals expectedVersion, incrementing the version. The
	// new version and the stored name are written back into node.
	// Returns:
	//   - ErrNodeNotFound if no REQUEST node exists with the given ID
	//   - *VersionMismatchError (matching ErrVersionMismatch) if the version differs
	UpdateRequest(ctx context.Context, node *models.Node, expectedVersion int) error

	// DeleteNodes deletes the given node ids in one bulk operation.
	// Returns:
	//   - The number of nodes actually deleted
	DeleteNodes(ctx context.Context, workspaceID string, ids []string) (int, error)

	// DeleteWorkspaceNodes deletes every node of a workspace.
	// Returns:
	//   - The number of nodes deleted
	DeleteWorkspaceNodes(ctx context.Context, workspaceID string) (int, error)
}

// Common errors
var (
	// ErrNodeNotFound is returned when a requested node does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrWorkspaceNotFound is returned when a requested workspace does not exist
	ErrWorkspaceNotFound = errors.New("workspace not found")
	// ErrVersionMismatch is returned when an optimistic update loses the race
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrInvalidInput is returned when the input parameters are invalid
	ErrInvalidInput = errors.New("invalid input")
)

// VersionMismatchError carries the version found when a conditional update
// was rejected.
type VersionMismatchError struct {
	Current int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: current version is %d", e.Current)
}

// Is makes errors.Is(err, ErrVersionMismatch) match.
func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

func validateNode(node *models.Node) error {
	if node == nil || node.ID == "" || node.WorkspaceID == "" || node.Name == "" || !node.Type.Valid() {
		return ErrInvalidInput
	}
	if (node.Type == models.NodeRequest) != (node.Request != nil) {
		return ErrInvalidInput
	}
	return nil
}
